package pathfind

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	maxHeaderBytes = 64 * 1024 // Bound on the JSON header line
	maxFieldValues = 1 << 28   // Bound on decoded float32 values (1 GiB)
)

// ArtifactHeader is the plain-text first line of an artifact file. The rest
// of the file is a gzip stream of little-endian float32 values: the Cost
// field followed by each target field.
type ArtifactHeader struct {
	Version  int    `json:"version"`
	Key      string `json:"key"`
	Layout   string `json:"layout"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Targets  int    `json:"targets"`
	Params   Params `json:"params"`
	Checksum string `json:"checksum"`
}

// ArtifactPath returns the conventional artifact location for a layout name.
func ArtifactPath(dir, layoutName string) string {
	return filepath.Join(dir, layoutName+".heatmap")
}

// Exists reports whether an artifact file is present at path.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Save writes the heatmap to path. The file is written to a temporary
// sibling and renamed into place so readers never see a partial artifact.
func Save(path string, h *Heatmap) error {
	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.BestSpeed)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if err := binary.Write(gzw, binary.LittleEndian, h.Cost); err != nil {
		return fmt.Errorf("encoding cost field: %w", err)
	}
	for i, f := range h.Fields {
		if err := binary.Write(gzw, binary.LittleEndian, f); err != nil {
			return fmt.Errorf("encoding field %d: %w", i, err)
		}
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	sum := sha256.Sum256(compressed.Bytes())
	header := ArtifactHeader{
		Version:  FormatVersion,
		Key:      h.Key,
		Layout:   h.Layout,
		Width:    h.Width,
		Height:   h.Height,
		Targets:  len(h.Fields),
		Params:   h.Params,
		Checksum: "sha256:" + hex.EncodeToString(sum[:]),
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(append(headerBytes, '\n')); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := tmp.Write(compressed.Bytes()); err != nil {
		return fmt.Errorf("writing payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming artifact: %w", err)
	}
	committed = true
	return nil
}

// ReadHeader reads only the header line of an artifact.
func ReadHeader(path string) (ArtifactHeader, error) {
	f, err := openArtifact(path)
	if err != nil {
		return ArtifactHeader{}, err
	}
	defer f.Close()

	return readHeader(path, bufio.NewReader(f))
}

// Load reads a heatmap artifact. It returns *NotFoundError when the file does
// not exist and *CorruptArtifactError when it cannot be decoded.
func Load(path string) (*Heatmap, error) {
	f, err := openArtifact(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	header, err := readHeader(path, br)
	if err != nil {
		return nil, err
	}

	payload, err := io.ReadAll(br)
	if err != nil {
		return nil, &CorruptArtifactError{Path: path, Reason: "reading payload", Err: err}
	}
	sum := sha256.Sum256(payload)
	if got := "sha256:" + hex.EncodeToString(sum[:]); got != header.Checksum {
		return nil, &CorruptArtifactError{Path: path, Reason: fmt.Sprintf("checksum mismatch: header %s, payload %s", header.Checksum, got)}
	}

	gzr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, &CorruptArtifactError{Path: path, Reason: "opening gzip payload", Err: err}
	}
	defer gzr.Close()

	cells := header.Width * header.Height
	h := &Heatmap{
		Width:  header.Width,
		Height: header.Height,
		Key:    header.Key,
		Layout: header.Layout,
		Params: header.Params,
		Cost:   make([]float32, cells),
		Fields: make([][]float32, header.Targets),
	}
	if err := binary.Read(gzr, binary.LittleEndian, h.Cost); err != nil {
		return nil, &CorruptArtifactError{Path: path, Reason: "decoding cost field", Err: err}
	}
	for i := range h.Fields {
		h.Fields[i] = make([]float32, cells)
		if err := binary.Read(gzr, binary.LittleEndian, h.Fields[i]); err != nil {
			return nil, &CorruptArtifactError{Path: path, Reason: fmt.Sprintf("decoding field %d", i), Err: err}
		}
	}
	var extra [1]byte
	if n, _ := gzr.Read(extra[:]); n > 0 {
		return nil, &CorruptArtifactError{Path: path, Reason: "payload longer than header shape"}
	}
	return h, nil
}

func openArtifact(path string) (*os.File, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{Path: path}
	}
	if err != nil {
		return nil, fmt.Errorf("opening heatmap artifact: %w", err)
	}
	return f, nil
}

func readHeader(path string, br *bufio.Reader) (ArtifactHeader, error) {
	var line []byte
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) && len(line) < maxHeaderBytes {
			continue
		}
		return ArtifactHeader{}, &CorruptArtifactError{Path: path, Reason: "missing header line", Err: err}
	}

	var header ArtifactHeader
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return ArtifactHeader{}, &CorruptArtifactError{Path: path, Reason: "parsing header", Err: err}
	}
	if header.Version != FormatVersion {
		return ArtifactHeader{}, &CorruptArtifactError{Path: path, Reason: fmt.Sprintf("unsupported format version %d", header.Version)}
	}
	if header.Width <= 0 || header.Height <= 0 || header.Targets <= 0 {
		return ArtifactHeader{}, &CorruptArtifactError{
			Path:   path,
			Reason: fmt.Sprintf("invalid shape %dx%d with %d targets", header.Width, header.Height, header.Targets),
		}
	}
	if int64(header.Width)*int64(header.Height)*int64(header.Targets+1) > maxFieldValues {
		return ArtifactHeader{}, &CorruptArtifactError{Path: path, Reason: "shape exceeds size limit"}
	}
	return header, nil
}
