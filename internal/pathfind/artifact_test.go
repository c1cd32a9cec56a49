package pathfind

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	hm := mustCompute(t, corridorLayout())
	path := filepath.Join(t.TempDir(), "heatmaps", "corridor.heatmap")

	if err := Save(path, hm); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !Exists(path) {
		t.Fatal("Exists() = false after Save")
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !hm.Equal(loaded) {
		t.Error("loaded heatmap differs from the saved one")
	}
	if loaded.Params != hm.Params || loaded.Layout != "corridor" {
		t.Errorf("metadata not preserved: %+v", loaded.Params)
	}

	header, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("ReadHeader() error = %v", err)
	}
	if header.Width != 30 || header.Height != 20 || header.Targets != 2 {
		t.Errorf("unexpected header shape: %+v", header)
	}

	// No temp files may be left behind.
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected only the artifact in the dir, found %d entries", len(entries))
	}
}

func TestLoadNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.heatmap"))
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError, got %v", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	hm := mustCompute(t, corridorLayout())
	dir := t.TempDir()
	good := filepath.Join(dir, "good.heatmap")
	if err := Save(good, hm); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	raw, err := os.ReadFile(good)
	if err != nil {
		t.Fatal(err)
	}
	nl := bytes.IndexByte(raw, '\n')

	var header ArtifactHeader
	if err := json.Unmarshal(raw[:nl], &header); err != nil {
		t.Fatal(err)
	}
	header.Targets = 3
	wrongShape, _ := json.Marshal(header)

	flipped := append([]byte(nil), raw...)
	flipped[len(flipped)-5] ^= 0xff

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("not a heatmap at all")},
		{"bad header json", append([]byte("{version:\n"), raw[nl+1:]...)},
		{"payload checksum mismatch", flipped},
		{"truncated payload", raw[:len(raw)-40]},
		{"shape larger than payload", append(append(wrongShape, '\n'), raw[nl+1:]...)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "bad.heatmap")
			if err := os.WriteFile(path, tt.data, 0644); err != nil {
				t.Fatal(err)
			}
			_, err := Load(path)
			var ce *CorruptArtifactError
			if !errors.As(err, &ce) {
				t.Fatalf("expected *CorruptArtifactError, got %v", err)
			}
		})
	}
}

func newTestProvider(t *testing.T, mode Mode) *Provider {
	t.Helper()
	return &Provider{Dir: filepath.Join(t.TempDir(), "heatmaps"), Mode: mode, Params: DefaultParams()}
}

func TestProviderLoadModeNeverComputes(t *testing.T) {
	p := newTestProvider(t, ModeLoad)
	_, err := p.Heatmap(corridorLayout())
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected *NotFoundError in load mode, got %v", err)
	}
	if Exists(ArtifactPath(p.Dir, "corridor")) {
		t.Error("load mode must not create an artifact")
	}
}

func TestProviderComputeThenLoad(t *testing.T) {
	p := newTestProvider(t, ModeCompute)
	computed, err := p.Heatmap(corridorLayout())
	if err != nil {
		t.Fatalf("compute mode error = %v", err)
	}

	p.Mode = ModeLoad
	loaded, err := p.Heatmap(corridorLayout())
	if err != nil {
		t.Fatalf("load mode error = %v", err)
	}
	if !computed.Equal(loaded) {
		t.Error("loaded heatmap differs from computed one")
	}
}

func TestProviderDetectsStaleArtifact(t *testing.T) {
	p := newTestProvider(t, ModeCompute)
	if _, err := p.Heatmap(corridorLayout()); err != nil {
		t.Fatalf("compute mode error = %v", err)
	}

	changed := corridorLayout()
	changed.Targets[1].Pos.X = 26

	p.Mode = ModeLoad
	_, err := p.Heatmap(changed)
	var stale *StaleArtifactError
	if !errors.As(err, &stale) {
		t.Fatalf("expected *StaleArtifactError, got %v", err)
	}

	p.Mode = ModeAuto
	hm, err := p.Heatmap(changed)
	if err != nil {
		t.Fatalf("auto mode error = %v", err)
	}
	if hm.Key != Key(&changed, p.Params) {
		t.Error("auto mode did not recompute for the changed layout")
	}

	// The recomputed artifact is now fresh for load mode.
	p.Mode = ModeLoad
	if _, err := p.Heatmap(changed); err != nil {
		t.Errorf("load after auto recompute error = %v", err)
	}
}

func TestProviderReleasesLockOnFailure(t *testing.T) {
	p := newTestProvider(t, ModeCompute)
	bad := corridorLayout()
	bad.Targets[0].Weight = 0

	if _, err := p.Heatmap(bad); err == nil {
		t.Fatal("expected compute error for zero-weight target")
	}
	if _, err := os.Stat(ArtifactPath(p.Dir, "corridor") + ".lock"); !os.IsNotExist(err) {
		t.Errorf("lock file left behind after failure: %v", err)
	}

	// The cache is usable again.
	if _, err := p.Heatmap(corridorLayout()); err != nil {
		t.Errorf("Heatmap() after failure error = %v", err)
	}
}

func TestProviderLocked(t *testing.T) {
	p := newTestProvider(t, ModeCompute)
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	lock := ArtifactPath(p.Dir, "corridor") + ".lock"
	if err := os.WriteFile(lock, []byte("1\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Heatmap(corridorLayout()); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	// An abandoned lock is reclaimed.
	old := time.Now().Add(-2 * DefaultLockTimeout)
	if err := os.Chtimes(lock, old, old); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Heatmap(corridorLayout()); err != nil {
		t.Fatalf("Heatmap() with abandoned lock error = %v", err)
	}
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"compute", "load", "auto"} {
		if _, err := ParseMode(s); err != nil {
			t.Errorf("ParseMode(%q) error = %v", s, err)
		}
	}
	if _, err := ParseMode("precomputed"); err == nil {
		t.Error("expected error for unknown mode")
	}
}
