package pathfind

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/talgya/seir-sim/internal/world"
)

// Mode selects how a Provider obtains a heatmap.
type Mode string

const (
	// ModeCompute always recomputes and persists the artifact.
	ModeCompute Mode = "compute"
	// ModeLoad only loads a precomputed artifact; missing, corrupt or stale
	// artifacts are errors.
	ModeLoad Mode = "load"
	// ModeAuto loads the artifact when its stamped key matches the layout and
	// recomputes it otherwise.
	ModeAuto Mode = "auto"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeCompute, ModeLoad, ModeAuto:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid heatmap mode %q (valid: compute, load, auto)", s)
	}
}

// DefaultLockTimeout is the age after which an abandoned lock file is
// reclaimed.
const DefaultLockTimeout = 10 * time.Minute

// ErrLocked is returned when another process holds the artifact lock.
var ErrLocked = errors.New("heatmap artifact is locked by another process")

// Provider obtains the heatmap for a layout from the artifact cache.
type Provider struct {
	Dir         string
	Mode        Mode
	Params      Params
	LockTimeout time.Duration
	Logger      *slog.Logger
}

// Heatmap returns the heatmap for l according to the provider mode. The
// artifact is locked for the duration of the call and the lock is released
// on every return path.
func (p *Provider) Heatmap(l world.Layout) (*Heatmap, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	path := ArtifactPath(p.Dir, l.Name)
	key := Key(&l, p.Params)

	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating heatmap dir: %w", err)
	}
	release, err := acquireLock(path+".lock", p.lockTimeout())
	if err != nil {
		return nil, err
	}
	defer release()

	switch p.Mode {
	case ModeLoad:
		return loadFresh(path, key)

	case ModeCompute:
		return computeAndSave(path, l, p.Params, logger)

	case ModeAuto:
		hm, err := loadFresh(path, key)
		if err == nil {
			logger.Info("using precomputed heatmap", "path", path, "targets", hm.Targets())
			return hm, nil
		}
		var nf *NotFoundError
		var stale *StaleArtifactError
		var corrupt *CorruptArtifactError
		switch {
		case errors.As(err, &nf):
			logger.Warn("heatmap artifact missing, computing", "path", path)
		case errors.As(err, &stale):
			logger.Warn("heatmap artifact stale, recomputing", "path", path, "stored_key", fmt.Sprintf("%.12s", stale.Got), "layout_key", fmt.Sprintf("%.12s", key))
		case errors.As(err, &corrupt):
			logger.Warn("heatmap artifact unreadable, recomputing", "path", path, "error", err)
		default:
			return nil, err
		}
		return computeAndSave(path, l, p.Params, logger)

	default:
		return nil, fmt.Errorf("invalid heatmap mode %q", p.Mode)
	}
}

func (p *Provider) lockTimeout() time.Duration {
	if p.LockTimeout > 0 {
		return p.LockTimeout
	}
	return DefaultLockTimeout
}

func loadFresh(path, key string) (*Heatmap, error) {
	hm, err := Load(path)
	if err != nil {
		return nil, err
	}
	if hm.Key != key {
		return nil, &StaleArtifactError{Path: path, Want: key, Got: hm.Key}
	}
	return hm, nil
}

func computeAndSave(path string, l world.Layout, params Params, logger *slog.Logger) (*Heatmap, error) {
	logger.Info("computing heatmaps", "layout", l.Name, "size", fmt.Sprintf("%dx%d", l.Width, l.Height), "targets", len(l.Targets))
	start := time.Now()
	hm, err := Compute(l, params)
	if err != nil {
		return nil, err
	}
	if err := Save(path, hm); err != nil {
		return nil, fmt.Errorf("save heatmap: %w", err)
	}
	logger.Info("saved heatmap", "path", path, "elapsed", time.Since(start).Round(time.Millisecond))
	return hm, nil
}

// acquireLock creates path exclusively. A lock older than timeout is assumed
// abandoned and reclaimed once.
func acquireLock(path string, timeout time.Duration) (func(), error) {
	for attempt := 0; attempt < 2; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			fmt.Fprintln(f, strconv.Itoa(os.Getpid()))
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("creating lock file: %w", err)
		}
		info, statErr := os.Stat(path)
		if errors.Is(statErr, fs.ErrNotExist) {
			continue
		}
		if statErr != nil || time.Since(info.ModTime()) < timeout {
			break
		}
		slog.Warn("reclaiming abandoned heatmap lock", "path", path, "age", time.Since(info.ModTime()).Round(time.Second))
		os.Remove(path)
	}
	return nil, fmt.Errorf("%w (remove %s if no other run is active)", ErrLocked, path)
}
