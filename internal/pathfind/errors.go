package pathfind

import "fmt"

// NotFoundError is returned when no precomputed artifact exists at Path.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("heatmap artifact not found at %s (compute it first with heatmap mode \"compute\")", e.Path)
}

// CorruptArtifactError is returned when an artifact exists but cannot be
// parsed into the expected grid shape.
type CorruptArtifactError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt heatmap artifact %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt heatmap artifact %s: %s", e.Path, e.Reason)
}

func (e *CorruptArtifactError) Unwrap() error {
	return e.Err
}

// StaleArtifactError is returned in load mode when the artifact was computed
// for a different layout or parameter set.
type StaleArtifactError struct {
	Path string
	Want string
	Got  string
}

func (e *StaleArtifactError) Error() string {
	return fmt.Sprintf("stale heatmap artifact %s: computed for key %.12s, layout needs %.12s", e.Path, e.Got, e.Want)
}
