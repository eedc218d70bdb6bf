package ml

import (
	"fmt"
	"strings"
)

// ArtifactLoadError reports a bundle file that is missing, unreadable or malformed.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load bundle: %v", e.Err)
	}
	return fmt.Sprintf("load bundle %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// SchemaMismatchError reports record keys that do not line up with the feature schema.
type SchemaMismatchError struct {
	Missing    []string
	Unexpected []string
}

func (e *SchemaMismatchError) Error() string {
	parts := make([]string, 0, 2)
	if len(e.Missing) > 0 {
		parts = append(parts, "missing "+strings.Join(e.Missing, ", "))
	}
	if len(e.Unexpected) > 0 {
		parts = append(parts, "unexpected "+strings.Join(e.Unexpected, ", "))
	}
	return "schema mismatch: " + strings.Join(parts, "; ")
}

// ParseError reports a raw value that cannot be coerced to its feature's type.
type ParseError struct {
	Feature string
	Value   string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("feature %s: cannot parse %q: %v", e.Feature, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ScoringError is returned by Score for every failure. Feature is empty when the
// failure cannot be tied to a single feature.
type ScoringError struct {
	Feature string
	Err     error
}

func (e *ScoringError) Error() string {
	if e.Feature == "" {
		return fmt.Sprintf("scoring failed: %v", e.Err)
	}
	return fmt.Sprintf("scoring failed on %s: %v", e.Feature, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }
