// Package outcome turns raw toolchain output into the result shown for one
// cell.
package outcome

import (
	"bytes"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/toolchain"
)

// Kind identifies how a run ended.
type Kind string

const (
	KindSuccess           Kind = "success"
	KindBuildFailure      Kind = "build_failure"
	KindExtractionFailure Kind = "extraction_failure"
)

// DefaultFailureMarkers are the stderr substrings that mark a failed build
// or a runtime panic.
var DefaultFailureMarkers = []string{"error:", "error[", "panicked at"}

// Outcome is the classified result of one execution cycle.
type Outcome struct {
	ID       uuid.UUID     `json:"id"`
	Kind     Kind          `json:"kind"`
	Payload  string        `json:"payload"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Fragment int           `json:"fragment"`
}

// Err returns the coded error for non-success outcomes, or nil.
func (o *Outcome) Err() error {
	switch o.Kind {
	case KindSuccess:
		return nil
	case KindBuildFailure:
		return errors.New(errors.ErrCodeBuildFailure, "toolchain reported a failure").
			WithDetail("exit_code", o.ExitCode)
	default:
		return errors.ExtractionFailed(o.Payload)
	}
}

// Classifier inspects a toolchain result.
type Classifier struct {
	// FailureMarkers are matched against stderr. Empty uses the defaults.
	FailureMarkers []string
}

// NewClassifier creates a classifier with the given stderr markers.
func NewClassifier(markers []string) *Classifier {
	return &Classifier{FailureMarkers: markers}
}

func (c *Classifier) markers() []string {
	if len(c.FailureMarkers) == 0 {
		return DefaultFailureMarkers
	}
	return c.FailureMarkers
}

// Failed reports whether stderr carries any failure marker.
func (c *Classifier) Failed(stderr []byte) bool {
	for _, m := range c.markers() {
		if bytes.Contains(stderr, []byte(m)) {
			return true
		}
	}
	return false
}

// Classify decides the outcome of res. Stderr failure markers win over
// everything; stdout is not searched in that case. With sentinels the
// payload is the trimmed text strictly between them. Without sentinels the
// whole trimmed stdout is returned.
func (c *Classifier) Classify(res *toolchain.Result, m *assemble.Markers) *Outcome {
	out := &Outcome{
		ID:       uuid.New(),
		ExitCode: res.ExitCode,
		Duration: res.Duration,
	}

	if c.Failed(res.Stderr) {
		out.Kind = KindBuildFailure
		out.Payload = string(res.Stderr)
		return out
	}

	stdout := string(res.Stdout)
	if m == nil {
		out.Kind = KindSuccess
		out.Payload = strings.TrimSpace(stdout)
		return out
	}

	payload, missing, ok := Extract(stdout, *m)
	if !ok {
		out.Kind = KindExtractionFailure
		out.Payload = missing
		return out
	}
	out.Kind = KindSuccess
	out.Payload = payload
	return out
}

// Extract returns the trimmed text between the first begin sentinel and the
// first end sentinel after it. On failure it names the missing sentinel.
func Extract(stdout string, m assemble.Markers) (payload, missing string, ok bool) {
	start := strings.Index(stdout, m.Begin)
	if start < 0 {
		return "", m.Begin, false
	}
	start += len(m.Begin)

	end := strings.Index(stdout[start:], m.End)
	if end < 0 {
		return "", m.End, false
	}
	return strings.TrimSpace(stdout[start : start+end]), "", true
}
