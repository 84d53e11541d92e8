package outcome

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wrap(m assemble.Markers, before, active, after string) string {
	return before + m.Begin + "\n" + active + "\n" + m.End + "\n" + after
}

func TestClassifySuccess(t *testing.T) {
	m := assemble.DefaultMarkers()
	res := &toolchain.Result{
		Stdout:   []byte(wrap(m, "earlier cell\n", "42", "later cell\n")),
		Stderr:   []byte("   Compiling output v0.0.1\n    Finished dev\n"),
		Duration: 2 * time.Second,
	}

	out := NewClassifier(nil).Classify(res, &m)
	assert.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, "42", out.Payload)
	assert.Equal(t, 2*time.Second, out.Duration)
	assert.NotEqual(t, uuid.Nil, out.ID)
	assert.NoError(t, out.Err())
}

func TestClassifyBuildFailure(t *testing.T) {
	m := assemble.DefaultMarkers()
	stderr := "error[E0425]: cannot find value `y` in this scope\n"
	res := &toolchain.Result{
		Stdout:   []byte(wrap(m, "", "ignored", "")),
		Stderr:   []byte(stderr),
		ExitCode: 101,
	}

	out := NewClassifier(nil).Classify(res, &m)
	assert.Equal(t, KindBuildFailure, out.Kind)
	assert.Equal(t, stderr, out.Payload, "stderr is returned verbatim")
	assert.Equal(t, 101, out.ExitCode)
	assert.True(t, errors.Is(out.Err(), errors.ErrCodeBuildFailure))
}

func TestClassifyPanic(t *testing.T) {
	m := assemble.DefaultMarkers()
	res := &toolchain.Result{
		Stdout: []byte(m.Begin + "\n"),
		Stderr: []byte("thread 'main' panicked at src/main.rs:4:5\n"),
	}

	out := NewClassifier(nil).Classify(res, &m)
	assert.Equal(t, KindBuildFailure, out.Kind)
}

func TestClassifyExtractionFailure(t *testing.T) {
	m := assemble.DefaultMarkers()

	t.Run("missing begin", func(t *testing.T) {
		res := &toolchain.Result{Stdout: []byte("no sentinels here\n")}
		out := NewClassifier(nil).Classify(res, &m)
		assert.Equal(t, KindExtractionFailure, out.Kind)
		assert.Equal(t, m.Begin, out.Payload)
		assert.True(t, errors.Is(out.Err(), errors.ErrCodeExtractionFailure))
	})

	t.Run("missing end", func(t *testing.T) {
		res := &toolchain.Result{Stdout: []byte(m.Begin + "\npartial\n")}
		out := NewClassifier(nil).Classify(res, &m)
		assert.Equal(t, KindExtractionFailure, out.Kind)
		assert.Equal(t, m.End, out.Payload)
	})
}

func TestClassifyWithoutMarkers(t *testing.T) {
	res := &toolchain.Result{Stdout: []byte("\n  whole program output \n")}
	out := NewClassifier(nil).Classify(res, nil)
	assert.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, "whole program output", out.Payload)
}

func TestExitCodeIsNotTheSignal(t *testing.T) {
	m := assemble.DefaultMarkers()
	res := &toolchain.Result{
		Stdout:   []byte(wrap(m, "", "done", "")),
		ExitCode: 3,
	}
	out := NewClassifier(nil).Classify(res, &m)
	assert.Equal(t, KindSuccess, out.Kind)
	assert.Equal(t, 3, out.ExitCode)
}

func TestCustomFailureMarkers(t *testing.T) {
	c := NewClassifier([]string{"FATAL"})
	assert.True(t, c.Failed([]byte("FATAL: boom")))
	assert.False(t, c.Failed([]byte("error: ignored by this profile")))
}

func TestExtractIsLeftInverseOfWrapping(t *testing.T) {
	m := assemble.DefaultMarkers()
	for _, text := range []string{"", "1", "multi\nline\noutput", "  padded  "} {
		payload, _, ok := Extract(wrap(m, "noise\n", text, "more noise\n"), m)
		require.True(t, ok)
		assert.Equal(t, strings.TrimSpace(text), payload)
	}
}
