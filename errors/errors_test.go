package errors

import (
	"fmt"
	"os/exec"
	"testing"
)

func TestKernelError(t *testing.T) {
	// Test basic error creation
	err := New(ErrCodeInvalidInput, "bad input")
	if err.Code != ErrCodeInvalidInput {
		t.Errorf("expected code %s, got %s", ErrCodeInvalidInput, err.Code)
	}

	// Test error wrapping
	cause := fmt.Errorf("underlying error")
	wrapped := Wrap(cause, ErrCodeFilesystem, "write failed")

	if wrapped.Unwrap() != cause {
		t.Error("Unwrap should return the cause")
	}

	if !Is(wrapped, ErrCodeFilesystem) {
		t.Error("Is should return true for matching code")
	}

	if Is(wrapped, ErrCodeToolchainLaunch) {
		t.Error("Is should return false for non-matching code")
	}

	detailed := err.WithDetail("field", "fragment").WithDetail("value", 3)
	if detailed.Details["field"] != "fragment" {
		t.Error("WithDetail should add details")
	}
}

func TestIsThroughFmtWrap(t *testing.T) {
	inner := ExtractionFailed("begin")
	outer := fmt.Errorf("request 7: %w", inner)

	if !Is(outer, ErrCodeExtractionFailure) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
	if GetCode(outer) != ErrCodeExtractionFailure {
		t.Errorf("GetCode = %s, want %s", GetCode(outer), ErrCodeExtractionFailure)
	}

	got, ok := As(outer)
	if !ok || got != inner {
		t.Error("As should return the wrapped KernelError")
	}
}

func TestErrorConstructors(t *testing.T) {
	launch := ToolchainLaunch("cargo", &exec.Error{Name: "cargo", Err: exec.ErrNotFound})
	if launch.Code != ErrCodeToolchainLaunch {
		t.Errorf("expected code %s, got %s", ErrCodeToolchainLaunch, launch.Code)
	}
	if launch.Details["name"] != "cargo" {
		t.Error("ToolchainLaunch should include the exec name")
	}

	fsErr := Filesystem("write", "/tmp/x/main.rs", fmt.Errorf("disk full"))
	if fsErr.Details["path"] != "/tmp/x/main.rs" {
		t.Error("Filesystem should include path detail")
	}

	framing := RequestFraming("missing body", nil)
	if framing.Cause != nil {
		t.Error("RequestFraming without cause should not wrap")
	}
	if GetCode(framing) != ErrCodeRequestFraming {
		t.Errorf("expected %s, got %s", ErrCodeRequestFraming, GetCode(framing))
	}

	if GetCode(nil) != "" {
		t.Error("GetCode(nil) should be empty")
	}
}
