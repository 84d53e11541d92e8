package errors

import (
	"fmt"
	"os/exec"
)

// ConfigNotFound creates a configuration not found error
func ConfigNotFound(path string) *KernelError {
	return New(ErrCodeConfigNotFound, fmt.Sprintf("configuration file not found: %s", path)).
		WithDetail("path", path)
}

// ConfigInvalid creates an invalid configuration error
func ConfigInvalid(reason string) *KernelError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid configuration: %s", reason))
}

// RequestFraming creates an error for a malformed or incomplete inbound request
func RequestFraming(reason string, err error) *KernelError {
	if err == nil {
		return New(ErrCodeRequestFraming, fmt.Sprintf("malformed request: %s", reason))
	}
	return Wrap(err, ErrCodeRequestFraming, fmt.Sprintf("malformed request: %s", reason))
}

// ToolchainLaunch creates an error for a toolchain that could not be started
func ToolchainLaunch(binary string, err error) *KernelError {
	kernelErr := Wrap(err, ErrCodeToolchainLaunch, fmt.Sprintf("failed to launch toolchain: %s", binary)).
		WithDetail("binary", binary)

	if execErr, ok := err.(*exec.Error); ok {
		kernelErr = kernelErr.WithDetail("name", execErr.Name)
	}

	return kernelErr
}

// ExtractionFailed creates an error for output whose sentinels could not be located
func ExtractionFailed(missing string) *KernelError {
	return New(ErrCodeExtractionFailure, fmt.Sprintf("output sentinel not found: %s", missing)).
		WithDetail("missing", missing)
}

// Filesystem creates an error for artifact write or directory creation failures
func Filesystem(op, path string, err error) *KernelError {
	return Wrap(err, ErrCodeFilesystem, fmt.Sprintf("%s %s", op, path)).
		WithDetail("op", op).
		WithDetail("path", path)
}

// CommandTimeout creates a toolchain timeout error
func CommandTimeout(binary string, timeout string) *KernelError {
	return New(ErrCodeCommandTimeout,
		fmt.Sprintf("toolchain '%s' did not finish within %s", binary, timeout)).
		WithDetail("binary", binary).
		WithDetail("timeout", timeout)
}

// DaemonNotRunning creates an error for commands that require a running kernel
func DaemonNotRunning(address string) *KernelError {
	return New(ErrCodeDaemonNotRunning, "kernel is not running").
		WithDetail("address", address)
}

// DaemonRunning creates an error for a second kernel instance
func DaemonRunning(pid int) *KernelError {
	return New(ErrCodeDaemonRunning, fmt.Sprintf("kernel already running with PID %d", pid)).
		WithDetail("pid", pid)
}
