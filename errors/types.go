package errors

import (
	"encoding/json"
	"fmt"
)

// ErrorCode represents a specific error condition
type ErrorCode string

const (
	// Configuration errors
	ErrCodeConfigNotFound   ErrorCode = "CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    ErrorCode = "CONFIG_INVALID"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"

	// Request pipeline errors
	ErrCodeRequestFraming    ErrorCode = "REQUEST_FRAMING"
	ErrCodeToolchainLaunch   ErrorCode = "TOOLCHAIN_LAUNCH"
	ErrCodeBuildFailure      ErrorCode = "BUILD_FAILURE"
	ErrCodeExtractionFailure ErrorCode = "EXTRACTION_FAILURE"
	ErrCodeFilesystem        ErrorCode = "FILESYSTEM"

	// Command execution errors
	ErrCodeCommandTimeout ErrorCode = "COMMAND_TIMEOUT"

	// Daemon errors
	ErrCodeDaemonNotRunning ErrorCode = "DAEMON_NOT_RUNNING"
	ErrCodeDaemonRunning    ErrorCode = "DAEMON_RUNNING"

	// General errors
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
)

// KernelError represents a structured error with context
type KernelError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *KernelError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *KernelError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a detail to the error
func (e *KernelError) WithDetail(key string, value interface{}) *KernelError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ToJSON converts the error to JSON
func (e *KernelError) ToJSON() string {
	data, _ := json.MarshalIndent(e, "", "  ")
	return string(data)
}

// New creates a new KernelError
func New(code ErrorCode, message string) *KernelError {
	return &KernelError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a KernelError
func Wrap(err error, code ErrorCode, message string) *KernelError {
	return &KernelError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether the outermost KernelError in err's chain has code.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

// GetCode returns the code of the outermost KernelError, or "".
func GetCode(err error) ErrorCode {
	if kernelErr, ok := As(err); ok {
		return kernelErr.Code
	}
	return ""
}

// As returns the first KernelError in the chain, if any.
func As(err error) (*KernelError, bool) {
	for err != nil {
		if kernelErr, ok := err.(*KernelError); ok {
			return kernelErr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
