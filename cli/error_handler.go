package cli

import (
	"fmt"
	"io"

	"github.com/grovetools/cellkernel/errors"
)

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to out.
func NewErrorHandler(verbose bool, out io.Writer) *ErrorHandler {
	return &ErrorHandler{
		Verbose: verbose,
		Out:     out,
	}
}

// Handle prints a hint for well-known error codes and returns err unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}

	kernelErr, _ := errors.As(err)
	detail := func(key string) interface{} {
		if kernelErr == nil {
			return nil
		}
		return kernelErr.Details[key]
	}

	switch errors.GetCode(err) {
	case errors.ErrCodeConfigNotFound:
		fmt.Fprintf(h.Out, "❌ Configuration not found: %v\n", detail("path"))
		fmt.Fprintf(h.Out, "Pass --config or run 'cellkernel config show' to see the defaults.\n")

	case errors.ErrCodeConfigInvalid, errors.ErrCodeConfigValidation:
		fmt.Fprintf(h.Out, "❌ %v\n", err)
		fmt.Fprintf(h.Out, "Run 'cellkernel config schema' to see the accepted keys.\n")

	case errors.ErrCodeDaemonNotRunning:
		fmt.Fprintf(h.Out, "❌ No kernel is listening at %v\n", detail("address"))
		fmt.Fprintf(h.Out, "Start one with 'cellkernel serve'.\n")

	case errors.ErrCodeDaemonRunning:
		fmt.Fprintf(h.Out, "❌ A kernel is already running (PID %v)\n", detail("pid"))
		fmt.Fprintf(h.Out, "Stop it with 'cellkernel stop'.\n")

	case errors.ErrCodeToolchainLaunch:
		fmt.Fprintf(h.Out, "❌ Could not start the toolchain %v\n", detail("binary"))
		fmt.Fprintf(h.Out, "Check toolchain.binary in cellkernel.yml and your PATH.\n")

	case errors.ErrCodeCommandTimeout:
		fmt.Fprintf(h.Out, "❌ The toolchain did not finish within %v\n", detail("timeout"))
		fmt.Fprintf(h.Out, "Raise toolchain.timeout in cellkernel.yml.\n")

	default:
		fmt.Fprintf(h.Out, "❌ Error: %v\n", err)
	}

	if h.Verbose && kernelErr != nil {
		fmt.Fprintf(h.Out, "\nError details:\n%s\n", kernelErr.ToJSON())
	}
	return err
}
