// Package toolchain runs the external build-and-run tool against an
// assembled artifact.
package toolchain

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/grovetools/cellkernel/command"
	"github.com/grovetools/cellkernel/errors"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Result is the raw outcome of one toolchain invocation.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner performs one synchronous build-and-run in an artifact directory.
type Runner interface {
	Run(ctx context.Context, dir string) (*Result, error)
}

// Options configures the toolchain command line.
type Options struct {
	Binary  string            `json:"binary"`
	Args    []string          `json:"args"`
	Env     map[string]string `json:"env,omitempty"`
	EnvFile string            `json:"env_file,omitempty"`
	// Timeout of zero leaves the invocation unbounded.
	Timeout time.Duration `json:"timeout"`
}

// DefaultOptions runs `cargo run`.
func DefaultOptions() Options {
	return Options{
		Binary: "cargo",
		Args:   []string{"run"},
	}
}

// Invoker is the Runner backed by a real process.
type Invoker struct {
	opts    Options
	builder *command.SafeBuilder
	logger  *logrus.Entry
}

// NewInvoker creates an Invoker. A nil executor uses os/exec directly.
func NewInvoker(opts Options, executor command.Executor, logger *logrus.Entry) *Invoker {
	builder := command.NewSafeBuilderWithExecutor(executor)
	builder.SetTimeout(opts.Timeout)
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Invoker{opts: opts, builder: builder, logger: logger}
}

// Options returns the invoker's configuration.
func (i *Invoker) Options() Options {
	return i.opts
}

// CommandLine renders the invocation for display.
func (i *Invoker) CommandLine() string {
	return strings.TrimSpace(i.opts.Binary + " " + strings.Join(i.opts.Args, " "))
}

// Run executes the toolchain once in dir and waits for it to exit. A
// non-zero exit status is reported in the Result, not as an error; only a
// failure to start the process (or a configured timeout) is an error.
func (i *Invoker) Run(ctx context.Context, dir string) (*Result, error) {
	if err := i.builder.Validate("dir", dir); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInvalidInput, "invalid artifact directory").
			WithDetail("dir", dir)
	}

	env, err := i.environment()
	if err != nil {
		return nil, err
	}

	cmd, err := i.builder.Build(ctx, i.opts.Binary, i.opts.Args...)
	if err != nil {
		return nil, errors.ToolchainLaunch(i.opts.Binary, err)
	}
	defer cmd.Release()

	var stdout, stderr bytes.Buffer
	proc := cmd.Exec()
	proc.Dir = dir
	proc.Env = env
	proc.Stdout = &stdout
	proc.Stderr = &stderr

	i.logger.WithFields(logrus.Fields{
		"command": i.CommandLine(),
		"dir":     dir,
	}).Debug("Invoking toolchain")

	start := time.Now()
	runErr := proc.Run()
	result := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: 0,
		Duration: time.Since(start),
	}

	if runErr != nil {
		exitErr, ok := runErr.(*exec.ExitError)
		if !ok {
			return nil, errors.ToolchainLaunch(i.opts.Binary, runErr)
		}
		switch cmd.Context().Err() {
		case context.DeadlineExceeded:
			if cmd.Timeout() > 0 {
				return nil, errors.CommandTimeout(i.opts.Binary, cmd.Timeout().String())
			}
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeCommandTimeout, "toolchain deadline exceeded")
		case context.Canceled:
			return nil, errors.Wrap(ctx.Err(), errors.ErrCodeInternal, "toolchain invocation cancelled")
		}
		result.ExitCode = exitErr.ExitCode()
	}

	i.logger.WithFields(logrus.Fields{
		"exit_code": result.ExitCode,
		"duration":  result.Duration.Round(time.Millisecond),
		"stdout":    len(result.Stdout),
		"stderr":    len(result.Stderr),
	}).Debug("Toolchain finished")

	return result, nil
}

// environment builds the child environment: the current process env, then
// the env file, then explicit overrides.
func (i *Invoker) environment() ([]string, error) {
	env := os.Environ()

	if i.opts.EnvFile != "" {
		fileVars, err := godotenv.Read(i.opts.EnvFile)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read toolchain env file").
				WithDetail("path", i.opts.EnvFile)
		}
		env = appendSorted(env, fileVars)
	}

	for key := range i.opts.Env {
		if err := i.builder.Validate("envKey", key); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid toolchain environment")
		}
	}
	return appendSorted(env, i.opts.Env), nil
}

func appendSorted(env []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, vars[k]))
	}
	return env
}
