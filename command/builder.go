package command

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	// MaxTimeout is the maximum allowed timeout
	MaxTimeout = 30 * time.Minute
)

var (
	binaryPattern = regexp.MustCompile(`^[a-zA-Z0-9./][a-zA-Z0-9_./+-]*$`)
	envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// SafeBuilder provides validated command construction for the toolchain.
type SafeBuilder struct {
	timeout    time.Duration
	validators map[string]func(string) error
	executor   Executor
}

// NewSafeBuilder creates a new SafeBuilder instance with a RealExecutor
func NewSafeBuilder() *SafeBuilder {
	return NewSafeBuilderWithExecutor(&RealExecutor{})
}

// NewSafeBuilderWithExecutor creates a new SafeBuilder with a custom Executor
func NewSafeBuilderWithExecutor(exec Executor) *SafeBuilder {
	if exec == nil {
		exec = &RealExecutor{}
	}
	return &SafeBuilder{
		validators: makeDefaultValidators(),
		executor:   exec,
	}
}

// makeDefaultValidators returns the default set of validators
func makeDefaultValidators() map[string]func(string) error {
	return map[string]func(string) error{
		"binary": validateBinary,
		"arg":    validateArg,
		"dir":    validateDir,
		"envKey": validateEnvKey,
	}
}

// validateBinary accepts bare tool names and absolute or relative paths.
func validateBinary(name string) error {
	if name == "" {
		return fmt.Errorf("binary cannot be empty")
	}
	if !binaryPattern.MatchString(name) {
		return fmt.Errorf("invalid binary name: %s", name)
	}
	return nil
}

// validateArg rejects arguments that could only matter to a shell.
func validateArg(arg string) error {
	if strings.ContainsAny(arg, "\x00\n") {
		return fmt.Errorf("argument contains control characters: %q", arg)
	}
	return nil
}

// validateDir requires a clean absolute working directory.
func validateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("working directory cannot be empty")
	}
	if !filepath.IsAbs(dir) {
		return fmt.Errorf("working directory must be absolute: %s", dir)
	}
	if strings.ContainsRune(dir, 0) {
		return fmt.Errorf("working directory contains NUL")
	}
	return nil
}

// validateEnvKey ensures environment variable names are portable.
func validateEnvKey(key string) error {
	if !envKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid environment variable name: %q", key)
	}
	return nil
}

// Command represents a validated command configuration
type Command struct {
	parent   context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	name     string
	args     []string
	timeout  time.Duration
	executor Executor
}

// Build creates a new command after validating the binary and arguments.
// The command inherits the builder's timeout; zero means no deadline.
func (sb *SafeBuilder) Build(ctx context.Context, name string, args ...string) (*Command, error) {
	if err := validateBinary(name); err != nil {
		return nil, err
	}
	for _, arg := range args {
		if err := validateArg(arg); err != nil {
			return nil, err
		}
	}

	c := &Command{
		parent:   ctx,
		ctx:      ctx,
		cancel:   func() {},
		name:     name,
		args:     args,
		executor: sb.executor,
	}
	if sb.timeout > 0 {
		c.WithTimeout(sb.timeout)
	}
	return c, nil
}

// SetTimeout sets the deadline applied to commands built afterwards.
func (sb *SafeBuilder) SetTimeout(timeout time.Duration) {
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}
	sb.timeout = timeout
}

// WithTimeout bounds the command's run time
func (c *Command) WithTimeout(timeout time.Duration) *Command {
	if timeout > MaxTimeout {
		timeout = MaxTimeout
	}

	c.cancel()
	c.ctx, c.cancel = context.WithTimeout(c.parent, timeout)
	c.timeout = timeout
	return c
}

// Timeout returns the applied deadline, or zero.
func (c *Command) Timeout() time.Duration {
	return c.timeout
}

// Context returns the context the command runs under.
func (c *Command) Context() context.Context {
	return c.ctx
}

// Release frees the timeout context. Call it after the command finishes.
func (c *Command) Release() {
	c.cancel()
}

// Validate validates specific arguments
func (sb *SafeBuilder) Validate(argType string, value string) error {
	validator, exists := sb.validators[argType]
	if !exists {
		return fmt.Errorf("no validator for argument type: %s", argType)
	}

	return validator(value)
}

// Exec creates and returns an exec.Cmd
func (c *Command) Exec() *exec.Cmd {
	return c.executor.CommandContext(c.ctx, c.name, c.args...) //nolint:gosec // SafeBuilder provides validation
}
