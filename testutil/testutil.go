// Package testutil holds helpers shared by package tests.
package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/grovetools/cellkernel/pkg/toolchain"
	"github.com/stretchr/testify/require"
)

// RequireBinary skips the test if name is not on PATH.
func RequireBinary(t *testing.T, name string) {
	t.Helper()

	if _, err := exec.LookPath(name); err != nil {
		t.Skipf("%s not available", name)
	}
}

// RandomString generates a random string of the specified length
func RandomString(length int) string {
	bytes := make([]byte, length/2+1)
	if _, err := rand.Read(bytes); err != nil {
		panic(err)
	}
	return hex.EncodeToString(bytes)[:length]
}

// WriteFile writes content under dir and returns the full path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

// FakeRunner is a toolchain.Runner that records the directories it was
// asked to run in and answers with Fn.
type FakeRunner struct {
	Fn func(ctx context.Context, dir string) (*toolchain.Result, error)

	mu   sync.Mutex
	dirs []string
}

// Run implements toolchain.Runner.
func (f *FakeRunner) Run(ctx context.Context, dir string) (*toolchain.Result, error) {
	f.mu.Lock()
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()

	if f.Fn == nil {
		return &toolchain.Result{}, nil
	}
	return f.Fn(ctx, dir)
}

// Calls returns the directories passed to Run so far.
func (f *FakeRunner) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.dirs...)
}

// StaticRunner always returns a copy of res.
func StaticRunner(res toolchain.Result) *FakeRunner {
	return &FakeRunner{Fn: func(context.Context, string) (*toolchain.Result, error) {
		out := res
		return &out, nil
	}}
}

// ErrorRunner always fails with err.
func ErrorRunner(err error) *FakeRunner {
	return &FakeRunner{Fn: func(context.Context, string) (*toolchain.Result, error) {
		return nil, err
	}}
}

var printlnLiteral = regexp.MustCompile(`^println!\("((?:[^"\\]|\\.)*)"\);$`)

// PrintlnRunner pretends to compile and run the assembled source file in
// dir: every println! of a plain string literal inside main is echoed to
// stdout in order. Any other statement is ignored.
func PrintlnRunner(sourceFile string) *FakeRunner {
	return &FakeRunner{Fn: func(_ context.Context, dir string) (*toolchain.Result, error) {
		src, err := os.ReadFile(filepath.Join(dir, sourceFile))
		if err != nil {
			return nil, err
		}
		var out strings.Builder
		for _, line := range strings.Split(string(src), "\n") {
			m := printlnLiteral.FindStringSubmatch(strings.TrimSpace(line))
			if m == nil {
				continue
			}
			out.WriteString(strings.ReplaceAll(m[1], `\"`, `"`))
			out.WriteString("\n")
		}
		return &toolchain.Result{Stdout: []byte(out.String())}, nil
	}}
}
