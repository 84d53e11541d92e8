package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/internal/daemon/store"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/outcome"
	"github.com/grovetools/cellkernel/pkg/toolchain"
	"github.com/grovetools/cellkernel/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.Layout.TempRoot = t.TempDir()
	return opts
}

func newTestEngine(t *testing.T, runner toolchain.Runner) (*Engine, Options) {
	t.Helper()
	opts := testOptions(t)
	return New(store.New(), opts, nil, WithRunner(runner)), opts
}

func TestExecuteReturnsOnlyActiveCellOutput(t *testing.T) {
	eng, opts := newTestEngine(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))
	ctx := context.Background()

	eng.Stage(Request{Fragment: 1, Index: 0, Filename: "nb.ipynb", Contents: "let x = 1;\nprintln!(\"from first\");"})
	out, err := eng.Execute(ctx, Request{Fragment: 2, Index: 1, Filename: "nb.ipynb", Contents: `println!("from second");`})
	require.NoError(t, err)

	assert.Equal(t, outcome.KindSuccess, out.Kind)
	assert.Equal(t, "from second", out.Payload)
	assert.Equal(t, 2, out.Fragment)

	dir := filepath.Join(opts.Layout.TempRoot, "cellkernel")
	assert.FileExists(t, filepath.Join(dir, opts.Files.Source))
	assert.FileExists(t, filepath.Join(dir, opts.Files.Manifest))

	st := eng.Store().Get()
	assert.Equal(t, store.PhaseSuccess, st.Phase)
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, 2, st.CellCount)
}

func TestExecuteBuildFailure(t *testing.T) {
	stderr := "error[E0425]: cannot find value `y` in this scope\n"
	eng, _ := newTestEngine(t, testutil.StaticRunner(toolchain.Result{Stderr: []byte(stderr), ExitCode: 101}))

	out, err := eng.Execute(context.Background(), Request{Fragment: 1, Filename: "nb", Contents: "y"})
	require.NoError(t, err)
	assert.Equal(t, outcome.KindBuildFailure, out.Kind)
	assert.Equal(t, stderr, out.Payload)
	assert.Equal(t, store.PhaseBuildFailure, eng.Store().Get().Phase)
}

func TestExecuteExtractionFailure(t *testing.T) {
	eng, _ := newTestEngine(t, testutil.StaticRunner(toolchain.Result{Stdout: []byte("unrelated\n")}))

	out, err := eng.Execute(context.Background(), Request{Fragment: 1, Filename: "nb", Contents: "let a = 1;"})
	require.NoError(t, err)
	assert.Equal(t, outcome.KindExtractionFailure, out.Kind)
	assert.Equal(t, store.PhaseExtractionFailure, eng.Store().Get().Phase)
}

func TestExecuteLaunchFailureKeepsSession(t *testing.T) {
	launchErr := errors.ToolchainLaunch("cargo", &exec.Error{Name: "cargo", Err: exec.ErrNotFound})
	eng, _ := newTestEngine(t, testutil.ErrorRunner(launchErr))

	_, err := eng.Execute(context.Background(), Request{Fragment: 7, Filename: "nb", Contents: "let a = 1;"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCodeToolchainLaunch))

	assert.Equal(t, store.PhaseIdle, eng.Store().Get().Phase)
	cells := eng.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, 7, cells[0].Fragment)
}

func TestExecuteFilesystemFailure(t *testing.T) {
	opts := testOptions(t)
	blocker := filepath.Join(opts.Layout.TempRoot, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))
	opts.Layout.TempRoot = blocker

	runner := testutil.StaticRunner(toolchain.Result{})
	eng := New(nil, opts, nil, WithRunner(runner))

	_, err := eng.Execute(context.Background(), Request{Fragment: 1, Filename: "nb", Contents: "let a = 1;"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeFilesystem, errors.GetCode(err))
	assert.Empty(t, runner.Calls(), "toolchain must not run without an artifact")
	assert.Equal(t, store.PhaseIdle, eng.Store().Get().Phase)
}

func TestSessionSwitchDiscardsCells(t *testing.T) {
	eng, _ := newTestEngine(t, testutil.StaticRunner(toolchain.Result{}))
	ctx := context.Background()

	eng.Stage(Request{Fragment: 1, Filename: "a.ipynb", Workspace: "/ws", Contents: "let a = 1;"})
	eng.Stage(Request{Fragment: 2, Index: 1, Filename: "a.ipynb", Workspace: "/ws", Contents: "let b = 2;"})
	require.Len(t, eng.Cells(), 2)

	_, err := eng.Execute(ctx, Request{Fragment: 1, Filename: "b.ipynb", Workspace: "/ws", Contents: "let c = 3;"})
	require.NoError(t, err)

	cells := eng.Cells()
	require.Len(t, cells, 1)
	assert.Equal(t, "let c = 3;", cells[0].Contents)
	assert.Equal(t, "b.ipynb", eng.Store().Get().Filename)
}

func TestResetEmptiesSession(t *testing.T) {
	eng, _ := newTestEngine(t, testutil.StaticRunner(toolchain.Result{}))
	eng.Stage(Request{Fragment: 1, Filename: "nb", Contents: "let a = 1;"})

	eng.Reset()
	assert.Empty(t, eng.Cells())
	assert.Zero(t, eng.Store().Get().CellCount)
}

func TestPreview(t *testing.T) {
	eng, _ := newTestEngine(t, testutil.StaticRunner(toolchain.Result{}))
	eng.Stage(Request{Fragment: 1, Filename: "nb", Contents: "use rand::Rng;\nlet a = 1;"})

	art, err := eng.Preview(1)
	require.NoError(t, err)
	assert.Contains(t, art.Source, "use rand::Rng;")
	assert.Equal(t, []string{"rand"}, art.Dependencies)
	assert.NotNil(t, art.Markers)
}

func TestExecuteSerializesCycles(t *testing.T) {
	var inFlight, maxInFlight int32
	runner := &testutil.FakeRunner{Fn: func(context.Context, string) (*toolchain.Result, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			m := atomic.LoadInt32(&maxInFlight)
			if n <= m || atomic.CompareAndSwapInt32(&maxInFlight, m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		return &toolchain.Result{}, nil
	}}
	eng, _ := newTestEngine(t, runner)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := eng.Execute(context.Background(), Request{
				Fragment: i, Index: i, Filename: "nb", Contents: fmt.Sprintf("let v%d = %d;", i, i),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
	assert.Len(t, runner.Calls(), 8)
	assert.Len(t, eng.Cells(), 8)
}

func TestReconfigureKeepsSessionAndFixedRunner(t *testing.T) {
	runner := testutil.StaticRunner(toolchain.Result{Stderr: []byte("FATAL: boom")})
	eng, opts := newTestEngine(t, runner)
	eng.Stage(Request{Fragment: 1, Filename: "nb", Contents: "let a = 1;"})

	opts.FailureMarkers = []string{"FATAL"}
	eng.Reconfigure(opts)

	assert.Len(t, eng.Cells(), 1)
	out, err := eng.Execute(context.Background(), Request{Fragment: 1, Filename: "nb", Contents: "let a = 1;"})
	require.NoError(t, err)
	assert.Equal(t, outcome.KindBuildFailure, out.Kind)
	assert.Equal(t, []string{"FATAL"}, eng.Options().FailureMarkers)
}

func TestPhaseSequence(t *testing.T) {
	st := store.New()
	ch := st.Subscribe()
	defer st.Unsubscribe(ch)

	eng := New(st, testOptions(t), nil, WithRunner(testutil.StaticRunner(toolchain.Result{})))
	_, err := eng.Execute(context.Background(), Request{Fragment: 1, Filename: "nb", Contents: "let a = 1;"})
	require.NoError(t, err)

	var phases []store.Phase
	for len(ch) > 0 {
		u := <-ch
		switch u.Type {
		case store.UpdatePhase:
			phases = append(phases, u.Payload.(store.Phase))
		case store.UpdateOutcome:
			phases = append(phases, store.PhaseFor(u.Payload.(*outcome.Outcome).Kind))
		}
	}
	assert.Equal(t, []store.Phase{
		store.PhaseAssembling,
		store.PhaseInvoking,
		store.PhaseClassifying,
		store.PhaseSuccess,
	}, phases)
}
