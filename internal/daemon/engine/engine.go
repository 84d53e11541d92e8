// Package engine runs the per-request pipeline of the kernel: record the
// cell, assemble the program, invoke the toolchain and classify its output.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/grovetools/cellkernel/command"
	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/internal/daemon/store"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/notebook"
	"github.com/grovetools/cellkernel/pkg/outcome"
	"github.com/grovetools/cellkernel/pkg/profiling"
	"github.com/grovetools/cellkernel/pkg/toolchain"
	"github.com/sirupsen/logrus"
)

// Request is one cell execution as sent by the editor.
type Request struct {
	Index     int    `json:"index"`
	Fragment  int    `json:"fragment"`
	Filename  string `json:"filename"`
	Workspace string `json:"workspace"`
	Contents  string `json:"contents"`
}

// Options holds everything the pipeline can be reconfigured with.
type Options struct {
	Layout         notebook.Layout      `json:"layout"`
	Markers        assemble.Markers     `json:"markers"`
	Package        assemble.PackageInfo `json:"package"`
	Files          assemble.FileNames   `json:"files"`
	Toolchain      toolchain.Options    `json:"toolchain"`
	FailureMarkers []string             `json:"failure_markers"`
}

// DefaultOptions returns the cargo profile with artifacts in the temp dir.
func DefaultOptions() Options {
	return Options{
		Layout:         notebook.Layout{Location: notebook.LocationTemp},
		Markers:        assemble.DefaultMarkers(),
		Package:        assemble.DefaultPackageInfo(),
		Files:          assemble.DefaultFileNames(),
		Toolchain:      toolchain.DefaultOptions(),
		FailureMarkers: outcome.DefaultFailureMarkers,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithRunner fixes the toolchain runner. Reconfigure keeps it.
func WithRunner(r toolchain.Runner) Option {
	return func(e *Engine) {
		e.newRunner = func(toolchain.Options) toolchain.Runner { return r }
	}
}

// WithExecutor builds invokers on top of a custom executor.
func WithExecutor(ex command.Executor) Option {
	return func(e *Engine) {
		e.newRunner = func(opts toolchain.Options) toolchain.Runner {
			return toolchain.NewInvoker(opts, ex, e.logger)
		}
	}
}

// Engine owns the session and serializes execution cycles. Only one cycle
// runs at a time; concurrent callers queue on the mutex.
type Engine struct {
	mu         sync.Mutex
	store      *store.Store
	logger     *logrus.Entry
	opts       Options
	sessions   *notebook.Manager
	assembler  *assemble.Assembler
	classifier *outcome.Classifier
	runner     toolchain.Runner
	newRunner  func(toolchain.Options) toolchain.Runner
}

// New creates a new Engine instance.
func New(st *store.Store, opts Options, logger *logrus.Entry, options ...Option) *Engine {
	if st == nil {
		st = store.New()
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Engine{
		store:    st,
		logger:   logger,
		sessions: notebook.NewManager(opts.Layout),
	}
	e.newRunner = func(o toolchain.Options) toolchain.Runner {
		return toolchain.NewInvoker(o, nil, e.logger)
	}
	for _, o := range options {
		o(e)
	}
	e.apply(opts)
	return e
}

// apply must be called with the lock held or before the engine is shared.
func (e *Engine) apply(opts Options) {
	e.opts = opts
	e.sessions.SetLayout(opts.Layout)
	e.assembler = assemble.New(opts.Markers, opts.Package)
	e.classifier = outcome.NewClassifier(opts.FailureMarkers)
	e.runner = e.newRunner(opts.Toolchain)
}

// Reconfigure swaps the pipeline settings between cycles. The live session
// and its cells are kept.
func (e *Engine) Reconfigure(opts Options) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.apply(opts)
	e.logger.WithField("toolchain", opts.Toolchain.Binary).Info("Engine reconfigured")
}

// Options returns the active settings.
func (e *Engine) Options() Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opts
}

// Store returns the engine's state store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Cells returns the live session's cells in assembly order.
func (e *Engine) Cells() []notebook.Cell {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessions.Current().Cells.Snapshot()
}

// Reset discards the live session.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions.Reset()
	e.publishSession()
	e.logger.Info("Session reset")
}

// Stage records a cell without running anything and returns the session's
// cell count.
func (e *Engine) Stage(req Request) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record(req)
}

// Preview assembles the live session with active as the active fragment,
// without writing or running it.
func (e *Engine) Preview(active int) (*assemble.Artifact, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.assembler.Assemble(e.sessions.Current().Cells.Snapshot(), active)
}

// Execute runs one full cycle for req. Build failures and extraction
// failures are outcomes, not errors; an error means the cycle was aborted
// (the toolchain could not start or the artifact could not be written) and
// the engine is back to idle with the session intact.
func (e *Engine) Execute(ctx context.Context, req Request) (*outcome.Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	defer profiling.Start("engine.execute").Stop()
	started := time.Now()

	e.record(req)
	sess := e.sessions.Current()
	log := e.logger.WithFields(logrus.Fields{
		"fragment": req.Fragment,
		"index":    req.Index,
		"file":     sess.Filename,
	})

	e.setPhase(store.PhaseAssembling)
	art, err := e.assemble(sess, req.Fragment)
	if err != nil {
		return nil, e.abort(log, err)
	}

	e.setPhase(store.PhaseInvoking)
	span := profiling.Start("engine.invoke")
	res, err := e.runner.Run(ctx, sess.ArtifactDir)
	span.Stop()
	if err != nil {
		return nil, e.abort(log, err)
	}

	e.setPhase(store.PhaseClassifying)
	span = profiling.Start("engine.classify")
	out := e.classifier.Classify(res, art.Markers)
	span.Stop()
	out.Fragment = req.Fragment

	e.store.ApplyUpdate(store.Update{Type: store.UpdateOutcome, Source: "engine", Payload: out})

	log.WithFields(logrus.Fields{
		"outcome":   out.Kind,
		"exit_code": out.ExitCode,
		"elapsed":   time.Since(started).Round(time.Millisecond),
	}).Info("Cell executed")

	return out, nil
}

// record observes the request's session and upserts its cell.
func (e *Engine) record(req Request) int {
	if e.sessions.Observe(req.Filename, req.Workspace) {
		e.publishSession()
		e.logger.WithFields(logrus.Fields{
			"file":      req.Filename,
			"workspace": req.Workspace,
		}).Info("New session")
	}
	cells := e.sessions.Current().Cells
	cells.Upsert(req.Fragment, req.Index, req.Contents)
	e.store.ApplyUpdate(store.Update{Type: store.UpdateCells, Source: "engine", Payload: cells.Len()})
	return cells.Len()
}

func (e *Engine) assemble(sess *notebook.Session, active int) (*assemble.Artifact, error) {
	defer profiling.Start("engine.assemble").Stop()

	art, err := e.assembler.Assemble(sess.Cells.Snapshot(), active)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to assemble program")
	}
	if err := assemble.WriteArtifact(sess.ArtifactDir, e.opts.Files, art); err != nil {
		return nil, err
	}
	return art, nil
}

func (e *Engine) abort(log *logrus.Entry, err error) error {
	log.WithError(err).WithField("code", errors.GetCode(err)).Error("Execution aborted")
	e.setPhase(store.PhaseIdle)
	return err
}

func (e *Engine) setPhase(p store.Phase) {
	e.store.ApplyUpdate(store.Update{Type: store.UpdatePhase, Source: "engine", Payload: p})
}

func (e *Engine) publishSession() {
	sess := e.sessions.Current()
	e.store.ApplyUpdate(store.Update{
		Type:   store.UpdateSessionReset,
		Source: "engine",
		Payload: store.SessionInfo{
			Filename:    sess.Filename,
			Workspace:   sess.Workspace,
			ArtifactDir: sess.ArtifactDir,
			StartedAt:   sess.StartedAt,
		},
	})
}
