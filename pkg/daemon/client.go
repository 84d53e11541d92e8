// Package daemon provides a client for the cellkernel kernel. It implements
// a transparent fallback: if a kernel is listening, requests go over HTTP;
// if not, they run against an in-process engine.
package daemon

import (
	"context"

	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/internal/daemon/protocol"
	"github.com/grovetools/cellkernel/internal/daemon/store"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/notebook"
	"github.com/grovetools/cellkernel/pkg/outcome"
)

// Client defines the interface for interacting with a kernel.
// Both RemoteClient (HTTP) and LocalClient (in-process) implement it.
type Client interface {
	// Execute runs one cell and returns its outcome. Build and extraction
	// failures are outcomes; an error means the cycle was aborted.
	Execute(ctx context.Context, req engine.Request) (*outcome.Outcome, error)

	// Stage records a cell without running anything and returns the
	// session's cell count.
	Stage(ctx context.Context, req engine.Request) (int, error)

	// Preview assembles the session with active as the active fragment.
	Preview(ctx context.Context, active int) (*assemble.Artifact, error)

	// Cells returns the session's cells in assembly order.
	Cells(ctx context.Context) ([]notebook.Cell, error)

	// State returns the kernel's observable state.
	State(ctx context.Context) (*store.State, error)

	// Reset discards the live session.
	Reset(ctx context.Context) error

	// StreamState subscribes to state updates. The first update carries the
	// full state; the channel is closed when ctx is cancelled or the
	// connection is lost.
	StreamState(ctx context.Context) (<-chan StateUpdate, error)

	// IsRunning returns true if a kernel process is serving this client.
	IsRunning() bool

	// Close cleans up any resources used by the client.
	Close() error
}

// StateUpdate is one event pushed from the kernel to subscribers.
type StateUpdate = protocol.Event
