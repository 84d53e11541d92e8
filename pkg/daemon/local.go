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

// LocalClient implements Client against an in-process engine. It is used
// when no kernel is running; the session lives only as long as the client.
type LocalClient struct {
	engine *engine.Engine
}

// NewLocalClient wraps eng.
func NewLocalClient(eng *engine.Engine) *LocalClient {
	return &LocalClient{engine: eng}
}

// Engine returns the wrapped engine.
func (c *LocalClient) Engine() *engine.Engine {
	return c.engine
}

func (c *LocalClient) Execute(ctx context.Context, req engine.Request) (*outcome.Outcome, error) {
	return c.engine.Execute(ctx, req)
}

func (c *LocalClient) Stage(ctx context.Context, req engine.Request) (int, error) {
	return c.engine.Stage(req), nil
}

func (c *LocalClient) Preview(ctx context.Context, active int) (*assemble.Artifact, error) {
	return c.engine.Preview(active)
}

func (c *LocalClient) Cells(ctx context.Context) ([]notebook.Cell, error) {
	return c.engine.Cells(), nil
}

func (c *LocalClient) State(ctx context.Context) (*store.State, error) {
	st := c.engine.Store().Get()
	return &st, nil
}

func (c *LocalClient) Reset(ctx context.Context) error {
	c.engine.Reset()
	return nil
}

// StreamState subscribes to the in-process store.
func (c *LocalClient) StreamState(ctx context.Context) (<-chan StateUpdate, error) {
	st := c.engine.Store()
	sub := st.Subscribe()

	ch := make(chan StateUpdate, 10)
	ch <- *protocol.InitialEvent(st.Get())

	go func() {
		defer close(ch)
		defer st.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case update, ok := <-sub:
				if !ok {
					return
				}
				ev := protocol.EventFromUpdate(update)
				if ev == nil {
					continue
				}
				select {
				case ch <- *ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// IsRunning returns false since this is the local fallback client.
func (c *LocalClient) IsRunning() bool {
	return false
}

// Close is a no-op for LocalClient.
func (c *LocalClient) Close() error {
	return nil
}

var _ Client = (*LocalClient)(nil)
