package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/cellkernel/errors"
	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/internal/daemon/protocol"
	"github.com/grovetools/cellkernel/internal/daemon/server"
	"github.com/grovetools/cellkernel/internal/daemon/store"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/notebook"
	"github.com/grovetools/cellkernel/pkg/outcome"
)

// RemoteClient implements Client by calling the kernel's HTTP API.
type RemoteClient struct {
	httpClient *http.Client
	address    string
	baseURL    string
}

// NewRemoteClient creates a client for the kernel listening at address
// (host:port). No connection is made until the first call.
func NewRemoteClient(address string) *RemoteClient {
	transport := &http.Transport{
		DialContext:     (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
		MaxIdleConns:    10,
		IdleConnTimeout: 90 * time.Second,
	}
	// No overall timeout: a cycle lasts as long as the toolchain does.
	return &RemoteClient{
		httpClient: &http.Client{Transport: transport},
		address:    address,
		baseURL:    "http://" + address,
	}
}

// Address returns the kernel address.
func (c *RemoteClient) Address() string {
	return c.address
}

func (c *RemoteClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonNotRunning, "failed to reach kernel").
			WithDetail("address", c.address)
	}
	return resp, nil
}

// getJSON performs a GET and decodes a 200 response into v.
func (c *RemoteClient) getJSON(ctx context.Context, path string, v interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// responseError turns a non-success response into an error, preferring the
// coded error the kernel sent.
func responseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, protocol.MaxRequestBytes))
	var res protocol.Result
	if json.Unmarshal(data, &res) == nil && res.Error != nil {
		return res.Error.Err()
	}
	return fmt.Errorf("kernel returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

// Execute runs one cell on the kernel.
func (c *RemoteClient) Execute(ctx context.Context, req engine.Request) (*outcome.Outcome, error) {
	resp, err := c.do(ctx, http.MethodPost, "/", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res protocol.Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode outcome (status %d): %w", resp.StatusCode, err)
	}
	if res.Error != nil {
		return nil, res.Error.Err()
	}
	if res.Outcome == nil {
		return nil, errors.New(errors.ErrCodeInternal, "kernel response carried no outcome")
	}
	return res.Outcome, nil
}

// Stage records a cell on the kernel.
func (c *RemoteClient) Stage(ctx context.Context, req engine.Request) (int, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/cells", req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, responseError(resp)
	}
	var body map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("failed to decode stage response: %w", err)
	}
	return body["cells"], nil
}

// Preview assembles the kernel's session without running it.
func (c *RemoteClient) Preview(ctx context.Context, active int) (*assemble.Artifact, error) {
	var artifact assemble.Artifact
	q := url.Values{"active": {strconv.Itoa(active)}}
	if err := c.getJSON(ctx, "/api/preview?"+q.Encode(), &artifact); err != nil {
		return nil, err
	}
	return &artifact, nil
}

// Cells returns the kernel's session cells.
func (c *RemoteClient) Cells(ctx context.Context) ([]notebook.Cell, error) {
	var cells []notebook.Cell
	if err := c.getJSON(ctx, "/api/cells", &cells); err != nil {
		return nil, err
	}
	return cells, nil
}

// State returns the kernel's observable state.
func (c *RemoteClient) State(ctx context.Context) (*store.State, error) {
	var st store.State
	if err := c.getJSON(ctx, "/api/state", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// GetConfig returns the configuration the kernel is running with.
func (c *RemoteClient) GetConfig(ctx context.Context) (*server.RunningConfig, error) {
	var cfg server.RunningConfig
	if err := c.getJSON(ctx, "/api/config", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Reset discards the kernel's session.
func (c *RemoteClient) Reset(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/session", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return responseError(resp)
	}
	return nil
}

// IsRunning returns true if the kernel answers its health check.
func (c *RemoteClient) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resp, err := c.do(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// StreamState subscribes to state updates via Server-Sent Events.
func (c *RemoteClient) StreamState(ctx context.Context) (<-chan StateUpdate, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/stream", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}

	ch := make(chan StateUpdate, 10)
	go func() {
		defer resp.Body.Close()
		defer close(ch)

		scanner := bufio.NewScanner(resp.Body)
		// Outcomes can carry large diagnostics.
		scanner.Buffer(make([]byte, 0, 64*1024), protocol.MaxRequestBytes)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var update StateUpdate
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update); err != nil {
				continue
			}
			select {
			case ch <- update:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// Watch subscribes to state updates over the kernel's websocket.
func (c *RemoteClient) Watch(ctx context.Context) (<-chan StateUpdate, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, "ws://"+c.address+"/api/ws", nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDaemonNotRunning, "failed to open websocket").
			WithDetail("address", c.address)
	}

	ch := make(chan StateUpdate, 10)
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}()
	go func() {
		defer close(ch)
		for {
			var update StateUpdate
			if err := conn.ReadJSON(&update); err != nil {
				return
			}
			select {
			case ch <- update:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Close cleans up any resources used by the client.
func (c *RemoteClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var _ Client = (*RemoteClient)(nil)
