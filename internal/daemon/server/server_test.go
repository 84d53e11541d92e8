package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grovetools/cellkernel/internal/daemon/engine"
	"github.com/grovetools/cellkernel/internal/daemon/protocol"
	"github.com/grovetools/cellkernel/internal/daemon/store"
	"github.com/grovetools/cellkernel/pkg/assemble"
	"github.com/grovetools/cellkernel/pkg/notebook"
	"github.com/grovetools/cellkernel/pkg/outcome"
	"github.com/grovetools/cellkernel/pkg/toolchain"
	"github.com/grovetools/cellkernel/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T, runner toolchain.Runner) (*Server, *httptest.Server) {
	t.Helper()
	opts := engine.DefaultOptions()
	opts.Layout.TempRoot = t.TempDir()
	eng := engine.New(store.New(), opts, nil, engine.WithRunner(runner))

	srv := New(eng, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postCell(t *testing.T, ts *httptest.Server, path, accept string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestExecuteSuccess(t *testing.T) {
	_, ts := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))

	resp := postCell(t, ts, "/", "", engine.Request{Fragment: 1, Filename: "nb", Contents: `println!("hello");`})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(outcome.KindSuccess), resp.Header.Get(protocol.HeaderOutcome))
	assert.NotEmpty(t, resp.Header.Get(protocol.HeaderOutcomeID))
	assert.Equal(t, "hello", readBody(t, resp))
}

func TestExecuteBuildFailure(t *testing.T) {
	stderr := "error: expected `;`\n"
	_, ts := newTestServer(t, testutil.StaticRunner(toolchain.Result{Stderr: []byte(stderr), ExitCode: 101}))

	resp := postCell(t, ts, "/", "", engine.Request{Fragment: 1, Filename: "nb", Contents: "let x"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, stderr, readBody(t, resp))
}

func TestExecuteJSON(t *testing.T) {
	_, ts := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))

	resp := postCell(t, ts, "/", "application/json", engine.Request{Fragment: 7, Filename: "nb", Contents: `println!("json");`})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res protocol.Result
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	require.NotNil(t, res.Outcome)
	assert.Equal(t, "json", res.Outcome.Payload)
	assert.Equal(t, 7, res.Outcome.Fragment)
}

func TestExecuteRejectsBadRequests(t *testing.T) {
	_, ts := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))

	resp := postCell(t, ts, "/", "", map[string]interface{}{"fragment": 1, "filename": "nb", "contents": "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "missing field: index")

	getResp, err := ts.Client().Get(ts.URL + "/")
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, getResp.StatusCode)

	missing, err := ts.Client().Get(ts.URL + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealthAndState(t *testing.T) {
	_, ts := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))

	resp, err := ts.Client().Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, "ok", readBody(t, resp))
	resp.Body.Close()

	postCell(t, ts, "/", "", engine.Request{Fragment: 1, Filename: "nb", Contents: `println!("x");`})

	resp, err = ts.Client().Get(ts.URL + "/api/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var st store.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, store.PhaseSuccess, st.Phase)
	assert.Equal(t, 1, st.Runs)
	assert.Equal(t, "nb", st.Filename)
}

func TestCellsStagePreviewAndReset(t *testing.T) {
	_, ts := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))

	resp := postCell(t, ts, "/api/cells", "", engine.Request{Fragment: 2, Index: 1, Filename: "nb", Contents: "use std::fmt;\nlet b = 2;"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postCell(t, ts, "/api/cells", "", engine.Request{Fragment: 1, Index: 0, Filename: "nb", Contents: "let a = 1;"})
	var staged map[string]int
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&staged))
	assert.Equal(t, 2, staged["cells"])

	get, err := ts.Client().Get(ts.URL + "/api/cells")
	require.NoError(t, err)
	var cells []notebook.Cell
	require.NoError(t, json.NewDecoder(get.Body).Decode(&cells))
	get.Body.Close()
	require.Len(t, cells, 2)
	assert.Equal(t, 1, cells[0].Fragment)
	assert.Equal(t, 2, cells[1].Fragment)

	prev, err := ts.Client().Get(ts.URL + "/api/preview?active=2")
	require.NoError(t, err)
	var artifact assemble.Artifact
	require.NoError(t, json.NewDecoder(prev.Body).Decode(&artifact))
	prev.Body.Close()
	assert.True(t, strings.HasPrefix(artifact.Source, "use std::fmt;"))
	require.NotNil(t, artifact.Markers)

	bad, err := ts.Client().Get(ts.URL + "/api/preview?active=x")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/session", nil)
	require.NoError(t, err)
	del, err := ts.Client().Do(req)
	require.NoError(t, err)
	del.Body.Close()
	assert.Equal(t, http.StatusNoContent, del.StatusCode)

	get, err = ts.Client().Get(ts.URL + "/api/cells")
	require.NoError(t, err)
	cells = nil
	require.NoError(t, json.NewDecoder(get.Body).Decode(&cells))
	get.Body.Close()
	assert.Empty(t, cells)
}

func TestRunningConfig(t *testing.T) {
	srv, ts := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))

	resp, err := ts.Client().Get(ts.URL + "/api/config")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	srv.SetRunningConfig(&RunningConfig{Address: "127.0.0.1:8787", Framing: "http"})
	resp, err = ts.Client().Get(ts.URL + "/api/config")
	require.NoError(t, err)
	defer resp.Body.Close()
	var cfg RunningConfig
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, "127.0.0.1:8787", cfg.Address)
}

func TestStreamState(t *testing.T) {
	_, ts := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/stream", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan protocol.Event, 32)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var ev protocol.Event
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev) == nil {
				events <- ev
			}
		}
	}()

	first := <-events
	assert.Equal(t, protocol.EventInitial, first.Type)
	require.NotNil(t, first.State)
	assert.Equal(t, store.PhaseIdle, first.State.Phase)

	postCell(t, ts, "/", "", engine.Request{Fragment: 1, Filename: "nb", Contents: `println!("x");`})

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed early")
			if ev.Type == string(store.UpdateOutcome) {
				require.NotNil(t, ev.Outcome)
				assert.Equal(t, "x", ev.Outcome.Payload)
				cancel()
				for range events {
				}
				return
			}
		case <-deadline:
			t.Fatal("no outcome event")
		}
	}
}

func TestWebsocketEvents(t *testing.T) {
	_, ts := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	var first protocol.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, protocol.EventInitial, first.Type)

	postCell(t, ts, "/", "", engine.Request{Fragment: 1, Filename: "nb", Contents: `println!("ws");`})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var phases []store.Phase
	for {
		var ev protocol.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == string(store.UpdatePhase) {
			phases = append(phases, ev.Phase)
		}
		if ev.Type == string(store.UpdateOutcome) {
			assert.Equal(t, "ws", ev.Outcome.Payload)
			break
		}
	}
	assert.Equal(t, []store.Phase{store.PhaseAssembling, store.PhaseInvoking, store.PhaseClassifying}, phases)
}

func startNUL(t *testing.T, srv *Server) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- srv.ServeNUL(ln) }()
	t.Cleanup(func() {
		require.NoError(t, srv.Shutdown(context.Background()))
		require.NoError(t, <-done)
	})
	return ln.Addr().String()
}

func TestNULFraming(t *testing.T) {
	srv, _ := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))
	addr := startNUL(t, srv)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.EncodeFrame(conn, engine.Request{Index: 0, Fragment: 3, Filename: "nb", Contents: `println!("nul");`}))
	status, payload, err := protocol.ReadFrameResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusOK, status)
	assert.Equal(t, "nul", payload)
}

func TestNULIncompleteFrame(t *testing.T) {
	srv, _ := newTestServer(t, testutil.PrintlnRunner(assemble.DefaultSourceFile))
	addr := startNUL(t, srv)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("0\x001\x00"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	status, payload, err := protocol.ReadFrameResponse(conn)
	require.NoError(t, err)
	assert.Equal(t, protocol.StatusFailed, status)
	assert.Contains(t, payload, "REQUEST_FRAMING")
}
