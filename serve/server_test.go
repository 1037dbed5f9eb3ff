package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tfllm/tfllm"
	"github.com/tfllm/tfllm/engine"
)

var sockCounter atomic.Int32

func testSocketPath(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("%s/srv-%d.sock", t.TempDir(), sockCounter.Add(1))
}

// stubHandler answers with canned results and can gate inside a call to
// expose interleaving.
type stubHandler struct {
	askResult string
	fixResult string
	err       error

	mu      sync.Mutex
	active  int
	maxSeen int
	gate    chan struct{}
}

func (h *stubHandler) enter() {
	h.mu.Lock()
	h.active++
	if h.active > h.maxSeen {
		h.maxSeen = h.active
	}
	h.mu.Unlock()
	if h.gate != nil {
		<-h.gate
	}
}

func (h *stubHandler) leave() {
	h.mu.Lock()
	h.active--
	h.mu.Unlock()
}

func (h *stubHandler) Ask(ctx context.Context, query string) (string, error) {
	h.enter()
	defer h.leave()
	return h.askResult, h.err
}

func (h *stubHandler) Fix(ctx context.Context, rep engine.Report) (string, error) {
	h.enter()
	defer h.leave()
	return h.fixResult, h.err
}

func startServer(t *testing.T, h Handler) *Server {
	t.Helper()
	srv, err := NewServer(testSocketPath(t), h)
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(context.Background())
	t.Cleanup(func() { srv.Close() })
	return srv
}

func roundTrip(t *testing.T, sockPath string, req tfllm.Request) tfllm.Response {
	t.Helper()
	resp, err := send(sockPath, req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func send(sockPath string, req tfllm.Request) (tfllm.Response, error) {
	conn, err := net.Dial("unix", sockPath)
	if err != nil {
		return tfllm.Response{}, err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	data, err := json.Marshal(req)
	if err != nil {
		return tfllm.Response{}, err
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return tfllm.Response{}, err
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return tfllm.Response{}, fmt.Errorf("no response: %v", scanner.Err())
	}
	var resp tfllm.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return tfllm.Response{}, err
	}
	return resp, nil
}

func TestPing(t *testing.T) {
	srv := startServer(t, &stubHandler{})
	resp := roundTrip(t, srv.SocketPath(), tfllm.Request{Action: tfllm.ActionPing})
	if !resp.Success || resp.Result != "pong" {
		t.Errorf("expected pong, got %+v", resp)
	}
}

func TestAskRoundTrip(t *testing.T) {
	srv := startServer(t, &stubHandler{askResult: "ls -lh"})
	resp := roundTrip(t, srv.SocketPath(), tfllm.Request{Action: tfllm.ActionAsk, Query: "list files with sizes"})
	if !resp.Success || resp.Result != "ls -lh" {
		t.Errorf("expected ls -lh, got %+v", resp)
	}
}

func TestFixRoundTrip(t *testing.T) {
	srv := startServer(t, &stubHandler{fixResult: "git push"})
	resp := roundTrip(t, srv.SocketPath(), tfllm.Request{
		Action:   tfllm.ActionFix,
		Command:  "git psuh",
		ExitCode: 1,
	})
	if !resp.Success || resp.Result != "git push" {
		t.Errorf("expected git push, got %+v", resp)
	}
}

func TestMalformedRequestGetsErrorResponse(t *testing.T) {
	srv := startServer(t, &stubHandler{})

	conn, err := net.Dial("unix", srv.SocketPath())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := conn.Write([]byte("{not json\n")); err != nil {
		t.Fatal(err)
	}

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		t.Fatalf("expected error response for malformed request: %v", scanner.Err())
	}
	var resp tfllm.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Success || resp.Error == "" {
		t.Errorf("expected failure with error message, got %+v", resp)
	}
}

func TestServerSurvivesMalformedRequest(t *testing.T) {
	srv := startServer(t, &stubHandler{askResult: "ok"})

	if conn, err := net.Dial("unix", srv.SocketPath()); err == nil {
		conn.Write([]byte("garbage\n"))
		conn.Close()
	}

	resp := roundTrip(t, srv.SocketPath(), tfllm.Request{Action: tfllm.ActionAsk, Query: "q"})
	if !resp.Success {
		t.Errorf("server should keep serving after a malformed request, got %+v", resp)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	srv := startServer(t, &stubHandler{})
	resp := roundTrip(t, srv.SocketPath(), tfllm.Request{Action: "reboot"})
	if resp.Success || resp.Error == "" {
		t.Errorf("expected unknown action rejection, got %+v", resp)
	}
}

func TestEmptyQueryRejected(t *testing.T) {
	srv := startServer(t, &stubHandler{})
	resp := roundTrip(t, srv.SocketPath(), tfllm.Request{Action: tfllm.ActionAsk})
	if resp.Success {
		t.Errorf("expected empty query rejection, got %+v", resp)
	}
}

func TestEmptyCommandRejected(t *testing.T) {
	srv := startServer(t, &stubHandler{})
	resp := roundTrip(t, srv.SocketPath(), tfllm.Request{Action: tfllm.ActionFix})
	if resp.Success {
		t.Errorf("expected empty command rejection, got %+v", resp)
	}
}

func TestGenerationsNeverInterleave(t *testing.T) {
	h := &stubHandler{askResult: "ok", gate: make(chan struct{})}
	srv := startServer(t, h)

	const n = 4
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			send(srv.SocketPath(), tfllm.Request{Action: tfllm.ActionAsk, Query: "q"})
		}()
	}

	// Release the gate once per request; the mutex admits them one at a
	// time so at most one handler call is ever active.
	for i := 0; i < n; i++ {
		h.gate <- struct{}{}
	}
	wg.Wait()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.maxSeen != 1 {
		t.Errorf("expected at most 1 concurrent generation, saw %d", h.maxSeen)
	}
}

func TestPingAnswersWhileGenerationBlocked(t *testing.T) {
	h := &stubHandler{askResult: "ok", gate: make(chan struct{})}
	srv := startServer(t, h)

	done := make(chan struct{})
	go func() {
		send(srv.SocketPath(), tfllm.Request{Action: tfllm.ActionAsk, Query: "q"})
		close(done)
	}()

	// Wait for the generation to be holding the mutex.
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.Lock()
		active := h.active
		h.mu.Unlock()
		if active == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("generation never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp := roundTrip(t, srv.SocketPath(), tfllm.Request{Action: tfllm.ActionPing})
	if !resp.Success || resp.Result != "pong" {
		t.Errorf("ping should answer during generation, got %+v", resp)
	}

	h.gate <- struct{}{}
	<-done
}

func TestCloseRemovesSocketFile(t *testing.T) {
	srv := startServer(t, &stubHandler{})
	path := srv.SocketPath()
	srv.Close()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected socket file removed, stat err = %v", err)
	}
}

func TestNewServerReplacesStaleSocket(t *testing.T) {
	path := testSocketPath(t)

	first, err := NewServer(path, &stubHandler{})
	if err != nil {
		t.Fatal(err)
	}
	// Closing the listener directly leaves the file behind, like a crash.
	first.listener.Close()

	second, err := NewServer(path, &stubHandler{askResult: "ok"})
	if err != nil {
		t.Fatalf("expected stale socket replaced: %v", err)
	}
	defer second.Close()
	go second.Serve(context.Background())

	resp := roundTrip(t, path, tfllm.Request{Action: tfllm.ActionPing})
	if !resp.Success {
		t.Errorf("expected new server on reused path, got %+v", resp)
	}
}
