// Package serve runs the daemon side of the assistant: a Unix socket
// accepting one JSON request per connection and answering with one JSON
// response. Generation requests are serialized so a single loaded model
// is never asked to produce two completions at once; pings bypass the
// queue so status checks stay responsive mid-generation.
package serve

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/tfllm/tfllm"
	"github.com/tfllm/tfllm/engine"
)

const (
	scanBufInit = 64 * 1024
	scanBufMax  = 1024 * 1024
)

// Handler produces answers for generation requests.
type Handler interface {
	Ask(ctx context.Context, query string) (string, error)
	Fix(ctx context.Context, rep engine.Report) (string, error)
}

// Server listens on a Unix domain socket for assistant requests.
type Server struct {
	listener net.Listener
	sockPath string
	handler  Handler

	genMu     sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewServer binds the socket path, removing a stale socket file left by a
// previous run.
func NewServer(sockPath string, handler Handler) (*Server, error) {
	if err := os.Remove(sockPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	l, err := net.Listen("unix", sockPath)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", sockPath, err)
	}
	return &Server{listener: l, sockPath: sockPath, handler: handler}, nil
}

// SocketPath returns the path the server is listening on.
func (s *Server) SocketPath() string {
	return s.sockPath
}

// Serve accepts connections until the listener is closed. Each connection
// carries exactly one request and one response.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go s.handleConn(ctx, conn)
	}
}

// Close shuts down the listener and removes the socket file. An in-flight
// generation runs to completion on its own connection.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.listener.Close()
		os.Remove(s.sockPath)
	})
	return s.closeErr
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, scanBufInit), scanBufMax)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			slog.Debug("request read failed", "error", err)
		}
		return
	}

	slog.Debug("request", "data", string(scanner.Bytes()))

	var req tfllm.Request
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		s.reply(conn, tfllm.Response{Success: false, Error: "malformed request: " + err.Error()})
		return
	}
	s.reply(conn, s.dispatch(ctx, req))
}

func (s *Server) dispatch(ctx context.Context, req tfllm.Request) tfllm.Response {
	switch req.Action {
	case tfllm.ActionPing:
		return tfllm.Response{Success: true, Result: "pong"}

	case tfllm.ActionAsk:
		if req.Query == "" {
			return tfllm.Response{Success: false, Error: "ask: empty query"}
		}
		s.genMu.Lock()
		defer s.genMu.Unlock()
		result, err := s.handler.Ask(ctx, req.Query)
		if err != nil {
			slog.Error("ask failed", "error", err)
			return tfllm.Response{Success: false, Error: err.Error()}
		}
		return tfllm.Response{Success: true, Result: result}

	case tfllm.ActionFix:
		if req.Command == "" {
			return tfllm.Response{Success: false, Error: "fix: empty command"}
		}
		s.genMu.Lock()
		defer s.genMu.Unlock()
		result, err := s.handler.Fix(ctx, engine.Report{
			Command:  req.Command,
			ExitCode: req.ExitCode,
			Stdout:   req.Stdout,
			Stderr:   req.Stderr,
		})
		if err != nil {
			slog.Error("fix failed", "error", err)
			return tfllm.Response{Success: false, Error: err.Error()}
		}
		return tfllm.Response{Success: true, Result: result}

	default:
		return tfllm.Response{Success: false, Error: "unknown action: " + req.Action}
	}
}

func (s *Server) reply(conn net.Conn, resp tfllm.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		slog.Error("failed to marshal response", "error", err)
		return
	}
	slog.Debug("response", "data", string(data))
	conn.Write(append(data, '\n'))
}
