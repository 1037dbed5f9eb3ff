// Package model wraps a locally hosted llama.cpp server as a reusable
// generation handle. Loading is expensive (the server has to map the model
// into memory); a loaded Handle is cheap to reuse and must be the only
// caller of its server, since generation mutates decode state.
package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"time"
)

// ErrUnavailable reports that the model could not be loaded or reached.
// Fatal when the daemon starts; a failed request everywhere else.
var ErrUnavailable = errors.New("model unavailable")

const healthPollInterval = 500 * time.Millisecond

// Options configure a model load.
type Options struct {
	// ModelPath is the GGUF artifact to host.
	ModelPath string
	// ServerBinary is the llama-server executable.
	ServerBinary string
	// ContextSize is the context window passed to the server.
	ContextSize int
	// LoadTimeout bounds how long the server may take to become healthy.
	LoadTimeout time.Duration
}

// Handle owns one hosted model for the process lifetime.
type Handle struct {
	proc   *exec.Cmd
	client *completionClient
	exited chan struct{}
}

// Load starts a llama-server subprocess on a loopback port and waits for it
// to report healthy. This blocks for the duration of the model load.
func Load(ctx context.Context, opts Options) (*Handle, error) {
	if opts.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model path", ErrUnavailable)
	}
	if opts.ServerBinary == "" {
		opts.ServerBinary = "llama-server"
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 120 * time.Second
	}

	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	args := []string{
		"--model", opts.ModelPath,
		"--host", "127.0.0.1",
		"--port", strconv.Itoa(port),
	}
	if opts.ContextSize > 0 {
		args = append(args, "--ctx-size", strconv.Itoa(opts.ContextSize))
	}

	proc := exec.Command(opts.ServerBinary, args...)
	if err := proc.Start(); err != nil {
		return nil, fmt.Errorf("%w: start %s: %v", ErrUnavailable, opts.ServerBinary, err)
	}

	h := &Handle{
		proc:   proc,
		client: newCompletionClient(fmt.Sprintf("http://127.0.0.1:%d", port)),
		exited: make(chan struct{}),
	}
	go func() {
		proc.Wait()
		close(h.exited)
	}()

	slog.Info("loading model", "path", opts.ModelPath, "port", port)
	if err := h.waitHealthy(ctx, opts.LoadTimeout); err != nil {
		h.Close()
		return nil, err
	}
	slog.Info("model ready", "port", port)
	return h, nil
}

// Generate produces a completion for the given prompt, truncated at the
// first matching stop sequence or at maxTokens. The returned text is
// whitespace-trimmed. Safe to call repeatedly; not safe concurrently.
func (h *Handle) Generate(ctx context.Context, prompt string, maxTokens int, stop []string) (string, error) {
	text, err := h.client.Complete(ctx, prompt, maxTokens, stop)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return text, nil
}

// Close terminates the hosted server. The Handle must not be used afterwards.
func (h *Handle) Close() error {
	if h.proc == nil || h.proc.Process == nil {
		return nil
	}
	select {
	case <-h.exited:
		return nil
	default:
	}
	if err := h.proc.Process.Kill(); err != nil {
		return err
	}
	<-h.exited
	return nil
}

// waitHealthy polls the server health endpoint until it answers 200.
func (h *Handle) waitHealthy(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(healthPollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, "GET", h.client.baseURL+"/health", nil)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		resp, err := h.client.http.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-h.exited:
			// The server exiting early means the model is not loadable.
			return fmt.Errorf("%w: server exited: %s", ErrUnavailable, h.proc.ProcessState)
		case <-ctx.Done():
			return fmt.Errorf("%w: not healthy after %s", ErrUnavailable, timeout)
		case <-ticker.C:
		}
	}
}

// freePort grabs an ephemeral loopback port for the server to bind.
func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
