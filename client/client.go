// Package client talks to the daemon over its Unix socket. All failures
// come back shaped as responses so callers can fall through to a direct
// in-process engine without branching on error types.
package client

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"github.com/tfllm/tfllm"
	"github.com/tfllm/tfllm/lifecycle"
)

// Client sends single-shot requests to a running daemon.
type Client struct {
	sockPath        string
	recordPath      string
	pingTimeout     time.Duration
	generateTimeout time.Duration
}

// New builds a client using the resolved socket and record paths and the
// configured timeouts.
func New(cfg *tfllm.Config) *Client {
	return &Client{
		sockPath:        tfllm.SocketPath(),
		recordPath:      tfllm.RecordPath(),
		pingTimeout:     cfg.PingTimeout(),
		generateTimeout: cfg.GenerateTimeout(),
	}
}

// NewWithPaths builds a client against explicit paths. Timeouts fall back
// to the defaults from the embedded config.
func NewWithPaths(sockPath, recordPath string) *Client {
	cfg := tfllm.DefaultConfig()
	return &Client{
		sockPath:        sockPath,
		recordPath:      recordPath,
		pingTimeout:     cfg.PingTimeout(),
		generateTimeout: cfg.GenerateTimeout(),
	}
}

// IsServerRunning reports whether a live daemon owns the record file.
// It never deletes the record; only start and stop paths clean up.
func (c *Client) IsServerRunning() bool {
	rec, err := lifecycle.ReadRecord(c.recordPath)
	if err != nil {
		return false
	}
	return lifecycle.IsProcessAlive(rec.PID)
}

// ServerPID returns the recorded pid of the live daemon.
func (c *Client) ServerPID() (int, bool) {
	rec, err := lifecycle.ReadRecord(c.recordPath)
	if err != nil || !lifecycle.IsProcessAlive(rec.PID) {
		return 0, false
	}
	return rec.PID, true
}

// Send delivers one request and reads one response. Any transport failure
// becomes a failed Response rather than an error.
func (c *Client) Send(req tfllm.Request) *tfllm.Response {
	timeout := c.generateTimeout
	if req.Action == tfllm.ActionPing {
		timeout = c.pingTimeout
	}

	conn, err := net.DialTimeout("unix", c.sockPath, c.pingTimeout)
	if err != nil {
		return failure("connection error: " + err.Error())
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	data, err := json.Marshal(req)
	if err != nil {
		return failure("encode request: " + err.Error())
	}
	if _, err := conn.Write(append(data, '\n')); err != nil {
		return failure("connection error: " + err.Error())
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return failure("connection error: " + err.Error())
		}
		return failure("connection error: server closed without responding")
	}

	var resp tfllm.Response
	if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
		return failure("malformed response: " + err.Error())
	}
	return &resp
}

// Ping checks whether the daemon answers on its socket.
func (c *Client) Ping() bool {
	resp := c.Send(tfllm.Request{Action: tfllm.ActionPing})
	return resp.Success
}

func failure(msg string) *tfllm.Response {
	return &tfllm.Response{Success: false, Error: msg}
}
