package lifecycle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"
)

// ErrNotRunning reports a stop request with no live daemon.
var ErrNotRunning = errors.New("daemon is not running")

// ErrAlreadyRunning reports a start request while a live daemon owns the
// record file.
var ErrAlreadyRunning = errors.New("daemon is already running")

const (
	defaultStartTimeout = 150 * time.Second
	defaultStopGrace    = 5 * time.Second
	pollInterval        = 200 * time.Millisecond
)

// Controller starts and stops the background daemon process.
type Controller struct {
	RecordPath   string
	SocketPath   string
	LogPath      string
	StartTimeout time.Duration
	StopGrace    time.Duration
}

// NewController builds a controller over the given paths with default
// timeouts. The start timeout is generous because model load dominates it.
func NewController(recordPath, socketPath, logPath string) *Controller {
	return &Controller{
		RecordPath:   recordPath,
		SocketPath:   socketPath,
		LogPath:      logPath,
		StartTimeout: defaultStartTimeout,
		StopGrace:    defaultStopGrace,
	}
}

// Running reports whether a live daemon owns the record file. A record
// pointing at a dead pid is stale and counts as not running.
func (c *Controller) Running() bool {
	rec, err := ReadRecord(c.RecordPath)
	if err != nil {
		return false
	}
	return IsProcessAlive(rec.PID)
}

// Status returns the record of the live daemon, or ErrNotRunning.
func (c *Controller) Status() (Record, error) {
	rec, err := ReadRecord(c.RecordPath)
	if err != nil {
		return Record{}, ErrNotRunning
	}
	if !IsProcessAlive(rec.PID) {
		return Record{}, ErrNotRunning
	}
	return rec, nil
}

// StartBackground launches the current binary as a detached daemon and
// waits until it writes its record. Daemon output goes to the log file.
func (c *Controller) StartBackground() (Record, error) {
	if c.Running() {
		return Record{}, ErrAlreadyRunning
	}

	exe, err := os.Executable()
	if err != nil {
		return Record{}, fmt.Errorf("locate executable: %w", err)
	}

	logFile, err := c.openLog()
	if err != nil {
		return Record{}, err
	}
	defer logFile.Close()

	cmd := exec.Command(exe, "serve", "--foreground")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return Record{}, fmt.Errorf("start daemon: %w", err)
	}
	// Reap the child when it exits so it never lingers as a zombie.
	go cmd.Wait()

	slog.Debug("daemon launched", "pid", cmd.Process.Pid, "log", c.LogPath)

	deadline := time.Now().Add(c.StartTimeout)
	for time.Now().Before(deadline) {
		if rec, err := ReadRecord(c.RecordPath); err == nil && IsProcessAlive(rec.PID) {
			return rec, nil
		}
		if !IsProcessAlive(cmd.Process.Pid) {
			return Record{}, fmt.Errorf("daemon exited during startup, see %s", c.LogPath)
		}
		time.Sleep(pollInterval)
	}
	return Record{}, fmt.Errorf("daemon did not become ready within %s", c.StartTimeout)
}

// Stop sends SIGTERM to the live daemon and waits for its record to
// disappear. A stale record is cleaned up and reported as not running.
func (c *Controller) Stop() error {
	rec, err := ReadRecord(c.RecordPath)
	if err != nil {
		return ErrNotRunning
	}
	if !IsProcessAlive(rec.PID) {
		RemoveRecord(c.RecordPath)
		return ErrNotRunning
	}

	if err := syscall.Kill(rec.PID, syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", rec.PID, err)
	}

	deadline := time.Now().Add(c.StopGrace)
	for time.Now().Before(deadline) {
		if !IsProcessAlive(rec.PID) {
			RemoveRecord(c.RecordPath)
			return nil
		}
		time.Sleep(pollInterval)
	}
	return fmt.Errorf("daemon pid %d did not exit within %s", rec.PID, c.StopGrace)
}

func (c *Controller) openLog() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(c.LogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(c.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
