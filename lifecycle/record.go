// Package lifecycle manages the daemon process: the on-disk record that
// identifies a running instance, liveness checks, and starting or stopping
// the background process.
package lifecycle

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/google/renameio"
)

// Record identifies a running daemon instance.
type Record struct {
	PID    int    `json:"pid"`
	Socket string `json:"socket"`
}

// WriteRecord atomically writes the daemon record, creating parent
// directories as needed.
func WriteRecord(path string, rec Record) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	if err := renameio.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// ReadRecord reads and validates the daemon record at path.
func ReadRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("parse record: %w", err)
	}
	if rec.PID <= 0 {
		return Record{}, fmt.Errorf("record has invalid pid %d", rec.PID)
	}
	return rec, nil
}

// RemoveRecord deletes the daemon record. A missing record is not an error.
func RemoveRecord(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// IsProcessAlive reports whether a process with the given pid exists.
// Signal 0 probes for existence without delivering anything; EPERM still
// means the process is there.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
