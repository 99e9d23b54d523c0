package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the on-disk status written by a running daemon and read by
// the status command.
type Snapshot struct {
	PID       int       `json:"pid"`
	RunID     string    `json:"run_id,omitempty"`
	LogPath   string    `json:"log_path,omitempty"`
	WrittenAt time.Time `json:"written_at"`
	Status    Status    `json:"status"`
}

// Stale reports whether the snapshot is older than maxAge relative to now.
func (s Snapshot) Stale(now time.Time, maxAge time.Duration) bool {
	if s.WrittenAt.IsZero() {
		return true
	}
	return now.Sub(s.WrittenAt) > maxAge
}

// WriteSnapshot replaces path atomically with snap encoded as JSON.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".status-*.json")
	if err != nil {
		return fmt.Errorf("create status temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write status: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close status: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace status: %w", err)
	}
	return nil
}

// ReadSnapshot loads a snapshot written by WriteSnapshot.
func ReadSnapshot(path string) (Snapshot, error) {
	var snap Snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		return snap, fmt.Errorf("decode status %s: %w", path, err)
	}
	return snap, nil
}
