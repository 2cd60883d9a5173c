package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl journal + snapshot)
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// NotificationEntry records one delivery attempt.
// Keep it compact and schema-stable.
type NotificationEntry struct {
	At        time.Time
	Streamer  string
	RunID     int64
	Milestone string
	SplitMS   int64
	Outcome   string
	Error     string
}
