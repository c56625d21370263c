package storage

import (
	"time"

	"github.com/cockroachdb/errors"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines file at Path
//   - "sqlite": SQLite database file at Path (optional build tag)
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Outcome is one finished job. Keep it compact and schema-stable.
type Outcome struct {
	JobID     string    `json:"job_id"`
	Recipient string    `json:"recipient"`
	State     string    `json:"state"`
	DueAt     time.Time `json:"due_at"`
	CreatedAt time.Time `json:"created_at"`
	FiredAt   time.Time `json:"fired_at,omitempty"`
	At        time.Time `json:"at"`
	// LagMS is how late the job fired relative to DueAt (0 if it never fired).
	LagMS  int64  `json:"lag_ms"`
	TookMS int64  `json:"took_ms"`
	Error  string `json:"error,omitempty"`
}
