package notify

import (
	"time"

	"pacewatch/internal/pace"
)

// Outcome is the delivery collaborator's report back to the watch loop.
// Suppressed and dry-run deliveries still count as evaluated-true upstream;
// the loop logs the outcome but never re-arms the notification.
type Outcome string

const (
	OutcomeSent            Outcome = "sent"
	OutcomeSuppressedQuiet Outcome = "suppressed-quiet"
	OutcomeDryRun          Outcome = "dry-run"
	OutcomeFailed          Outcome = "failed" // no sink was invoked
)

// Notification is one milestone alert ready for delivery.
type Notification struct {
	Streamer  string
	RunID     int64
	Milestone pace.Milestone
	Split     pace.Sample
	Title     string
	Body      string
}

// HistoryItem is a bounded in-memory record of recent deliveries, for status
// output and debugging.
type HistoryItem struct {
	At        time.Time
	Streamer  string
	RunID     int64
	Milestone pace.Milestone
	Outcome   Outcome
	Err       string
}
