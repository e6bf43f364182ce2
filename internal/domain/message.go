package domain

import "time"

// RawMessage is one inbound email as seen by the intake loop. The read flag
// lives at the source; the orchestrator only flips it via MarkRead after the
// outcome is durably recorded or definitively irrelevant.
type RawMessage struct {
	ID         string
	Subject    string
	Sender     string
	Body       string
	ReceivedAt time.Time
}
