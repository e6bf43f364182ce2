package domain

import "time"

// IntakeStats holds counters for one intake pass.
type IntakeStats struct {
	Fetched    int
	Offers     int
	Notices    int
	Irrelevant int
	Malformed  int
	Errors     int
	Duration   time.Duration
}

// DispatchStats holds counters for one dispatch pass or sweep.
type DispatchStats struct {
	Scanned     int
	Sent        int
	Failed      int
	Deactivated int
	Duration    time.Duration
}
