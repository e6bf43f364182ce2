package pipeline

import (
	"context"

	"placement_notifier/internal/domain"
)

// Gateway wraps the classification capability. Implementations signal
// transient failures with ErrClassification rather than silently returning a
// not-relevant outcome, so callers can tell "determined irrelevant" apart
// from "could not determine".
type Gateway interface {
	Classify(ctx context.Context, subject, body string) (*domain.ClassificationOutcome, error)
}
