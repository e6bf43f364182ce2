package domain

import "errors"

// Error taxonomy for the intake and dispatch pipeline. Callers classify
// failures with errors.Is; per-message and per-record errors are isolated
// and never abort a batch.
var (
	// ErrClassification marks a transient classifier failure, distinct from
	// "determined irrelevant". The message stays unread and is retried on
	// the next pass.
	ErrClassification = errors.New("classification failed")

	// ErrMalformedExtraction marks a message a pipeline matched but could not
	// validate. The message is consumed like an irrelevant one.
	ErrMalformedExtraction = errors.New("malformed extraction")

	// ErrPersistence marks a failed upsert. The message stays unread.
	ErrPersistence = errors.New("persistence failed")

	// ErrTransientDelivery leaves the record unsent so the next sweep retries.
	ErrTransientDelivery = errors.New("transient delivery failure")

	// ErrPermanentDelivery means the recipient is gone (blocked bot, expired
	// push endpoint). The subscriber is deactivated and never retried.
	ErrPermanentDelivery = errors.New("permanent delivery failure")
)
