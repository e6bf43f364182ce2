package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"placement_notifier/internal/domain"
)

// IntakeService pulls unread messages from the mailbox and advances each one
// through fetched -> classified -> persisted/rejected -> consumed. A message
// is marked read if and only if its outcome is durably stored or definitively
// irrelevant, so re-running a crashed pass is always safe.
type IntakeService struct {
	source         MessageSource
	offerPipeline  OfferPipeline
	noticePipeline NoticePipeline
	offers         OfferStore
	notices        NoticeStore
	publisher      EventPublisher
	dispatcher     EventHandler
	logger         *slog.Logger
}

// NewIntakeService constructs the intake orchestrator. publisher and
// dispatcher may be nil; persistence alone is enough for the sweep to
// deliver later.
func NewIntakeService(
	source MessageSource,
	offerPipeline OfferPipeline,
	noticePipeline NoticePipeline,
	offers OfferStore,
	notices NoticeStore,
	publisher EventPublisher,
	dispatcher EventHandler,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		source:         source,
		offerPipeline:  offerPipeline,
		noticePipeline: noticePipeline,
		offers:         offers,
		notices:        notices,
		publisher:      publisher,
		dispatcher:     dispatcher,
		logger:         logger.With("component", "intake"),
	}
}

// Run executes one intake pass. Per-message failures are isolated: the
// message stays unread for the next pass and the loop continues.
func (s *IntakeService) Run(ctx context.Context) (*domain.IntakeStats, error) {
	startTime := time.Now()

	// One bulk read of identifiers; content is fetched per message.
	ids, err := s.source.ListUnreadIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list unread messages: %w", err)
	}

	s.logger.Info("intake pass started", "unread", len(ids))

	stats := &domain.IntakeStats{}

	// Strictly sequential: marking a message read must happen after its
	// persistence, and that ordering is only guaranteed one message at a time.
	for _, id := range ids {
		if ctx.Err() != nil {
			stats.Duration = time.Since(startTime)
			return stats, ctx.Err()
		}

		if err := s.processMessage(ctx, id, stats); err != nil {
			stats.Errors++
			s.logger.Error("message left unread for retry",
				"message_id", id,
				"error", err,
			)
		}
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("intake pass completed",
		"fetched", stats.Fetched,
		"offers", stats.Offers,
		"notices", stats.Notices,
		"irrelevant", stats.Irrelevant,
		"malformed", stats.Malformed,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// processMessage handles a single message. A non-nil return leaves the
// message unread.
func (s *IntakeService) processMessage(ctx context.Context, id string, stats *domain.IntakeStats) error {
	msg, err := s.source.Fetch(ctx, id)
	if err != nil {
		return fmt.Errorf("fetch message: %w", err)
	}
	stats.Fetched++

	offer, matched, err := s.offerPipeline.Run(ctx, msg)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedExtraction) {
			return s.consumeMalformed(ctx, msg, err, stats)
		}
		return fmt.Errorf("offer pipeline: %w", err)
	}
	if matched {
		event, err := s.offers.Upsert(ctx, offer)
		if err != nil {
			return fmt.Errorf("persist offer: %w", err)
		}
		stats.Offers++
		s.emit(ctx, event)
		return s.consume(ctx, msg.ID)
	}

	notice, matched, err := s.noticePipeline.Run(ctx, msg)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedExtraction) {
			return s.consumeMalformed(ctx, msg, err, stats)
		}
		return fmt.Errorf("notice pipeline: %w", err)
	}
	if matched {
		event, err := s.notices.Insert(ctx, notice)
		if err != nil {
			return fmt.Errorf("persist notice: %w", err)
		}
		stats.Notices++
		s.emit(ctx, event)
		return s.consume(ctx, msg.ID)
	}

	// Neither pipeline matched: definitively irrelevant, consume without
	// persisting so it is not reprocessed.
	stats.Irrelevant++
	s.logger.Debug("message irrelevant", "message_id", msg.ID, "subject", msg.Subject)
	return s.consume(ctx, msg.ID)
}

// emit publishes and dispatches a non-empty change event. Both are best
// effort: the record is already durable and still flagged unsent, so the
// sweep re-delivers anything that fails here.
func (s *IntakeService) emit(ctx context.Context, event *domain.ChangeEvent) {
	if event == nil {
		return
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("publish change event failed", "kind", event.Kind, "error", err)
		}
	}

	if s.dispatcher != nil {
		if err := s.dispatcher.HandleEvent(ctx, event); err != nil {
			s.logger.Warn("event-driven dispatch failed, sweep will retry",
				"kind", event.Kind,
				"error", err,
			)
		}
	}
}

// consumeMalformed consumes a message a pipeline matched but could not
// validate. Logged loudly: it points at a classifier/extraction mismatch.
func (s *IntakeService) consumeMalformed(ctx context.Context, msg *domain.RawMessage, cause error, stats *domain.IntakeStats) error {
	stats.Malformed++
	s.logger.Error("malformed extraction, consuming message",
		"message_id", msg.ID,
		"subject", msg.Subject,
		"error", cause,
	)
	return s.consume(ctx, msg.ID)
}

func (s *IntakeService) consume(ctx context.Context, id string) error {
	if err := s.source.MarkRead(ctx, id); err != nil {
		// The outcome is already durable; reprocessing is an upsert no-op.
		return fmt.Errorf("mark read: %w", err)
	}
	return nil
}
