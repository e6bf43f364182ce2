package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"placement_notifier/internal/domain"
)

// DispatchService fans records out to subscribers over the configured
// channels. It runs in two modes: event-driven (HandleEvent, right after an
// upsert) and sweep (periodic scan for records with an unsent channel). The
// sweep is the recovery path; running it twice with no new records sends
// nothing on the second run.
type DispatchService struct {
	offers      OfferStore
	notices     NoticeStore
	subscribers SubscriberStore
	channels    []Channel
	logger      *slog.Logger
}

// NewDispatchService constructs the dispatcher.
func NewDispatchService(
	offers OfferStore,
	notices NoticeStore,
	subscribers SubscriberStore,
	channels []Channel,
	logger *slog.Logger,
) *DispatchService {
	return &DispatchService{
		offers:      offers,
		notices:     notices,
		subscribers: subscribers,
		channels:    channels,
		logger:      logger.With("component", "dispatch"),
	}
}

// HandleEvent delivers a fresh change event on every channel that has not
// seen the record yet. Failures leave the channel flag unsent for the sweep.
func (s *DispatchService) HandleEvent(ctx context.Context, event *domain.ChangeEvent) error {
	switch event.Kind {
	case domain.EventNewOffer:
		return s.deliverOffer(ctx, event.Offer, nil, nil)
	case domain.EventUpdatedOffer:
		// Format from the accumulated pending delta, not the delta of this
		// merge alone: an earlier undelivered update is folded into the
		// pending delta and must go out in the same message, because a
		// successful send marks the channel delivered and the sweep will not
		// pick the record up again.
		return s.deliverOffer(ctx, event.Offer, event.Offer.PendingDelta, nil)
	case domain.EventNewNotice:
		return s.deliverNotice(ctx, event.Notice, nil)
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

// Sweep scans offers and notices for unsent channels and re-delivers them.
// It is interruptible at record granularity: the current record finishes,
// then the sweep stops.
func (s *DispatchService) Sweep(ctx context.Context) (*domain.DispatchStats, error) {
	startTime := time.Now()
	stats := &domain.DispatchStats{}

	for _, ch := range s.channels {
		pendingOffers, err := s.offers.ListUnsent(ctx, ch.Name())
		if err != nil {
			stats.Duration = time.Since(startTime)
			return stats, fmt.Errorf("list unsent offers: %w", err)
		}

		for i := range pendingOffers {
			if ctx.Err() != nil {
				stats.Duration = time.Since(startTime)
				return stats, ctx.Err()
			}
			offer := &pendingOffers[i]
			stats.Scanned++
			if err := s.deliverOfferOn(ctx, ch, offer, offer.PendingDelta, stats); err != nil {
				stats.Failed++
				s.logger.Warn("sweep offer delivery failed",
					"offer_id", offer.ID,
					"channel", ch.Name(),
					"error", err,
				)
			}
		}

		pendingNotices, err := s.notices.ListUnsent(ctx, ch.Name())
		if err != nil {
			stats.Duration = time.Since(startTime)
			return stats, fmt.Errorf("list unsent notices: %w", err)
		}

		for i := range pendingNotices {
			if ctx.Err() != nil {
				stats.Duration = time.Since(startTime)
				return stats, ctx.Err()
			}
			notice := &pendingNotices[i]
			stats.Scanned++
			if err := s.deliverNoticeOn(ctx, ch, notice, stats); err != nil {
				stats.Failed++
				s.logger.Warn("sweep notice delivery failed",
					"notice_id", notice.ID,
					"channel", ch.Name(),
					"error", err,
				)
			}
		}
	}

	stats.Duration = time.Since(startTime)

	s.logger.Info("dispatch sweep completed",
		"scanned", stats.Scanned,
		"sent", stats.Sent,
		"failed", stats.Failed,
		"deactivated", stats.Deactivated,
		"duration", stats.Duration,
	)

	return stats, nil
}

// deliverOffer sends an offer on every channel with an unsent flag. Channel
// failures are independent of each other; the first error is reported after
// all channels were attempted.
func (s *DispatchService) deliverOffer(ctx context.Context, offer *domain.PlacementOffer, delta *domain.OfferDelta, stats *domain.DispatchStats) error {
	if stats == nil {
		stats = &domain.DispatchStats{}
	}

	var firstErr error
	for _, ch := range s.channels {
		if offer.Delivery.Sent(ch.Name()) {
			continue
		}
		if err := s.deliverOfferOn(ctx, ch, offer, delta, stats); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *DispatchService) deliverOfferOn(ctx context.Context, ch Channel, offer *domain.PlacementOffer, delta *domain.OfferDelta, stats *domain.DispatchStats) error {
	message := formatOffer(offer, delta)

	delivered, err := s.broadcast(ctx, ch, message, stats)
	if err != nil {
		return err
	}
	if !delivered {
		return fmt.Errorf("offer %d on %s: %w", offer.ID, ch.Name(), domain.ErrTransientDelivery)
	}

	if err := s.offers.MarkDelivered(ctx, offer.ID, ch.Name()); err != nil {
		return fmt.Errorf("mark offer delivered: %w", err)
	}
	stats.Sent++
	return nil
}

func (s *DispatchService) deliverNotice(ctx context.Context, notice *domain.Notice, stats *domain.DispatchStats) error {
	if stats == nil {
		stats = &domain.DispatchStats{}
	}

	var firstErr error
	for _, ch := range s.channels {
		if notice.Delivery.Sent(ch.Name()) {
			continue
		}
		if err := s.deliverNoticeOn(ctx, ch, notice, stats); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *DispatchService) deliverNoticeOn(ctx context.Context, ch Channel, notice *domain.Notice, stats *domain.DispatchStats) error {
	message := FormatNotice(notice)

	delivered, err := s.broadcast(ctx, ch, message, stats)
	if err != nil {
		return err
	}
	if !delivered {
		return fmt.Errorf("notice %d on %s: %w", notice.ID, ch.Name(), domain.ErrTransientDelivery)
	}

	if err := s.notices.MarkDelivered(ctx, notice.ID, ch.Name()); err != nil {
		return fmt.Errorf("mark notice delivered: %w", err)
	}
	stats.Sent++
	return nil
}

// broadcast sends one message to every active subscriber on one channel.
// The record counts as delivered when at least one send succeeded or there
// was nobody to send to. Permanent per-subscriber failures deactivate the
// subscriber and are not retried.
func (s *DispatchService) broadcast(ctx context.Context, ch Channel, message string, stats *domain.DispatchStats) (bool, error) {
	subs, err := s.subscribers.GetActive(ctx)
	if err != nil {
		return false, fmt.Errorf("load subscribers: %w", err)
	}

	success := 0
	for _, sub := range subs {
		err := ch.Send(ctx, sub, message)
		switch {
		case err == nil:
			success++
		case errors.Is(err, domain.ErrPermanentDelivery):
			s.logger.Warn("permanent delivery failure, deactivating subscriber",
				"subscriber_id", sub.ID,
				"channel", ch.Name(),
				"error", err,
			)
			if derr := s.subscribers.Deactivate(ctx, sub.ID); derr != nil {
				s.logger.Error("deactivate subscriber failed", "subscriber_id", sub.ID, "error", derr)
			} else {
				stats.Deactivated++
			}
		default:
			s.logger.Warn("transient delivery failure",
				"subscriber_id", sub.ID,
				"channel", ch.Name(),
				"error", err,
			)
		}
	}

	return success > 0 || len(subs) == 0, nil
}

// formatOffer picks the announcement or update rendering. On the sweep path
// the delta is the persisted pending one; a delta covering the full student
// set means the first announcement never went out, so send that instead.
func formatOffer(offer *domain.PlacementOffer, delta *domain.OfferDelta) string {
	if delta.Empty() || len(delta.AddedStudents) >= len(offer.Students) {
		return FormatNewOffer(offer)
	}
	return FormatOfferUpdate(offer, delta)
}
