package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"placement_notifier/internal/domain"
)

// MessageSource is the inbound mailbox. The orchestrator never marks a
// message read speculatively.
type MessageSource interface {
	ListUnreadIDs(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, id string) (*domain.RawMessage, error)
	MarkRead(ctx context.Context, id string) error
}

// OfferPipeline extracts placement offers. matched=false means the message
// is outside the pipeline's domain; errors wrapping ErrMalformedExtraction
// mean it matched but failed validation.
type OfferPipeline interface {
	Run(ctx context.Context, msg *domain.RawMessage) (*domain.PlacementOffer, bool, error)
}

// NoticePipeline extracts general notices.
type NoticePipeline interface {
	Run(ctx context.Context, msg *domain.RawMessage) (*domain.Notice, bool, error)
}

// OfferStore persists placement offers with insert-or-merge semantics. A nil
// ChangeEvent from Upsert means the write changed nothing.
type OfferStore interface {
	Upsert(ctx context.Context, offer *domain.PlacementOffer) (*domain.ChangeEvent, error)
	ListUnsent(ctx context.Context, channel string) ([]domain.PlacementOffer, error)
	MarkDelivered(ctx context.Context, offerID int64, channel string) error
}

// NoticeStore persists notices keyed by fingerprint. Duplicates are pure
// no-ops and return a nil event.
type NoticeStore interface {
	Insert(ctx context.Context, notice *domain.Notice) (*domain.ChangeEvent, error)
	ListUnsent(ctx context.Context, channel string) ([]domain.Notice, error)
	MarkDelivered(ctx context.Context, noticeID int64, channel string) error
}

// SubscriberStore manages notification recipients.
type SubscriberStore interface {
	GetActive(ctx context.Context) ([]domain.Subscriber, error)
	Upsert(ctx context.Context, sub *domain.Subscriber) error
	Deactivate(ctx context.Context, id int64) error
}

// Channel delivers one formatted message to one subscriber. Failures are
// classified by wrapping ErrTransientDelivery or ErrPermanentDelivery.
type Channel interface {
	Name() string
	Send(ctx context.Context, sub domain.Subscriber, message string) error
}

// EventPublisher forwards change events to external consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event *domain.ChangeEvent) error
	Close() error
}

// EventHandler consumes a change event immediately after the upsert that
// produced it.
type EventHandler interface {
	HandleEvent(ctx context.Context, event *domain.ChangeEvent) error
}
