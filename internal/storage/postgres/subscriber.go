package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"placement_notifier/internal/domain"
)

// SubscriberStore manages the notification recipients. A subscriber who
// re-registers after deactivation is reactivated in place, keeping their push
// subscriptions.
type SubscriberStore struct {
	db *sqlx.DB
}

func NewSubscriberStore(db *sqlx.DB) *SubscriberStore {
	return &SubscriberStore{db: db}
}

const subscriberColumns = `id, username, first_name, is_active, push_subscriptions, created_at, updated_at`

// GetActive returns all active subscribers.
func (s *SubscriberStore) GetActive(ctx context.Context) ([]domain.Subscriber, error) {
	query := `SELECT ` + subscriberColumns + ` FROM subscribers WHERE is_active ORDER BY id`

	var subs []domain.Subscriber
	if err := s.db.SelectContext(ctx, &subs, query); err != nil {
		return nil, fmt.Errorf("%w: list active subscribers: %v", domain.ErrPersistence, err)
	}
	return subs, nil
}

// Upsert registers a subscriber or refreshes an existing one, reactivating
// deactivated records on renewed contact. It is the registration API for the
// external bot surface; the dispatcher itself never calls it.
func (s *SubscriberStore) Upsert(ctx context.Context, sub *domain.Subscriber) error {
	query := `
		INSERT INTO subscribers (id, username, first_name, is_active, push_subscriptions)
		VALUES ($1, $2, $3, true, '[]')
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			is_active = true,
			updated_at = now()`

	if _, err := s.db.ExecContext(ctx, query, sub.ID, sub.Username, sub.FirstName); err != nil {
		return fmt.Errorf("%w: upsert subscriber %d: %v", domain.ErrPersistence, sub.ID, err)
	}
	return nil
}

// Deactivate excludes a subscriber from future broadcasts without losing the
// record.
func (s *SubscriberStore) Deactivate(ctx context.Context, id int64) error {
	query := `UPDATE subscribers SET is_active = false, updated_at = now() WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("%w: deactivate subscriber %d: %v", domain.ErrPersistence, id, err)
	}
	return nil
}

// AddPushSubscription appends a browser push endpoint to the subscriber,
// replacing any earlier registration of the same endpoint. Like Upsert it is
// called by the external registration surface, not the dispatcher.
func (s *SubscriberStore) AddPushSubscription(ctx context.Context, id int64, push domain.PushSubscription) error {
	query := `
		UPDATE subscribers SET
			push_subscriptions = (
				SELECT COALESCE(jsonb_agg(e), '[]'::jsonb)
				FROM jsonb_array_elements(push_subscriptions) e
				WHERE e ->> 'endpoint' <> $2
			) || jsonb_build_array(jsonb_build_object(
				'endpoint', $2::text, 'p256dh', $3::text, 'auth', $4::text)),
			updated_at = now()
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, push.Endpoint, push.P256dh, push.Auth); err != nil {
		return fmt.Errorf("%w: add push subscription for %d: %v", domain.ErrPersistence, id, err)
	}
	return nil
}

// RemovePushSubscription drops a dead push endpoint, typically after the push
// service reported it gone.
func (s *SubscriberStore) RemovePushSubscription(ctx context.Context, id int64, endpoint string) error {
	query := `
		UPDATE subscribers SET
			push_subscriptions = (
				SELECT COALESCE(jsonb_agg(e), '[]'::jsonb)
				FROM jsonb_array_elements(push_subscriptions) e
				WHERE e ->> 'endpoint' <> $2
			),
			updated_at = now()
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id, endpoint); err != nil {
		return fmt.Errorf("%w: remove push subscription for %d: %v", domain.ErrPersistence, id, err)
	}
	return nil
}
