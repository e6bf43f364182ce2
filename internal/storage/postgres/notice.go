package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"placement_notifier/internal/domain"
)

// NoticeStore persists notices. Notices are immutable; the fingerprint column
// carries a unique constraint, so a duplicate insert is a single-statement
// no-op with no locking needed.
type NoticeStore struct {
	db *sqlx.DB
}

func NewNoticeStore(db *sqlx.DB) *NoticeStore {
	return &NoticeStore{db: db}
}

type noticeRow struct {
	ID          int64                `db:"id"`
	Fingerprint string               `db:"fingerprint"`
	Title       string               `db:"title"`
	Body        string               `db:"body"`
	Category    string               `db:"category"`
	Source      string               `db:"source"`
	Author      string               `db:"author"`
	Deadline    string               `db:"deadline"`
	Links       pq.StringArray       `db:"links"`
	Students    domain.StudentSet    `db:"students"`
	Delivery    domain.DeliveryState `db:"delivery_state"`
	ReceivedAt  time.Time            `db:"received_at"`
	CreatedAt   time.Time            `db:"created_at"`
}

func (r *noticeRow) toDomain() *domain.Notice {
	return &domain.Notice{
		ID:          r.ID,
		Fingerprint: r.Fingerprint,
		Title:       r.Title,
		Body:        r.Body,
		Category:    domain.Category(r.Category),
		Source:      r.Source,
		Author:      r.Author,
		Deadline:    r.Deadline,
		Links:       r.Links,
		Students:    r.Students,
		Delivery:    r.Delivery,
		ReceivedAt:  r.ReceivedAt,
		CreatedAt:   r.CreatedAt,
	}
}

const noticeColumns = `id, fingerprint, title, body, category, source, author,
	deadline, links, students, delivery_state, received_at, created_at`

// Insert stores a notice unless one with the same fingerprint already exists.
// The returned event is nil for duplicates.
func (s *NoticeStore) Insert(ctx context.Context, notice *domain.Notice) (*domain.ChangeEvent, error) {
	query := `
		INSERT INTO notices (
			fingerprint, title, body, category, source, author,
			deadline, links, students, delivery_state, received_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, '{}', $10)
		ON CONFLICT (fingerprint) DO NOTHING
		RETURNING id, created_at`

	inserted := *notice
	inserted.Delivery = domain.DeliveryState{}

	err := s.db.QueryRowxContext(ctx, query,
		notice.Fingerprint,
		notice.Title,
		notice.Body,
		string(notice.Category),
		notice.Source,
		notice.Author,
		notice.Deadline,
		pq.StringArray(notice.Links),
		notice.Students,
		notice.ReceivedAt,
	).Scan(&inserted.ID, &inserted.CreatedAt)
	if err == sql.ErrNoRows {
		// Fingerprint collision: already known, nothing to announce.
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: insert notice %q: %v", domain.ErrPersistence, notice.Title, err)
	}

	return &domain.ChangeEvent{Kind: domain.EventNewNotice, Notice: &inserted}, nil
}

// ListUnsent returns notices not yet delivered on the given channel, oldest
// first.
func (s *NoticeStore) ListUnsent(ctx context.Context, channel string) ([]domain.Notice, error) {
	query := `SELECT ` + noticeColumns + `
		FROM notices
		WHERE COALESCE((delivery_state -> $1 ->> 'sent')::boolean, false) = false
		ORDER BY created_at`

	var rows []noticeRow
	if err := s.db.SelectContext(ctx, &rows, query, channel); err != nil {
		return nil, fmt.Errorf("%w: list unsent notices: %v", domain.ErrPersistence, err)
	}

	notices := make([]domain.Notice, 0, len(rows))
	for i := range rows {
		notices = append(notices, *rows[i].toDomain())
	}
	return notices, nil
}

// MarkDelivered flips one channel's delivery flag.
func (s *NoticeStore) MarkDelivered(ctx context.Context, noticeID int64, channel string) error {
	query := `
		UPDATE notices SET
			delivery_state = jsonb_set(delivery_state, ARRAY[$2],
				jsonb_build_object('sent', true, 'sent_at', to_jsonb(now())), true)
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, noticeID, channel); err != nil {
		return fmt.Errorf("%w: mark notice %d delivered on %s: %v", domain.ErrPersistence, noticeID, channel, err)
	}
	return nil
}
