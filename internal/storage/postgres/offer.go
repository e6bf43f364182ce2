package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"placement_notifier/internal/domain"
)

// OfferStore persists placement offers with insert-or-merge semantics. Every
// upsert runs in one transaction under a per-key advisory lock, so concurrent
// upserts of the same natural key serialize at the store and merges are never
// partially applied.
type OfferStore struct {
	db       *sqlx.DB
	txm      *TransactionManager
	channels []string
}

// NewOfferStore creates the store. channels is the configured channel set,
// used to decide when a pending delta is fully delivered.
func NewOfferStore(db *sqlx.DB, txm *TransactionManager, channels []string) *OfferStore {
	return &OfferStore{db: db, txm: txm, channels: channels}
}

type offerRow struct {
	ID           int64                `db:"id"`
	Company      string               `db:"company"`
	Role         string               `db:"role"`
	AnnouncedOn  string               `db:"announced_on"`
	Package      string               `db:"package"`
	Students     domain.StudentSet    `db:"students"`
	EmailSubject string               `db:"email_subject"`
	EmailSender  string               `db:"email_sender"`
	Delivery     domain.DeliveryState `db:"delivery_state"`
	PendingDelta []byte               `db:"pending_delta"`
	CreatedAt    time.Time            `db:"created_at"`
	UpdatedAt    time.Time            `db:"updated_at"`
}

func (r *offerRow) toDomain() (*domain.PlacementOffer, error) {
	offer := &domain.PlacementOffer{
		ID:           r.ID,
		Company:      r.Company,
		Role:         r.Role,
		AnnouncedOn:  r.AnnouncedOn,
		Package:      r.Package,
		Students:     r.Students,
		EmailSubject: r.EmailSubject,
		EmailSender:  r.EmailSender,
		Delivery:     r.Delivery,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.PendingDelta) > 0 {
		var delta domain.OfferDelta
		if err := json.Unmarshal(r.PendingDelta, &delta); err != nil {
			return nil, fmt.Errorf("decode pending delta: %w", err)
		}
		offer.PendingDelta = &delta
	}
	return offer, nil
}

const offerColumns = `id, company, role, announced_on, package, students,
	email_subject, email_sender, delivery_state, pending_delta, created_at, updated_at`

// Upsert inserts a new offer or merges it into the existing record with the
// same (company, role, announced_on) key. The returned event is nil when the
// write was an idempotent no-op.
func (s *OfferStore) Upsert(ctx context.Context, offer *domain.PlacementOffer) (*domain.ChangeEvent, error) {
	var event *domain.ChangeEvent

	err := s.txm.WithTransaction(ctx, func(txCtx context.Context) error {
		ex := GetExecutor(txCtx, s.db)

		// Serializes concurrent upserts to the same natural key, including
		// the insert race where both sides see no existing row.
		key := offer.Company + "|" + offer.Role + "|" + offer.AnnouncedOn
		if _, err := ex.ExecContext(txCtx, "SELECT pg_advisory_xact_lock(hashtextextended($1, 0))", key); err != nil {
			return fmt.Errorf("acquire key lock: %w", err)
		}

		existing, err := s.getByKey(txCtx, ex, offer.Company, offer.Role, offer.AnnouncedOn)
		if err != nil {
			return err
		}

		if existing == nil {
			inserted, err := s.insert(txCtx, ex, offer)
			if err != nil {
				return err
			}
			event = &domain.ChangeEvent{Kind: domain.EventNewOffer, Offer: inserted}
			return nil
		}

		merged, delta := mergeOffer(existing, offer)
		if delta.Empty() {
			return nil
		}

		merged.PendingDelta = existing.PendingDelta.Merge(delta)
		if err := s.update(txCtx, ex, merged); err != nil {
			return err
		}
		event = &domain.ChangeEvent{Kind: domain.EventUpdatedOffer, Offer: merged, Delta: delta}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: upsert offer %s/%s: %v", domain.ErrPersistence, offer.Company, offer.Role, err)
	}

	return event, nil
}

func (s *OfferStore) getByKey(ctx context.Context, ex sqlx.ExtContext, company, role, announcedOn string) (*domain.PlacementOffer, error) {
	query := `SELECT ` + offerColumns + `
		FROM placement_offers
		WHERE company = $1 AND role = $2 AND announced_on = $3`

	var row offerRow
	err := sqlx.GetContext(ctx, ex, &row, query, company, role, announcedOn)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load offer: %w", err)
	}
	return row.toDomain()
}

func (s *OfferStore) insert(ctx context.Context, ex sqlx.ExtContext, offer *domain.PlacementOffer) (*domain.PlacementOffer, error) {
	query := `
		INSERT INTO placement_offers (
			company, role, announced_on, package, students,
			email_subject, email_sender, delivery_state
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '{}')
		RETURNING id, created_at, updated_at`

	inserted := *offer
	inserted.Delivery = domain.DeliveryState{}

	err := ex.QueryRowxContext(ctx, query,
		offer.Company,
		offer.Role,
		offer.AnnouncedOn,
		offer.Package,
		offer.Students,
		offer.EmailSubject,
		offer.EmailSender,
	).Scan(&inserted.ID, &inserted.CreatedAt, &inserted.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert offer: %w", err)
	}

	return &inserted, nil
}

func (s *OfferStore) update(ctx context.Context, ex sqlx.ExtContext, offer *domain.PlacementOffer) error {
	pending, err := json.Marshal(offer.PendingDelta)
	if err != nil {
		return fmt.Errorf("encode pending delta: %w", err)
	}

	// A real change resets the delivery state: the grown record needs
	// re-delivery on every channel.
	query := `
		UPDATE placement_offers SET
			package = $2,
			students = $3,
			pending_delta = $4,
			delivery_state = '{}',
			updated_at = now()
		WHERE id = $1`

	if _, err := ex.ExecContext(ctx, query, offer.ID, offer.Package, offer.Students, pending); err != nil {
		return fmt.Errorf("update offer: %w", err)
	}
	offer.Delivery = domain.DeliveryState{}
	return nil
}

// mergeOffer folds the incoming report into the stored record. The student
// set only grows; a package, once set, is only replaced by an explicit
// non-empty new value and never cleared by an empty one.
func mergeOffer(existing, incoming *domain.PlacementOffer) (*domain.PlacementOffer, *domain.OfferDelta) {
	merged := *existing

	students, added := existing.Students.Union(incoming.Students)
	merged.Students = students

	delta := &domain.OfferDelta{AddedStudents: added}
	if incoming.Package != "" && incoming.Package != existing.Package {
		delta.PackageChanged = true
		delta.OldPackage = existing.Package
		delta.NewPackage = incoming.Package
		merged.Package = incoming.Package
	}

	return &merged, delta
}

// ListUnsent returns offers not yet delivered on the given channel, oldest
// first.
func (s *OfferStore) ListUnsent(ctx context.Context, channel string) ([]domain.PlacementOffer, error) {
	query := `SELECT ` + offerColumns + `
		FROM placement_offers
		WHERE COALESCE((delivery_state -> $1 ->> 'sent')::boolean, false) = false
		ORDER BY created_at`

	var rows []offerRow
	if err := s.db.SelectContext(ctx, &rows, query, channel); err != nil {
		return nil, fmt.Errorf("%w: list unsent offers: %v", domain.ErrPersistence, err)
	}

	offers := make([]domain.PlacementOffer, 0, len(rows))
	for i := range rows {
		offer, err := rows[i].toDomain()
		if err != nil {
			return nil, fmt.Errorf("%w: offer %d: %v", domain.ErrPersistence, rows[i].ID, err)
		}
		offers = append(offers, *offer)
	}
	return offers, nil
}

// MarkDelivered flips one channel's delivery flag and clears the pending
// delta once every configured channel has been delivered.
func (s *OfferStore) MarkDelivered(ctx context.Context, offerID int64, channel string) error {
	err := s.txm.WithTransaction(ctx, func(txCtx context.Context) error {
		ex := GetExecutor(txCtx, s.db)

		query := `
			UPDATE placement_offers SET
				delivery_state = jsonb_set(delivery_state, ARRAY[$2],
					jsonb_build_object('sent', true, 'sent_at', to_jsonb(now())), true),
				updated_at = now()
			WHERE id = $1
			RETURNING delivery_state`

		var state domain.DeliveryState
		if err := ex.QueryRowxContext(txCtx, query, offerID, channel).Scan(&state); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}

		if state.AllSent(s.channels) {
			if _, err := ex.ExecContext(txCtx, "UPDATE placement_offers SET pending_delta = NULL WHERE id = $1", offerID); err != nil {
				return fmt.Errorf("clear pending delta: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: offer %d on %s: %v", domain.ErrPersistence, offerID, channel, err)
	}
	return nil
}
