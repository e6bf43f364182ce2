package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"placement_notifier/internal/domain"
)

// OfferPipeline turns raw messages into validated placement offers. It runs
// first in the intake precedence order.
type OfferPipeline struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewOfferPipeline builds the placement-offer pipeline.
func NewOfferPipeline(gateway Gateway, logger *slog.Logger) *OfferPipeline {
	return &OfferPipeline{
		gateway: gateway,
		logger:  logger.With("pipeline", "offer"),
	}
}

// Run classifies the message and, when the outcome is a placement offer,
// validates the extraction. matched=false means the message is outside this
// pipeline's domain, which is distinct from a classification failure.
func (p *OfferPipeline) Run(ctx context.Context, msg *domain.RawMessage) (*domain.PlacementOffer, bool, error) {
	outcome, err := p.gateway.Classify(ctx, msg.Subject, msg.Body)
	if err != nil {
		return nil, false, fmt.Errorf("classify: %w", err)
	}

	if outcome.Kind != domain.OutcomePlacementOffer {
		return nil, false, nil
	}

	ext := outcome.Offer
	if ext == nil {
		return nil, true, fmt.Errorf("%w: offer outcome without fields", domain.ErrMalformedExtraction)
	}
	if err := validateOffer(ext); err != nil {
		return nil, true, err
	}

	students, _ := domain.StudentSet{}.Union(domain.StudentSet(ext.Students))

	offer := &domain.PlacementOffer{
		Company:      strings.TrimSpace(ext.Company),
		Role:         strings.TrimSpace(ext.Role),
		Package:      strings.TrimSpace(ext.Package),
		AnnouncedOn:  announcedOn(ext.AnnouncedOn, msg.ReceivedAt),
		Students:     students,
		EmailSubject: msg.Subject,
		EmailSender:  msg.Sender,
	}

	p.logger.Debug("extracted offer",
		"company", offer.Company,
		"role", offer.Role,
		"students", len(offer.Students),
	)

	return offer, true, nil
}

func validateOffer(ext *domain.OfferExtraction) error {
	if strings.TrimSpace(ext.Company) == "" {
		return fmt.Errorf("%w: missing company", domain.ErrMalformedExtraction)
	}
	if strings.TrimSpace(ext.Role) == "" {
		return fmt.Errorf("%w: missing role", domain.ErrMalformedExtraction)
	}
	for _, s := range ext.Students {
		if s.Key() != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: no identifiable students", domain.ErrMalformedExtraction)
}

// announcedOn resolves the announcement batch date: the extracted date when
// it parses, otherwise the day the email arrived.
func announcedOn(extracted string, receivedAt time.Time) string {
	if _, err := time.Parse("2006-01-02", extracted); err == nil {
		return extracted
	}
	return receivedAt.UTC().Format("2006-01-02")
}
