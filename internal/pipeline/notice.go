package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"placement_notifier/internal/domain"
)

// NoticePipeline turns raw messages into validated general notices. It runs
// after the offer pipeline; whatever it rejects is deemed irrelevant.
type NoticePipeline struct {
	gateway Gateway
	logger  *slog.Logger
}

// NewNoticePipeline builds the general-notice pipeline.
func NewNoticePipeline(gateway Gateway, logger *slog.Logger) *NoticePipeline {
	return &NoticePipeline{
		gateway: gateway,
		logger:  logger.With("pipeline", "notice"),
	}
}

// Run classifies the message and, when the outcome is a notice, validates it
// and computes the duplicate-detection fingerprint.
func (p *NoticePipeline) Run(ctx context.Context, msg *domain.RawMessage) (*domain.Notice, bool, error) {
	outcome, err := p.gateway.Classify(ctx, msg.Subject, msg.Body)
	if err != nil {
		return nil, false, fmt.Errorf("classify: %w", err)
	}

	if outcome.Kind != domain.OutcomeNotice {
		return nil, false, nil
	}

	ext := outcome.Notice
	if ext == nil {
		return nil, true, fmt.Errorf("%w: notice outcome without fields", domain.ErrMalformedExtraction)
	}

	title := strings.TrimSpace(ext.Title)
	body := strings.TrimSpace(ext.Body)
	if len(title) < 3 {
		return nil, true, fmt.Errorf("%w: title too short", domain.ErrMalformedExtraction)
	}
	if len(body) < 10 {
		return nil, true, fmt.Errorf("%w: content too short", domain.ErrMalformedExtraction)
	}

	category := domain.ParseCategory(ext.Category)

	source := strings.TrimSpace(ext.Source)
	if source == "" {
		source = msg.Sender
	}

	var students domain.StudentSet
	if category == domain.CategoryShortlisting || category == domain.CategoryInternshipNOC {
		students, _ = domain.StudentSet{}.Union(domain.StudentSet(ext.Students))
	}

	notice := &domain.Notice{
		Fingerprint: domain.NoticeFingerprint(title, category, source),
		Title:       title,
		Body:        body,
		Category:    category,
		Source:      source,
		Author:      msg.Sender,
		Deadline:    strings.TrimSpace(ext.Deadline),
		Links:       ext.Links,
		Students:    students,
		ReceivedAt:  msg.ReceivedAt,
	}

	p.logger.Debug("extracted notice",
		"title", notice.Title,
		"category", notice.Category,
	)

	return notice, true, nil
}
