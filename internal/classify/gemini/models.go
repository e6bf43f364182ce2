package gemini

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"placement_notifier/internal/domain"
)

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type generationConfig struct {
	Temperature float64 `json:"temperature"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content content `json:"content"`
}

// outcomePayload is the wire shape the prompt asks the model to produce.
type outcomePayload struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`

	// placement_offer fields
	Company     string           `json:"company"`
	Role        string           `json:"role"`
	Package     string           `json:"package"`
	AnnouncedOn string           `json:"announced_on"`
	Students    []studentPayload `json:"students"`

	// notice fields
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Type     string   `json:"type"`
	Source   string   `json:"source"`
	Deadline string   `json:"deadline"`
	Links    []string `json:"links"`
}

type studentPayload struct {
	Name       string `json:"name"`
	Enrollment string `json:"enrollment"`
	Company    string `json:"company"`
}

var fenceRe = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")

// extractJSON strips optional markdown code fences around the model output.
func extractJSON(text string) string {
	if m := fenceRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(text)
}

func parseOutcome(text string) (*domain.ClassificationOutcome, error) {
	var payload outcomePayload
	if err := json.Unmarshal([]byte(extractJSON(text)), &payload); err != nil {
		return nil, fmt.Errorf("unmarshal outcome: %w", err)
	}

	students := make([]domain.Student, 0, len(payload.Students))
	for _, s := range payload.Students {
		students = append(students, domain.Student{
			Name:       s.Name,
			Enrollment: s.Enrollment,
			Company:    s.Company,
		})
	}

	switch payload.Kind {
	case "not_relevant":
		return &domain.ClassificationOutcome{
			Kind:   domain.OutcomeNotRelevant,
			Reason: payload.Reason,
		}, nil
	case "placement_offer":
		return &domain.ClassificationOutcome{
			Kind: domain.OutcomePlacementOffer,
			Offer: &domain.OfferExtraction{
				Company:     payload.Company,
				Role:        payload.Role,
				Package:     payload.Package,
				AnnouncedOn: payload.AnnouncedOn,
				Students:    students,
			},
		}, nil
	case "notice":
		return &domain.ClassificationOutcome{
			Kind: domain.OutcomeNotice,
			Notice: &domain.NoticeExtraction{
				Title:    payload.Title,
				Body:     payload.Content,
				Category: payload.Type,
				Source:   payload.Source,
				Deadline: payload.Deadline,
				Links:    payload.Links,
				Students: students,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown outcome kind %q", payload.Kind)
	}
}
