package domain

// OutcomeKind tags a classification outcome.
type OutcomeKind string

const (
	OutcomeNotRelevant    OutcomeKind = "not_relevant"
	OutcomePlacementOffer OutcomeKind = "placement_offer"
	OutcomeNotice         OutcomeKind = "notice"
)

// ClassificationOutcome is the typed result of classifying one raw message.
// Exactly one of Offer/Notice is set, matching Kind. Outcomes are ephemeral
// and never persisted directly.
type ClassificationOutcome struct {
	Kind   OutcomeKind
	Reason string // rejection reason when not relevant

	Offer  *OfferExtraction
	Notice *NoticeExtraction
}

// OfferExtraction carries raw placement-offer fields before validation.
type OfferExtraction struct {
	Company     string
	Role        string
	Package     string
	AnnouncedOn string
	Students    []Student
}

// NoticeExtraction carries raw notice fields before validation. Category is
// free-form here; the pipeline resolves it to a known value.
type NoticeExtraction struct {
	Title    string
	Body     string
	Category string
	Source   string
	Deadline string
	Links    []string
	Students []Student
}
