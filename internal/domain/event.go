package domain

// EventKind tags a change event.
type EventKind string

const (
	EventNewOffer     EventKind = "new_offer"
	EventUpdatedOffer EventKind = "update_offer"
	EventNewNotice    EventKind = "new_notice"
)

// ChangeEvent is the synchronous return value of an upsert describing what
// the write changed. A nil event means the write was an idempotent no-op and
// nothing should be notified. Events are logical signals, not stored
// entities; recovery after a crash goes through the delivery-state sweep.
type ChangeEvent struct {
	Kind   EventKind
	Offer  *PlacementOffer
	Notice *Notice
	Delta  *OfferDelta // set for EventUpdatedOffer only
}
