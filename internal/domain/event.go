package domain

import (
	"context"
	"time"
)

// EventType is the normalized classification of a provider webhook event.
type EventType string

const (
	EventDelivered EventType = "delivered"
	EventBounced   EventType = "bounced"
	EventComplained EventType = "complained"
	EventOpened    EventType = "opened"
	EventClicked   EventType = "clicked"
	EventOther     EventType = "other"
)

// DeliveryTransition reports the DeliveryStatus EventType maps to, and
// whether it maps to a transition at all ("opened"/"clicked"/"other" do not).
func (t EventType) DeliveryTransition() (DeliveryStatus, bool) {
	switch t {
	case EventDelivered:
		return StatusDelivered, true
	case EventBounced:
		return StatusBounced, true
	case EventComplained:
		return StatusComplained, true
	default:
		return "", false
	}
}

// Event is the persisted, append-only record of one provider webhook
// delivery, verbatim payload included, regardless of signature validity.
type Event struct {
	ID                int64
	Provider          string
	EventType         EventType
	ProviderMessageID string
	Recipient         string
	PayloadJSON       string
	SignatureValid    bool
	ReceivedAt        time.Time
}

// EventRepo appends webhook events and links valid ones to their delivery row.
type EventRepo interface {
	// Save persists event atomically, signature_valid flag included.
	Save(ctx context.Context, event Event) (int64, error)

	// LinkToDelivery delegates to DeliveryRepo.UpdateByMessageID only when
	// event.SignatureValid is true and event.EventType maps to a delivery
	// state transition; otherwise it is a no-op.
	LinkToDelivery(ctx context.Context, event Event) error

	// Recent returns the most recent events, newest first, bounded by limit.
	Recent(ctx context.Context, limit int) ([]Event, error)
}
