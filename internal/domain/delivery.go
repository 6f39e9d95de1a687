package domain

import (
	"context"
	"time"
)

// DeliveryStatus is the lifecycle state of one DeliveryAttempt row.
type DeliveryStatus string

const (
	StatusQueued     DeliveryStatus = "queued"
	StatusSent       DeliveryStatus = "sent"
	StatusDelivered  DeliveryStatus = "delivered"
	StatusBounced    DeliveryStatus = "bounced"
	StatusComplained DeliveryStatus = "complained"
	StatusFailed     DeliveryStatus = "failed"
	StatusSuppressed DeliveryStatus = "suppressed"
	StatusDryRun     DeliveryStatus = "dry_run"
)

// IsTerminal reports whether s is a status from which no further in-process
// transition is expected (webhook-driven transitions from StatusSent are the
// one exception, handled separately by DeliveryRepo.UpdateByMessageID).
func (s DeliveryStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusBounced, StatusComplained, StatusFailed, StatusSuppressed, StatusDryRun:
		return true
	default:
		return false
	}
}

// DeliveryAttempt is the persisted, append-only record of one attempt to
// deliver a message to one recipient within one campaign.
type DeliveryAttempt struct {
	ID                int64
	Email             string
	CampaignID        string
	TemplateID        string
	Subject           string
	ProviderMessageID *string
	Status            DeliveryStatus
	AttemptNo         int
	HTTPStatus        *int
	ErrorKind         *ErrorKind
	ErrorDetail       *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// DeliveryOutcome carries the fields DeliveryRepo.RecordResult needs to
// transition a queued attempt to its next status.
type DeliveryOutcome struct {
	Status            DeliveryStatus
	ProviderMessageID *string
	HTTPStatus        *int
	ErrorKind         *ErrorKind
	ErrorDetail       *string
	// AttemptNo, when set, overwrites the row's attempt_no with the final
	// try count (RetryController may have tried more than once before this
	// outcome was reached).
	AttemptNo *int
}

// DeliveryStats summarizes terminal-status counts for a campaign (or,
// when campaignID is empty, across all campaigns).
type DeliveryStats struct {
	Total       int
	Sent        int
	Delivered   int
	Bounced     int
	Complained  int
	Failed      int
	Suppressed  int
	DryRun      int
}

// DeliveryRepo appends delivery attempts, queries aggregate stats, and
// supports idempotent, provider-message-id-keyed status transitions driven
// by webhook events.
type DeliveryRepo interface {
	// BeginAttempt creates a new DeliveryAttempt row with status=queued and
	// returns its id.
	BeginAttempt(ctx context.Context, campaignID, email, templateID, subject string, attemptNo int) (int64, error)

	// RecordResult transitions attemptID from queued to a terminal
	// non-webhook-driven status (sent, failed, suppressed, dry_run).
	RecordResult(ctx context.Context, attemptID int64, outcome DeliveryOutcome) error

	// UpdateByMessageID applies a webhook-driven transition to the row whose
	// provider_message_id matches. It is a no-op (logged, not an error) if no
	// row matches, and idempotent: applying the same
	// (providerMessageID, newStatus) pair repeatedly only transitions once.
	UpdateByMessageID(ctx context.Context, providerMessageID string, newStatus DeliveryStatus, eventTime time.Time) error

	// Stats returns terminal-status counts, optionally scoped to one campaign.
	Stats(ctx context.Context, campaignID string) (DeliveryStats, error)

	// Recent returns the most recent attempts, newest first, bounded by limit.
	Recent(ctx context.Context, limit int) ([]DeliveryAttempt, error)
}
