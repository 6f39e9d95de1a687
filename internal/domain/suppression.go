package domain

import (
	"context"
	"time"
)

// SuppressionKind records why an address was suppressed.
type SuppressionKind string

const (
	SuppressionUnsubscribe SuppressionKind = "unsubscribe"
	SuppressionBounce      SuppressionKind = "bounce"
	SuppressionComplaint   SuppressionKind = "complaint"
	SuppressionManual      SuppressionKind = "manual"
)

// Suppression is a policy-level block on sending to a given address.
type Suppression struct {
	Email     string
	Kind      SuppressionKind
	Detail    string
	CreatedAt time.Time
}

// SuppressionStore is a read-mostly mapping from normalized email to
// suppression record.
type SuppressionStore interface {
	// IsSuppressed reports whether email (after normalization) is suppressed.
	IsSuppressed(ctx context.Context, email string) (bool, error)

	// Add idempotently upserts a suppression record; last write wins.
	Add(ctx context.Context, email string, kind SuppressionKind, detail string) error
}
