package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/pkg/clock"
)

// EventRepository is the SQLite-backed domain.EventRepo.
type EventRepository struct {
	db      *sql.DB
	clock   clock.Clock
	deliveries domain.DeliveryRepo
}

// NewEventRepository creates an EventRepository. deliveries is the
// DeliveryRepo that LinkToDelivery delegates webhook-driven transitions to.
func NewEventRepository(db *sql.DB, c clock.Clock, deliveries domain.DeliveryRepo) *EventRepository {
	return &EventRepository{db: db, clock: c, deliveries: deliveries}
}

func (r *EventRepository) Save(ctx context.Context, event domain.Event) (int64, error) {
	receivedAt := event.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = r.clock.Now()
	}

	query, args, err := sb.Insert("events").
		Columns("provider", "event_type", "provider_message_id", "recipient", "payload_json", "signature_valid", "received_at").
		Values(event.Provider, string(event.EventType), event.ProviderMessageID, event.Recipient, truncate(event.PayloadJSON, 65536), event.SignatureValid, receivedAt.UTC()).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build event insert query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted event id: %w", err)
	}
	return id, nil
}

// LinkToDelivery transitions the matching DeliveryAttempt only for
// signature-valid events whose type maps to a delivery state, per the
// invariant that signature_valid=false events never mutate deliveries.
func (r *EventRepository) LinkToDelivery(ctx context.Context, event domain.Event) error {
	if !event.SignatureValid {
		return nil
	}
	status, ok := event.EventType.DeliveryTransition()
	if !ok {
		return nil
	}
	return r.deliveries.UpdateByMessageID(ctx, event.ProviderMessageID, status, event.ReceivedAt)
}

func (r *EventRepository) Recent(ctx context.Context, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := sb.Select(
		"id", "provider", "event_type", "provider_message_id", "recipient",
		"payload_json", "signature_valid", "received_at",
	).From("events").OrderBy("id DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent events query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var eventType string
		if err := rows.Scan(&e.ID, &e.Provider, &eventType, &e.ProviderMessageID, &e.Recipient, &e.PayloadJSON, &e.SignatureValid, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		e.EventType = domain.EventType(eventType)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ domain.EventRepo = (*EventRepository)(nil)
