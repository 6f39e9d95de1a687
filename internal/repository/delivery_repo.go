package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/pkg/clock"
	"github.com/resend-dispatch/campaign/pkg/logger"
)

// ErrAttemptNotQueued is returned by RecordResult when the target row is not
// in status=queued; RecordResult only transitions a queued row.
var ErrAttemptNotQueued = errors.New("delivery attempt is not in queued status")

// DeliveryRepository is the SQLite-backed domain.DeliveryRepo.
type DeliveryRepository struct {
	db     *sql.DB
	clock  clock.Clock
	logger logger.Logger
}

// NewDeliveryRepository creates a DeliveryRepository over db.
func NewDeliveryRepository(db *sql.DB, c clock.Clock, log logger.Logger) *DeliveryRepository {
	return &DeliveryRepository{db: db, clock: c, logger: log}
}

func (r *DeliveryRepository) BeginAttempt(ctx context.Context, campaignID, email, templateID, subject string, attemptNo int) (int64, error) {
	now := r.clock.Now().UTC()
	query, args, err := sb.Insert("deliveries").
		Columns("campaign_id", "email", "template_id", "subject", "status", "attempt_no", "created_at", "updated_at").
		Values(campaignID, email, templateID, subject, string(domain.StatusQueued), attemptNo, now, now).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build begin_attempt query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("insert delivery attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted delivery id: %w", err)
	}
	return id, nil
}

func (r *DeliveryRepository) RecordResult(ctx context.Context, attemptID int64, outcome domain.DeliveryOutcome) error {
	now := r.clock.Now().UTC()

	builder := sb.Update("deliveries").
		Set("status", string(outcome.Status)).
		Set("updated_at", now).
		Where(sq.Eq{"id": attemptID, "status": string(domain.StatusQueued)})

	if outcome.ProviderMessageID != nil {
		builder = builder.Set("provider_message_id", *outcome.ProviderMessageID)
	}
	if outcome.HTTPStatus != nil {
		builder = builder.Set("http_status", *outcome.HTTPStatus)
	}
	if outcome.ErrorKind != nil {
		builder = builder.Set("error_kind", string(*outcome.ErrorKind))
	}
	if outcome.ErrorDetail != nil {
		builder = builder.Set("error_detail", truncate(*outcome.ErrorDetail, 4096))
	}
	if outcome.AttemptNo != nil {
		builder = builder.Set("attempt_no", *outcome.AttemptNo)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build record_result query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update delivery attempt: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected: %w", err)
	}
	if n == 0 {
		return ErrAttemptNotQueued
	}
	return nil
}

// UpdateByMessageID applies a webhook-driven transition. The WHERE clause
// requires the row still be in StatusSent, which makes repeated delivery of
// the same event idempotent: the second and later applications affect zero
// rows and return nil.
func (r *DeliveryRepository) UpdateByMessageID(ctx context.Context, providerMessageID string, newStatus domain.DeliveryStatus, eventTime time.Time) error {
	query, args, err := sb.Update("deliveries").
		Set("status", string(newStatus)).
		Set("updated_at", eventTime.UTC()).
		Where(sq.Eq{"provider_message_id": providerMessageID, "status": string(domain.StatusSent)}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update_by_message_id query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update delivery by message id: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read rows affected: %w", err)
	}
	if n == 0 {
		r.logger.WithField("provider_message_id", providerMessageID).
			WithField("new_status", string(newStatus)).
			Debug("update_by_message_id matched no row")
	}
	return nil
}

func (r *DeliveryRepository) Stats(ctx context.Context, campaignID string) (domain.DeliveryStats, error) {
	builder := sb.Select("status", "COUNT(*)").From("deliveries")
	if campaignID != "" {
		builder = builder.Where(sq.Eq{"campaign_id": campaignID})
	}
	builder = builder.GroupBy("status")

	query, args, err := builder.ToSql()
	if err != nil {
		return domain.DeliveryStats{}, fmt.Errorf("build stats query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.DeliveryStats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats domain.DeliveryStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return domain.DeliveryStats{}, fmt.Errorf("scan stats row: %w", err)
		}
		stats.Total += count
		switch domain.DeliveryStatus(status) {
		case domain.StatusSent:
			stats.Sent = count
		case domain.StatusDelivered:
			stats.Delivered = count
		case domain.StatusBounced:
			stats.Bounced = count
		case domain.StatusComplained:
			stats.Complained = count
		case domain.StatusFailed:
			stats.Failed = count
		case domain.StatusSuppressed:
			stats.Suppressed = count
		case domain.StatusDryRun:
			stats.DryRun = count
		}
	}
	return stats, rows.Err()
}

func (r *DeliveryRepository) Recent(ctx context.Context, limit int) ([]domain.DeliveryAttempt, error) {
	if limit <= 0 {
		limit = 50
	}
	query, args, err := sb.Select(
		"id", "campaign_id", "email", "template_id", "subject", "provider_message_id",
		"status", "attempt_no", "http_status", "error_kind", "error_detail",
		"created_at", "updated_at",
	).From("deliveries").OrderBy("id DESC").Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryAttempt
	for rows.Next() {
		var a domain.DeliveryAttempt
		var providerMessageID, errorKind, errorDetail sql.NullString
		var httpStatus sql.NullInt64
		var status string
		if err := rows.Scan(
			&a.ID, &a.CampaignID, &a.Email, &a.TemplateID, &a.Subject, &providerMessageID,
			&status, &a.AttemptNo, &httpStatus, &errorKind, &errorDetail,
			&a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery row: %w", err)
		}
		a.Status = domain.DeliveryStatus(status)
		if providerMessageID.Valid {
			v := providerMessageID.String
			a.ProviderMessageID = &v
		}
		if httpStatus.Valid {
			v := int(httpStatus.Int64)
			a.HTTPStatus = &v
		}
		if errorKind.Valid {
			v := domain.ErrorKind(errorKind.String)
			a.ErrorKind = &v
		}
		if errorDetail.Valid {
			v := errorDetail.String
			a.ErrorDetail = &v
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

var _ domain.DeliveryRepo = (*DeliveryRepository)(nil)
