package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/pkg/clock"
)

// SuppressionRepository is the SQLite-backed domain.SuppressionStore.
type SuppressionRepository struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSuppressionRepository creates a SuppressionRepository over db.
func NewSuppressionRepository(db *sql.DB, c clock.Clock) *SuppressionRepository {
	return &SuppressionRepository{db: db, clock: c}
}

func (r *SuppressionRepository) IsSuppressed(ctx context.Context, email string) (bool, error) {
	normalized := domain.NormalizeEmail(email)
	query, args, err := sb.Select("1").From("suppressions").Where(sq.Eq{"email": normalized}).Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build is_suppressed query: %w", err)
	}

	var one int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query is_suppressed: %w", err)
	}
	return true, nil
}

// Add idempotently upserts a suppression record using SQLite's
// INSERT ... ON CONFLICT DO UPDATE, so the last write wins.
func (r *SuppressionRepository) Add(ctx context.Context, email string, kind domain.SuppressionKind, detail string) error {
	normalized := domain.NormalizeEmail(email)
	now := r.clock.Now().UTC()

	query, args, err := sb.Insert("suppressions").
		Columns("email", "kind", "detail", "created_at").
		Values(normalized, string(kind), detail, now).
		Suffix("ON CONFLICT(email) DO UPDATE SET kind = excluded.kind, detail = excluded.detail, created_at = excluded.created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build suppression upsert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert suppression: %w", err)
	}
	return nil
}

var _ domain.SuppressionStore = (*SuppressionRepository)(nil)
