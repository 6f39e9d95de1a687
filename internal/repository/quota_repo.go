package repository

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/pkg/clock"
)

// QuotaRepository is the SQLite-backed domain.QuotaStore. Reservation and
// increment happen inside one transaction so concurrent callers cannot
// together exceed limit.
type QuotaRepository struct {
	db    *sql.DB
	clock clock.Clock
	limit int
}

// NewQuotaRepository creates a QuotaRepository enforcing limit sends per
// UTC calendar day.
func NewQuotaRepository(db *sql.DB, c clock.Clock, limit int) *QuotaRepository {
	return &QuotaRepository{db: db, clock: c, limit: limit}
}

func (r *QuotaRepository) today() string {
	return r.clock.Now().UTC().Format("2006-01-02")
}

func (r *QuotaRepository) TryReserve(ctx context.Context, n int) (bool, error) {
	date := r.today()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin quota transaction: %w", err)
	}
	defer tx.Rollback()

	selectQuery, selectArgs, err := sb.Select("used").From("daily_quota").Where(sq.Eq{"date": date}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build quota select query: %w", err)
	}

	var used int
	err = tx.QueryRowContext(ctx, selectQuery, selectArgs...).Scan(&used)
	switch {
	case err == sql.ErrNoRows:
		used = 0
	case err != nil:
		return false, fmt.Errorf("query daily quota: %w", err)
	}

	if used+n > r.limit {
		return false, nil
	}

	upsertQuery, upsertArgs, err := sb.Insert("daily_quota").
		Columns("date", "used").
		Values(date, used+n).
		Suffix("ON CONFLICT(date) DO UPDATE SET used = excluded.used").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build quota upsert query: %w", err)
	}

	if _, err := tx.ExecContext(ctx, upsertQuery, upsertArgs...); err != nil {
		return false, fmt.Errorf("upsert daily quota: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit quota transaction: %w", err)
	}
	return true, nil
}

func (r *QuotaRepository) UsedToday(ctx context.Context) (int, int, string, error) {
	date := r.today()
	query, args, err := sb.Select("used").From("daily_quota").Where(sq.Eq{"date": date}).ToSql()
	if err != nil {
		return 0, r.limit, date, fmt.Errorf("build used_today query: %w", err)
	}

	var used int
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&used)
	if err == sql.ErrNoRows {
		return 0, r.limit, date, nil
	}
	if err != nil {
		return 0, r.limit, date, fmt.Errorf("query used_today: %w", err)
	}
	return used, r.limit, date, nil
}

var _ domain.QuotaStore = (*QuotaRepository)(nil)
