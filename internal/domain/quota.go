package domain

import "context"

// DailyQuota is a persistent per-day send counter. Rows are created lazily
// and only ever incremented; they are never decremented.
type DailyQuota struct {
	Date string // ISO-8601 calendar day, UTC
	Used int
}

// QuotaStore enforces a hard daily ceiling on send intents. Reservation and
// increment happen as one atomic step so concurrent callers cannot together
// exceed the configured limit.
type QuotaStore interface {
	// TryReserve atomically reads today's used count; if used+n <= limit it
	// increments and returns true, else it returns false without mutating
	// state. Reservations are not refunded if the send that follows fails.
	TryReserve(ctx context.Context, n int) (bool, error)

	// UsedToday returns today's used count, the configured limit, and the
	// ISO-8601 day string it applies to.
	UsedToday(ctx context.Context) (used int, limit int, date string, err error)
}
