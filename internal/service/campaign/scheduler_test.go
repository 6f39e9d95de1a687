package campaign

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/internal/repository"
	"github.com/resend-dispatch/campaign/pkg/clock"
	"github.com/resend-dispatch/campaign/pkg/logger"
)

func openSchedulerTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:sched_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	require.NoError(t, repository.InitializeSchema(db))
	t.Cleanup(func() { db.Close() })
	return db
}

// fakeProvider answers Send deterministically per recipient from a
// pre-programmed queue of results, recording every call it receives.
type fakeProvider struct {
	mu       sync.Mutex
	queue    map[string][]domain.SendResult // email -> results, consumed in order
	calls    map[string]int
	fallback domain.SendResult
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		queue: make(map[string][]domain.SendResult),
		calls: make(map[string]int),
		fallback: domain.SendResult{
			Kind:              domain.SendAccepted,
			ProviderMessageID: "msg_default",
			HTTPStatus:        202,
		},
	}
}

func (f *fakeProvider) program(email string, results ...domain.SendResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue[email] = results
}

func (f *fakeProvider) Send(ctx context.Context, req domain.SendRequest) (domain.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.ToAddr]++

	q := f.queue[req.ToAddr]
	if len(q) == 0 {
		return f.fallback, nil
	}
	result := q[0]
	f.queue[req.ToAddr] = q[1:]
	return result, nil
}

func (f *fakeProvider) callCount(email string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[email]
}

func fakeRenderer(ctx context.Context, templateID string, vars map[string]string) (domain.RenderedMessage, error) {
	if templateID == "broken" {
		return domain.RenderedMessage{}, fmt.Errorf("unknown block in template")
	}
	return domain.RenderedMessage{Subject: "Hello", HTML: "<p>hi</p>", Text: "hi"}, nil
}

func newTestScheduler(t *testing.T, provider domain.ProviderClient, c clock.Clock, cfg Config) (*Scheduler, *repository.DeliveryRepository, *repository.SuppressionRepository) {
	t.Helper()
	db := openSchedulerTestDB(t)
	log := logger.NewMockLogger()

	deliveries := repository.NewDeliveryRepository(db, c, log)
	suppression := repository.NewSuppressionRepository(db, c)
	quota := repository.NewQuotaRepository(db, c, cfg.DailyLimit)

	sched := NewScheduler(suppression, quota, deliveries, provider, fakeRenderer, c, log, cfg, "sender@example.com", "Example")
	return sched, deliveries, suppression
}

func recipients(emails ...string) []domain.Recipient {
	out := make([]domain.Recipient, len(emails))
	for i, e := range emails {
		out[i] = domain.Recipient{Email: e}
	}
	return out
}

func drainProgress(ch <-chan domain.ProgressEvent) domain.ProgressEvent {
	var final domain.ProgressEvent
	for ev := range ch {
		if ev.Final {
			final = ev
		}
	}
	return final
}

// S1 — happy path dry run.
func TestSchedulerDryRun(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerMinute = 6000
	c := clock.NewMock(time.Now())
	provider := newFakeProvider()
	sched, deliveries, _ := newTestScheduler(t, provider, c, cfg)

	ch := sched.Run(context.Background(), RunRequest{
		CampaignID: "camp-s1",
		Recipients: recipients("a@x.io", "b@x.io", "c@x.io"),
		TemplateID: "t1",
		DryRun:     true,
		Concurrency: 2,
	})
	final := drainProgress(ch)

	assert.Equal(t, domain.ReasonFinished, final.Reason)
	assert.EqualValues(t, 3, final.Counts.Total)
	assert.EqualValues(t, 3, final.Counts.DryRun)
	assert.EqualValues(t, 0, final.Counts.Succeeded)
	assert.Zero(t, provider.callCount("a@x.io"))

	rows, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Equal(t, domain.StatusDryRun, row.Status)
	}
}

// S2 — suppression gate.
func TestSchedulerSuppressionGate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerMinute = 6000
	c := clock.NewMock(time.Now())
	provider := newFakeProvider()
	sched, deliveries, suppression := newTestScheduler(t, provider, c, cfg)

	require.NoError(t, suppression.Add(context.Background(), "b@x.io", domain.SuppressionUnsubscribe, "user request"))

	ch := sched.Run(context.Background(), RunRequest{
		CampaignID:  "camp-s2",
		Recipients:  recipients("a@x.io", "b@x.io", "c@x.io"),
		TemplateID:  "t1",
		Concurrency: 2,
	})
	final := drainProgress(ch)

	assert.EqualValues(t, 2, final.Counts.Succeeded)
	assert.EqualValues(t, 1, final.Counts.Suppressed)
	assert.Equal(t, 1, provider.callCount("a@x.io"))
	assert.Zero(t, provider.callCount("b@x.io"))

	rows, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	for _, row := range rows {
		if row.Email == "b@x.io" {
			assert.Equal(t, domain.StatusSuppressed, row.Status)
		}
	}
}

// S3 — transient then success.
func TestSchedulerTransientThenSuccess(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerMinute = 6000
	c := clock.NewMock(time.Now())
	provider := newFakeProvider()
	provider.program("a@x.io",
		domain.SendResult{Kind: domain.SendTransientFailure, HTTPStatus: 503},
		domain.SendResult{Kind: domain.SendAccepted, ProviderMessageID: "msg_42", HTTPStatus: 202},
	)
	sched, deliveries, _ := newTestScheduler(t, provider, c, cfg)

	go func() {
		for i := 0; i < 10; i++ {
			time.Sleep(time.Millisecond)
			c.Advance(35 * time.Second)
		}
	}()

	ch := sched.Run(context.Background(), RunRequest{
		CampaignID:  "camp-s3",
		Recipients:  recipients("a@x.io"),
		TemplateID:  "t1",
		Concurrency: 1,
	})
	final := drainProgress(ch)

	assert.EqualValues(t, 1, final.Counts.Succeeded)
	assert.Equal(t, 2, provider.callCount("a@x.io"))

	rows, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.StatusSent, rows[0].Status)
	assert.Equal(t, 2, rows[0].AttemptNo)
	require.NotNil(t, rows[0].ProviderMessageID)
	assert.Equal(t, "msg_42", *rows[0].ProviderMessageID)
}

// S4 — quota exhausted mid-run.
func TestSchedulerQuotaExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerMinute = 6000
	cfg.DailyLimit = 1
	c := clock.NewMock(time.Now())
	provider := newFakeProvider()
	sched, deliveries, _ := newTestScheduler(t, provider, c, cfg)

	ch := sched.Run(context.Background(), RunRequest{
		CampaignID:  "camp-s4",
		Recipients:  recipients("a@x.io", "b@x.io", "c@x.io"),
		TemplateID:  "t1",
		Concurrency: 1,
	})
	final := drainProgress(ch)

	assert.Equal(t, domain.ReasonQuotaExhausted, final.Reason)
	assert.EqualValues(t, 1, final.Counts.Succeeded)
	assert.EqualValues(t, 2, final.Counts.Failed)

	rows, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	var failedQuota int
	for _, row := range rows {
		if row.Status == domain.StatusFailed {
			require.NotNil(t, row.ErrorKind)
			assert.Equal(t, domain.ErrorKindQuotaExhausted, *row.ErrorKind)
			failedQuota++
		}
	}
	assert.Equal(t, 2, failedQuota)
}

func TestSchedulerRenderErrorIsNonRetryable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerMinute = 6000
	c := clock.NewMock(time.Now())
	provider := newFakeProvider()
	sched, deliveries, _ := newTestScheduler(t, provider, c, cfg)

	ch := sched.Run(context.Background(), RunRequest{
		CampaignID:  "camp-render",
		Recipients:  recipients("a@x.io"),
		TemplateID:  "broken",
		Concurrency: 1,
	})
	final := drainProgress(ch)

	assert.EqualValues(t, 1, final.Counts.Failed)
	assert.Zero(t, provider.callCount("a@x.io"))

	rows, err := deliveries.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ErrorKind)
	assert.Equal(t, domain.ErrorKindRender, *rows[0].ErrorKind)
}

func TestSchedulerCancellationStopsAdmission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RatePerMinute = 6000
	c := clock.NewMock(time.Now())
	provider := newFakeProvider()
	sched, _, _ := newTestScheduler(t, provider, c, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before Run is even called

	ch := sched.Run(ctx, RunRequest{
		CampaignID:  "camp-cancel",
		Recipients:  recipients("a@x.io", "b@x.io", "c@x.io"),
		TemplateID:  "t1",
		Concurrency: 1,
	})
	final := drainProgress(ch)

	assert.Equal(t, domain.ReasonCancelled, final.Reason)
	assert.Zero(t, provider.callCount("a@x.io"))

	sum := final.Counts.Succeeded + final.Counts.Failed + final.Counts.Suppressed + final.Counts.DryRun
	assert.Equal(t, final.Counts.Total, sum, "every recipient not admitted before cancel must still be counted at the final event")
}
