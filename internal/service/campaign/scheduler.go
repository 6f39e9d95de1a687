package campaign

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/pkg/clock"
	"github.com/resend-dispatch/campaign/pkg/logger"
	"github.com/resend-dispatch/campaign/pkg/ratelimiter"
)

// Scheduler is the bounded-concurrency worker pool that drives one campaign
// run end to end: suppression gate, quota reservation, rate-limiter
// admission, template render, provider send with retry, and result
// persistence. A Scheduler value is created fresh per campaign run; it is
// not a global singleton.
type Scheduler struct {
	suppression domain.SuppressionStore
	quota       domain.QuotaStore
	limiter     *ratelimiter.TokenBucket
	deliveries  domain.DeliveryRepo
	provider    domain.ProviderClient
	render      domain.Renderer
	retry       *RetryController
	breaker     *circuitBreaker
	clock       clock.Clock
	logger      logger.Logger
	cfg         Config

	fromAddr string
	fromName string
}

// NewScheduler wires a Scheduler from its collaborators. fromAddr is the
// envelope sender used for every send in the run; it is validated by
// Preflight before a run starts, not by the Scheduler itself.
func NewScheduler(
	suppression domain.SuppressionStore,
	quota domain.QuotaStore,
	deliveries domain.DeliveryRepo,
	provider domain.ProviderClient,
	render domain.Renderer,
	c clock.Clock,
	log logger.Logger,
	cfg Config,
	fromAddr, fromName string,
) *Scheduler {
	return &Scheduler{
		suppression: suppression,
		quota:       quota,
		limiter:     ratelimiter.New(c, cfg.RatePerMinute),
		deliveries:  deliveries,
		provider:    provider,
		render:      render,
		retry:       NewRetryController(c, cfg),
		breaker:     newCircuitBreaker(c, cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown),
		clock:       c,
		logger:      log,
		cfg:         cfg,
		fromAddr:    fromAddr,
		fromName:    fromName,
	}
}

// RunRequest is one campaign invocation's input.
type RunRequest struct {
	CampaignID      string
	Recipients      []domain.Recipient
	TemplateID      string
	SubjectOverride string
	Concurrency     int // default Config.Concurrency; clamped to [1, 1000]
	DryRun          bool
}

func (s *Scheduler) concurrencyFor(req RunRequest) int64 {
	n := req.Concurrency
	if n <= 0 {
		n = s.cfg.Concurrency
	}
	if n < 1 {
		n = 1
	}
	if n > 1000 {
		n = 1000
	}
	return int64(n)
}

// Run starts the campaign in a background goroutine and returns at once with
// a channel of progress events in completion order. The final event
// (Final=true) is sent after every worker has drained, and the channel is
// closed right after it; callers range over the channel to follow progress
// and to wait for the run to end.
func (s *Scheduler) Run(ctx context.Context, req RunRequest) <-chan domain.ProgressEvent {
	progressCh := make(chan domain.ProgressEvent, 16)

	go func() {
		defer close(progressCh)
		s.run(ctx, req, progressCh)
	}()

	return progressCh
}

func (s *Scheduler) run(ctx context.Context, req RunRequest, progressCh chan<- domain.ProgressEvent) {
	startedAt := s.clock.Now()
	c := domain.NewCampaign(req.CampaignID, len(req.Recipients), startedAt)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(int(s.concurrencyFor(req)))

	var quotaExhausted atomic.Bool
	var storageErrored atomic.Bool

	for i, recipient := range req.Recipients {
		recipient := recipient

		if storageErrored.Load() {
			break
		}
		if ctx.Err() != nil || c.CancelRequested() {
			// new recipients are not admitted after cancel; every recipient
			// from here on still needs a row and a counted outcome so that
			// succeeded+failed+suppressed+dry_run sums to Total at Final.
			s.recordCancelled(ctx, c, progressCh, req, req.Recipients[i:], &storageErrored)
			break
		}

		if quotaExhausted.Load() {
			s.recordQuotaExhausted(ctx, c, progressCh, req, recipient, &storageErrored)
			continue
		}

		g.Go(func() error {
			s.processRecipient(gctx, c, progressCh, req, recipient, &quotaExhausted, &storageErrored)
			return nil
		})
	}

	_ = g.Wait()

	reason := domain.ReasonFinished
	switch {
	case storageErrored.Load():
		reason = domain.ReasonErrored
	case quotaExhausted.Load():
		reason = domain.ReasonQuotaExhausted
	case c.CancelRequested() || ctx.Err() != nil:
		reason = domain.ReasonCancelled
	}

	progressCh <- domain.ProgressEvent{
		CampaignID: req.CampaignID,
		Counts:     c.Snapshot(),
		Final:      true,
		Reason:     reason,
	}
}

// processRecipient runs the per-recipient pipeline: suppression gate, quota
// reservation, rate limiting, render, send with retry, and persistence.
func (s *Scheduler) processRecipient(
	ctx context.Context,
	c *domain.Campaign,
	progressCh chan<- domain.ProgressEvent,
	req RunRequest,
	recipient domain.Recipient,
	quotaExhausted *atomic.Bool,
	storageErrored *atomic.Bool,
) {
	defer func() {
		c.IncrSent()
		s.emitProgress(c, progressCh, req.CampaignID)
	}()

	email := domain.NormalizeEmail(recipient.Email)
	subject := req.SubjectOverride

	// a. suppression gate
	suppressed, err := s.suppression.IsSuppressed(ctx, email)
	if err != nil {
		s.logger.WithField("email", email).WithField("error", err.Error()).Error("suppression lookup failed")
		storageErrored.Store(true)
		c.IncrFailed()
		return
	}
	if suppressed {
		s.finalizeWithoutSend(ctx, c, req, email, subject, domain.StatusSuppressed, nil, storageErrored)
		c.IncrSuppressed()
		return
	}

	// b. dry run: render only, never call the provider
	if req.DryRun {
		if _, err := s.render(ctx, req.TemplateID, recipient.Vars); err != nil {
			kind := domain.ErrorKindRender
			detail := err.Error()
			s.finalizeWithoutSend(ctx, c, req, email, subject, domain.StatusFailed, &kind, storageErrored, detail)
			c.IncrFailed()
			return
		}
		s.finalizeWithoutSend(ctx, c, req, email, subject, domain.StatusDryRun, nil, storageErrored)
		c.IncrDryRun()
		return
	}

	// c. quota reservation
	ok, err := s.quota.TryReserve(ctx, 1)
	if err != nil {
		s.logger.WithField("email", email).WithField("error", err.Error()).Error("quota reservation failed")
		storageErrored.Store(true)
		c.IncrFailed()
		return
	}
	if !ok {
		quotaExhausted.Store(true)
		kind := domain.ErrorKindQuotaExhausted
		s.finalizeWithoutSend(ctx, c, req, email, subject, domain.StatusFailed, &kind, storageErrored, "daily quota exhausted")
		c.IncrFailed()
		return
	}

	// d. rate limiter admission
	if err := s.limiter.Acquire(ctx); err != nil {
		kind := domain.ErrorKindCancelled
		s.finalizeWithoutSend(context.WithoutCancel(ctx), c, req, email, subject, domain.StatusFailed, &kind, storageErrored, "cancelled while waiting for rate limiter")
		c.IncrFailed()
		return
	}

	// e. render
	rendered, err := s.render(ctx, req.TemplateID, recipient.Vars)
	if err != nil {
		kind := domain.ErrorKindRender
		detail := err.Error()
		s.finalizeWithoutSend(ctx, c, req, email, subject, domain.StatusFailed, &kind, storageErrored, detail)
		c.IncrFailed()
		return
	}
	if subject == "" {
		subject = rendered.Subject
	}

	attemptID, err := s.deliveries.BeginAttempt(ctx, req.CampaignID, email, req.TemplateID, subject, 1)
	if err != nil {
		s.logger.WithField("email", email).WithField("error", err.Error()).Error("begin_attempt failed")
		storageErrored.Store(true)
		c.IncrFailed()
		return
	}

	// f. send with retry
	if s.breaker.isOpen() {
		kind := domain.ErrorKindProvider5xx
		s.recordSendOutcome(ctx, c, attemptID, domain.SendResult{
			Kind:   domain.SendTransientFailure,
			Detail: "circuit breaker open",
		}, 1, storageErrored, &kind)
		c.IncrFailed()
		return
	}

	result, n, err := s.retry.Run(ctx, func(ctx context.Context, attempt int) (domain.SendResult, error) {
		res, sendErr := s.provider.Send(ctx, domain.SendRequest{
			FromAddr: s.fromAddrHeader(),
			ToAddr:   email,
			Subject:  subject,
			HTML:     rendered.HTML,
			Text:     rendered.Text,
		})
		if sendErr == nil {
			if res.Kind == domain.SendAccepted {
				s.breaker.recordSuccess()
			} else if res.Kind == domain.SendTransientFailure {
				s.breaker.recordFailure()
			}
		}
		return res, sendErr
	})

	if err != nil {
		// g. cancellation during a retry sleep
		kind := domain.ErrorKindCancelled
		detail := "cancelled during retry backoff"
		s.recordSendOutcome(context.WithoutCancel(ctx), c, attemptID, domain.SendResult{Kind: domain.SendPermanentFailure, Detail: detail}, n, storageErrored, &kind)
		c.IncrFailed()
		return
	}

	// g. map outcome to DeliveryRepo.RecordResult
	s.recordSendOutcome(ctx, c, attemptID, result, n, storageErrored)
	if result.Kind == domain.SendAccepted {
		c.IncrSucceeded()
	} else {
		c.IncrFailed()
	}
}

func (s *Scheduler) fromAddrHeader() string {
	if s.fromName == "" {
		return s.fromAddr
	}
	return s.fromName + " <" + s.fromAddr + ">"
}

// recordSendOutcome writes a DeliveryRepo.RecordResult call for the terminal
// (non-webhook-driven) outcome of a provider send, mapping SendResult to a
// DeliveryStatus/ErrorKind pair.
func (s *Scheduler) recordSendOutcome(
	ctx context.Context,
	c *domain.Campaign,
	attemptID int64,
	result domain.SendResult,
	attemptNo int,
	storageErrored *atomic.Bool,
	forceKind ...*domain.ErrorKind,
) {
	outcome := domain.DeliveryOutcome{AttemptNo: &attemptNo}

	switch result.Kind {
	case domain.SendAccepted:
		outcome.Status = domain.StatusSent
		msgID := result.ProviderMessageID
		outcome.ProviderMessageID = &msgID
		httpStatus := result.HTTPStatus
		outcome.HTTPStatus = &httpStatus
	case domain.SendTransientFailure, domain.SendPermanentFailure:
		outcome.Status = domain.StatusFailed
		if result.HTTPStatus != 0 {
			httpStatus := result.HTTPStatus
			outcome.HTTPStatus = &httpStatus
		}
		detail := result.Detail
		outcome.ErrorDetail = &detail

		kind := domain.ErrorKindProvider4xx
		switch {
		case len(forceKind) > 0 && forceKind[0] != nil:
			kind = *forceKind[0]
		case result.Kind == domain.SendTransientFailure && result.HTTPStatus == 429:
			kind = domain.ErrorKindRateLimited
		case result.Kind == domain.SendTransientFailure && result.HTTPStatus >= 500:
			kind = domain.ErrorKindProvider5xx
		case result.Kind == domain.SendTransientFailure:
			kind = domain.ErrorKindNetwork
		}
		outcome.ErrorKind = &kind
	}

	if err := s.deliveries.RecordResult(ctx, attemptID, outcome); err != nil {
		s.logger.WithField("attempt_id", attemptID).WithField("error", err.Error()).Error("record_result failed")
		storageErrored.Store(true)
	}
}

// finalizeWithoutSend handles the pipeline branches that never reach the
// provider (suppressed, dry-run, render failure, quota exhausted,
// cancelled-before-send): it creates the DeliveryAttempt row and immediately
// records its terminal outcome.
func (s *Scheduler) finalizeWithoutSend(
	ctx context.Context,
	c *domain.Campaign,
	req RunRequest,
	email, subject string,
	status domain.DeliveryStatus,
	errKind *domain.ErrorKind,
	storageErrored *atomic.Bool,
	errDetail ...string,
) {
	attemptID, err := s.deliveries.BeginAttempt(ctx, req.CampaignID, email, req.TemplateID, subject, 1)
	if err != nil {
		s.logger.WithField("email", email).WithField("error", err.Error()).Error("begin_attempt failed")
		storageErrored.Store(true)
		return
	}

	outcome := domain.DeliveryOutcome{Status: status, ErrorKind: errKind}
	if len(errDetail) > 0 {
		detail := errDetail[0]
		outcome.ErrorDetail = &detail
	}

	if err := s.deliveries.RecordResult(ctx, attemptID, outcome); err != nil {
		s.logger.WithField("attempt_id", attemptID).WithField("error", err.Error()).Error("record_result failed")
		storageErrored.Store(true)
	}
}

// recordQuotaExhausted marks a recipient that was never admitted because an
// earlier sibling already exhausted the day's quota (once
// denied, future recipients are marked failed with error_kind=quota_exhausted
// without consuming a worker slot or touching the rate limiter).
func (s *Scheduler) recordQuotaExhausted(ctx context.Context, c *domain.Campaign, progressCh chan<- domain.ProgressEvent, req RunRequest, recipient domain.Recipient, storageErrored *atomic.Bool) {
	email := domain.NormalizeEmail(recipient.Email)
	kind := domain.ErrorKindQuotaExhausted
	s.finalizeWithoutSend(ctx, c, req, email, req.SubjectOverride, domain.StatusFailed, &kind, storageErrored, "daily quota exhausted")
	c.IncrSent()
	c.IncrFailed()
	s.emitProgress(c, progressCh, req.CampaignID)
}

// recordCancelled marks every recipient in remaining as failed with
// error_kind=cancelled because the run stopped admitting new work before
// they were ever picked up. Without this, succeeded+failed+suppressed+dry_run
// would fall short of Total at the Final event whenever a run is cancelled
// mid-flight, since Total is fixed at len(req.Recipients) and never lowered.
func (s *Scheduler) recordCancelled(ctx context.Context, c *domain.Campaign, progressCh chan<- domain.ProgressEvent, req RunRequest, remaining []domain.Recipient, storageErrored *atomic.Bool) {
	// ctx is already cancelled here; the rows are written without it.
	ctx = context.WithoutCancel(ctx)
	kind := domain.ErrorKindCancelled
	for _, recipient := range remaining {
		email := domain.NormalizeEmail(recipient.Email)
		s.finalizeWithoutSend(ctx, c, req, email, req.SubjectOverride, domain.StatusFailed, &kind, storageErrored, "cancelled before admission")
		c.IncrSent()
		c.IncrFailed()
		s.emitProgress(c, progressCh, req.CampaignID)
		if storageErrored.Load() {
			return
		}
	}
}

func (s *Scheduler) emitProgress(c *domain.Campaign, progressCh chan<- domain.ProgressEvent, campaignID string) {
	counts := c.Snapshot()
	processed := counts.Succeeded + counts.Failed + counts.Suppressed + counts.DryRun
	progressCh <- domain.ProgressEvent{
		CampaignID: campaignID,
		Counts:     counts,
		Message:    FormatProgressMessage(processed, counts.Total, s.clock.Since(c.StartedAt)),
	}
}

// RequestCancel is a convenience the caller's cancellation path can use
// instead of (or in addition to) cancelling ctx, when it wants in-flight
// sends to keep running to completion while no further recipients are
// admitted. Most callers should simply cancel the context passed to Run;
// this exists for callers that hold a Campaign reference directly (e.g. an
// admin endpoint cancelling by campaign id).
func RequestCancel(c *domain.Campaign) { c.RequestCancel() }
