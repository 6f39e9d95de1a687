// Command dispatch is the thin CLI front end over the campaign core: it
// parses flags, wires the concrete collaborators (SQLite repositories, the
// Resend provider client, the webhook server), and translates the core's
// results into process exit codes. It holds no business logic of its own.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resend-dispatch/campaign/config"
	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/internal/provider/resend"
	"github.com/resend-dispatch/campaign/internal/repository"
	"github.com/resend-dispatch/campaign/internal/service/campaign"
	"github.com/resend-dispatch/campaign/internal/webhook"
	"github.com/resend-dispatch/campaign/pkg/clock"
	"github.com/resend-dispatch/campaign/pkg/logger"
)

const (
	exitSuccess         = 0
	exitPreflightFailed = 2
	exitRuntimeError    = 3
	exitCancelled       = 130
)

// osExit is a variable so tests can intercept process termination.
var osExit = os.Exit

func main() {
	if len(os.Args) < 2 {
		usage()
		osExit(exitRuntimeError)
		return
	}

	switch os.Args[1] {
	case "run-campaign":
		osExit(runCampaignCmd(os.Args[2:]))
	case "serve-webhooks":
		osExit(serveWebhooksCmd(os.Args[2:]))
	default:
		usage()
		osExit(exitRuntimeError)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dispatch <run-campaign|serve-webhooks> [flags]")
}

// noopRenderer is used until a real template engine is wired in; every
// template id renders with its variables substituted nowhere, which is
// enough to exercise Preflight and the Scheduler end to end.
func noopRenderer(ctx context.Context, templateID string, vars map[string]string) (domain.RenderedMessage, error) {
	return domain.RenderedMessage{
		Subject: templateID,
		HTML:    "<p>" + templateID + "</p>",
		Text:    templateID,
	}, nil
}

func runCampaignCmd(args []string) int {
	fs := flag.NewFlagSet("run-campaign", flag.ExitOnError)
	recipientsPath := fs.String("recipients_path", "", "path to the CSV recipients file")
	templateID := fs.String("template_id", "", "template identifier")
	subject := fs.String("subject", "", "subject override (optional)")
	dryRun := fs.Bool("dry_run", false, "render and persist but never call the provider")
	concurrency := fs.Int("concurrency", 0, "worker pool size (0 = config default)")
	if err := fs.Parse(args); err != nil {
		return exitRuntimeError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return exitRuntimeError
	}

	appLogger := logger.NewLoggerWithLevel(cfg.LogLevel)
	sysClock := clock.NewSystem()

	db, err := repository.Open(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()
	if err := repository.InitializeSchema(db); err != nil {
		fmt.Fprintf(os.Stderr, "initialize storage: %v\n", err)
		return exitRuntimeError
	}

	deliveries := repository.NewDeliveryRepository(db, sysClock, appLogger)
	suppression := repository.NewSuppressionRepository(db, sysClock)
	quota := repository.NewQuotaRepository(db, sysClock, cfg.Limits.Daily)

	recipients, invalidCount, err := loadRecipients(*recipientsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load recipients: %v\n", err)
		return exitRuntimeError
	}
	if invalidCount > 0 {
		appLogger.WithField("invalid_count", invalidCount).Warn("recipients file contained syntactically invalid email addresses; they were filtered out")
	}

	report := campaign.RunPreflight(context.Background(), campaign.PreflightInput{
		ProviderAPIKey: cfg.Provider.APIKey,
		FromEmail:      cfg.Provider.FromEmail,
		TemplateID:     *templateID,
		RecipientsPath: *recipientsPath,
	}, quota, noopRenderer)
	if !report.OK {
		for _, e := range report.Errors {
			fmt.Fprintf(os.Stderr, "preflight: %s\n", e)
		}
		return exitPreflightFailed
	}

	provider := resend.New(cfg.Provider.APIKey)

	schedCfg := campaign.DefaultConfig()
	schedCfg.Concurrency = cfg.Scheduler.ConcurrencyDefault
	schedCfg.MaxAttempts = cfg.Retry.MaxAttempts
	schedCfg.BaseDelay = time.Duration(cfg.Retry.BaseSeconds * float64(time.Second))
	schedCfg.MaxDelay = time.Duration(cfg.Retry.MaxSeconds * float64(time.Second))
	schedCfg.RatePerMinute = cfg.Limits.PerMinute
	schedCfg.DailyLimit = cfg.Limits.Daily

	sched := campaign.NewScheduler(suppression, quota, deliveries, provider, noopRenderer, sysClock, appLogger, schedCfg, cfg.Provider.FromEmail, cfg.Provider.FromName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		appLogger.Info("interrupt received, stopping admission of new recipients")
		cancel()
	}()

	progress := sched.Run(ctx, campaign.RunRequest{
		CampaignID:      fmt.Sprintf("cli-%d", sysClock.Now().Unix()),
		Recipients:      recipients,
		TemplateID:      *templateID,
		SubjectOverride: *subject,
		Concurrency:     *concurrency,
		DryRun:          *dryRun,
	})

	var final domain.ProgressEvent
	for ev := range progress {
		if ev.Final {
			final = ev
			break
		}
		appLogger.WithFields(map[string]interface{}{
			"succeeded":  ev.Counts.Succeeded,
			"failed":     ev.Counts.Failed,
			"suppressed": ev.Counts.Suppressed,
			"dry_run":    ev.Counts.DryRun,
			"total":      ev.Counts.Total,
		}).Info("campaign progress")
	}

	appLogger.WithField("reason", string(final.Reason)).Info("campaign finished")

	switch final.Reason {
	case domain.ReasonCancelled:
		return exitCancelled
	case domain.ReasonErrored:
		return exitRuntimeError
	default:
		return exitSuccess
	}
}

func serveWebhooksCmd(args []string) int {
	fs := flag.NewFlagSet("serve-webhooks", flag.ExitOnError)
	bindAddr := fs.String("bind_addr", ":8080", "address to bind the webhook HTTP server to")
	if err := fs.Parse(args); err != nil {
		return exitRuntimeError
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		return exitRuntimeError
	}

	appLogger := logger.NewLoggerWithLevel(cfg.LogLevel)
	sysClock := clock.NewSystem()

	db, err := repository.Open(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open storage: %v\n", err)
		return exitRuntimeError
	}
	defer db.Close()
	if err := repository.InitializeSchema(db); err != nil {
		fmt.Fprintf(os.Stderr, "initialize storage: %v\n", err)
		return exitRuntimeError
	}

	deliveries := repository.NewDeliveryRepository(db, sysClock, appLogger)
	suppression := repository.NewSuppressionRepository(db, sysClock)
	events := repository.NewEventRepository(db, sysClock, deliveries)

	srv := webhook.New(events, deliveries, suppression, sysClock, appLogger, webhook.Config{
		Secret:              cfg.Webhook.Secret,
		ReplayWindowSeconds: cfg.Webhook.ReplayWindowSeconds,
	})

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:    *bindAddr,
		Handler: mux,
	}

	serveErr := make(chan error, 1)
	go func() {
		appLogger.WithField("address", *bindAddr).Info("webhook server starting")
		serveErr <- httpServer.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			fmt.Fprintf(os.Stderr, "webhook server failed: %v\n", err)
			return exitRuntimeError
		}
		return exitSuccess
	case <-sig:
		appLogger.Info("interrupt received, shutting down webhook server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "webhook server shutdown: %v\n", err)
			return exitRuntimeError
		}
		return exitCancelled
	}
}
