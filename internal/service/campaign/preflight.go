package campaign

import (
	"context"
	"os"
	"time"

	"github.com/resend-dispatch/campaign/internal/domain"
)

// PreflightTimeout bounds the total time RunPreflight may take.
const PreflightTimeout = 10 * time.Second

// maxRecipientsFileSize is the size bound a recipients source must stay
// under.
const maxRecipientsFileSize = 100 * 1024 * 1024 // 100 MiB

// PreflightInput gathers the inputs Preflight checks before a campaign run
// is allowed to start.
type PreflightInput struct {
	ProviderAPIKey string
	FromEmail      string
	TemplateID     string
	RecipientsPath string

	WebhookEnabled bool
	WebhookSecret  string
}

// RunPreflight executes a fixed set of synchronous checks and returns a
// report; a campaign must not start if the report's OK field is false.
func RunPreflight(ctx context.Context, in PreflightInput, quota domain.QuotaStore, render domain.Renderer) domain.PreflightReport {
	ctx, cancel := context.WithTimeout(ctx, PreflightTimeout)
	defer cancel()

	var report domain.PreflightReport
	report.OK = true

	if in.ProviderAPIKey == "" {
		report.AddError("provider API key is required")
	}

	if in.FromEmail == "" {
		report.AddError("from address is required")
	} else if !domain.ValidEmail(in.FromEmail) {
		report.AddError("from address %q is not a syntactically valid email", in.FromEmail)
	}

	checkTemplate(ctx, &report, in.TemplateID, render)
	checkRecipientsSource(&report, in.RecipientsPath)
	checkQuotaHeadroom(ctx, &report, quota)

	if in.WebhookEnabled && in.WebhookSecret == "" {
		report.AddError("webhook secret is required when the webhook endpoint is exposed")
	}

	return report
}

func checkTemplate(ctx context.Context, report *domain.PreflightReport, templateID string, render domain.Renderer) {
	if templateID == "" {
		report.AddError("template id is required")
		return
	}
	if render == nil {
		report.AddWarning("no renderer configured; template id %q could not be validated", templateID)
		return
	}
	if _, err := render(ctx, templateID, map[string]string{}); err != nil {
		report.AddError("template %q does not resolve: %v", templateID, err)
	}
}

func checkRecipientsSource(report *domain.PreflightReport, path string) {
	if path == "" {
		report.AddError("recipients source path is required")
		return
	}
	info, err := os.Stat(path)
	if err != nil {
		report.AddError("recipients source %q is not readable: %v", path, err)
		return
	}
	if info.IsDir() {
		report.AddError("recipients source %q is a directory, not a file", path)
		return
	}
	if info.Size() == 0 {
		report.AddError("recipients source %q is empty", path)
		return
	}
	if info.Size() > maxRecipientsFileSize {
		report.AddError("recipients source %q exceeds the 100 MiB size bound (%d bytes)", path, info.Size())
	}
}

func checkQuotaHeadroom(ctx context.Context, report *domain.PreflightReport, quota domain.QuotaStore) {
	if quota == nil {
		report.AddWarning("no quota store configured; daily headroom could not be checked")
		return
	}
	used, limit, _, err := quota.UsedToday(ctx)
	if err != nil {
		report.AddError("could not read today's quota usage: %v", err)
		return
	}
	if used >= limit {
		report.AddError("daily quota already exhausted (%d/%d)", used, limit)
	}
}
