package campaign

import (
	"fmt"
	"time"
)

// FormatDuration formats a duration in a human-readable form, adapted from
// common campaign-progress reporting conventions.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// CalculateProgress calculates the progress percentage (0-100).
func CalculateProgress(processed, total int64) float64 {
	if total <= 0 {
		return 100.0
	}
	progress := float64(processed) / float64(total) * 100.0
	if progress > 100.0 {
		progress = 100.0
	}
	return progress
}

// FormatProgressMessage builds a human-readable progress summary including
// an ETA once enough of the run has completed to estimate one.
func FormatProgressMessage(processed, total int64, elapsed time.Duration) string {
	progress := CalculateProgress(processed, total)

	var eta string
	if progress > 5.0 && processed > 0 {
		estimatedTotal := elapsed.Seconds() * float64(total) / float64(processed)
		remaining := estimatedTotal - elapsed.Seconds()
		if remaining > 0 {
			eta = fmt.Sprintf(", ETA: %s", FormatDuration(time.Duration(remaining)*time.Second))
		}
	}

	return fmt.Sprintf("processed %d/%d recipients (%.1f%%)%s", processed, total, progress, eta)
}
