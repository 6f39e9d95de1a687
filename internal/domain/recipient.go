package domain

import (
	"strings"

	"github.com/asaskevich/govalidator"
)

// Recipient is ephemeral per-campaign input: one row from the recipient
// source, normalized before it reaches the Scheduler.
type Recipient struct {
	Email string
	Name  string
	Vars  map[string]string
}

// NormalizeEmail trims whitespace and lowercases an address the way every
// entry point (Recipient, Suppression, webhook payloads) must before it is
// compared or stored.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidEmail reports whether email is syntactically valid after normalization.
func ValidEmail(email string) bool {
	return govalidator.IsEmail(NormalizeEmail(email))
}
