package webhook

import (
	"fmt"
	"net/http"

	svix "github.com/standard-webhooks/standard-webhooks/libraries/go"
)

// VerifySignature validates a Resend webhook delivery using the
// standard-webhooks (svix-compatible) HMAC scheme: headers svix-id,
// svix-timestamp, svix-signature over timestamp||body, keyed by secret.
// The library itself enforces the replay window against its own clock,
// using its standard default tolerance.
func VerifySignature(payload []byte, svixID, svixTimestamp, svixSignature, secret string) error {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return fmt.Errorf("create webhook verifier: %w", err)
	}

	headers := http.Header{}
	headers.Set("Webhook-Id", svixID)
	headers.Set("Webhook-Timestamp", svixTimestamp)
	headers.Set("Webhook-Signature", svixSignature)

	if err := wh.Verify(payload, headers); err != nil {
		return fmt.Errorf("signature validation failed: %w", err)
	}
	return nil
}
