package webhook

import (
	"fmt"

	"github.com/tidwall/gjson"

	"github.com/resend-dispatch/campaign/internal/domain"
)

// ParsedEvent is the normalized shape extracted from a raw Resend webhook
// envelope `{type, created_at, data: {email_id, to, ...}}`.
type ParsedEvent struct {
	Type              domain.EventType
	ProviderMessageID string
	Recipient         string
}

var resendEventTypes = map[string]domain.EventType{
	"email.delivered":  domain.EventDelivered,
	"email.bounced":    domain.EventBounced,
	"email.complained": domain.EventComplained,
	"email.opened":     domain.EventOpened,
	"email.clicked":    domain.EventClicked,
}

// ParseEnvelope extracts the fields the core needs from a raw Resend
// webhook body using cheap field lookups (gjson) rather than a full struct
// unmarshal, since only a handful of fields are ever read from a
// potentially large, provider-defined envelope.
func ParseEnvelope(body []byte) (ParsedEvent, error) {
	if !gjson.ValidBytes(body) {
		return ParsedEvent{}, fmt.Errorf("invalid JSON payload")
	}

	rawType := gjson.GetBytes(body, "type").String()
	if rawType == "" {
		return ParsedEvent{}, fmt.Errorf("missing event type")
	}

	eventType, known := resendEventTypes[rawType]
	if !known {
		eventType = domain.EventOther
	}

	messageID := gjson.GetBytes(body, "data.email_id").String()

	to := gjson.GetBytes(body, "data.to")
	var recipient string
	if to.IsArray() {
		arr := to.Array()
		if len(arr) > 0 {
			recipient = arr[0].String()
		}
	} else {
		recipient = to.String()
	}

	return ParsedEvent{
		Type:              eventType,
		ProviderMessageID: messageID,
		Recipient:         domain.NormalizeEmail(recipient),
	}, nil
}
