package domain

import "context"

// SendRequest is the provider-agnostic request ProviderClient.Send consumes.
type SendRequest struct {
	FromAddr string
	ToAddr   string
	Subject  string
	HTML     string
	Text     string
	ReplyTo  string // optional
}

// SendResultKind discriminates the SendResult sum type.
type SendResultKind string

const (
	SendAccepted         SendResultKind = "accepted"
	SendTransientFailure SendResultKind = "transient_failure"
	SendPermanentFailure SendResultKind = "permanent_failure"
)

// SendResult is the sum type returned by ProviderClient.Send. Exactly one of
// the three shapes is meaningful, selected by Kind.
type SendResult struct {
	Kind SendResultKind

	// Populated when Kind == SendAccepted.
	ProviderMessageID string
	HTTPStatus        int

	// Populated when Kind == SendTransientFailure or SendPermanentFailure.
	RetryAfterSeconds int
	Detail            string
}

// ProviderClient is a thin wrapper over the email provider's send API. It
// never retries internally — that is the RetryController's job — and it
// bounds every call with a timeout (default 30s).
type ProviderClient interface {
	Send(ctx context.Context, req SendRequest) (SendResult, error)
}

// RenderedMessage is the output of the external template renderer.
type RenderedMessage struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer is the pure, deterministic function the core consumes to turn a
// template id and per-recipient variables into a message. It is an external
// collaborator: core depends only on this function type, never on a
// concrete templating engine.
type Renderer func(ctx context.Context, templateID string, vars map[string]string) (RenderedMessage, error)
