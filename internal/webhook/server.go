package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/resend-dispatch/campaign/internal/domain"
	"github.com/resend-dispatch/campaign/pkg/clock"
	"github.com/resend-dispatch/campaign/pkg/logger"
)

// Config configures the WebhookServer.
type Config struct {
	Secret              string
	ReplayWindowSeconds int
	RequestTimeout      time.Duration // default 2s
}

// Server handles signature-verified provider callback ingestion plus the
// operational liveness and recent-events endpoints.
type Server struct {
	events     domain.EventRepo
	deliveries domain.DeliveryRepo
	suppress   domain.SuppressionStore
	clock      clock.Clock
	logger     logger.Logger
	cfg        Config
}

// New creates a Server.
func New(events domain.EventRepo, deliveries domain.DeliveryRepo, suppress domain.SuppressionStore, c clock.Clock, log logger.Logger, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Second
	}
	return &Server{events: events, deliveries: deliveries, suppress: suppress, clock: c, logger: log, cfg: cfg}
}

// RegisterRoutes wires the public webhook endpoint and the operational
// liveness/events endpoints onto mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/resend/webhook", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.handleEvents)
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	defer cancel()

	body, err := io.ReadAll(io.LimitReader(r.Body, 5<<20))
	if err != nil {
		s.logger.WithField("error", err.Error()).Warn("failed to read webhook body")
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	svixID := r.Header.Get("svix-id")
	svixTimestamp := r.Header.Get("svix-timestamp")
	svixSignature := r.Header.Get("svix-signature")

	sigErr := VerifySignature(body, svixID, svixTimestamp, svixSignature, s.cfg.Secret)
	signatureValid := sigErr == nil

	parsed, parseErr := ParseEnvelope(body)
	if parseErr != nil {
		s.logger.WithField("error", parseErr.Error()).Warn("failed to parse webhook envelope")
		// Still attempt to persist what we can for audit purposes, using an
		// unknown event type, since a malformed envelope is not the same
		// failure mode as a bad signature and must not be conflated with it.
		parsed = ParsedEvent{Type: domain.EventOther}
	}

	event := domain.Event{
		Provider:          "resend",
		EventType:         parsed.Type,
		ProviderMessageID: parsed.ProviderMessageID,
		Recipient:         parsed.Recipient,
		PayloadJSON:       string(body),
		SignatureValid:    signatureValid,
		ReceivedAt:        s.clock.Now(),
	}

	if _, err := s.events.Save(ctx, event); err != nil {
		s.logger.WithField("error", err.Error()).Error("failed to persist webhook event")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !signatureValid {
		s.logger.WithField("error", sigErr.Error()).Warn("webhook signature invalid")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	if err := s.events.LinkToDelivery(ctx, event); err != nil {
		s.logger.WithField("error", err.Error()).Error("failed to link webhook event to delivery")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if event.EventType == domain.EventBounced {
		_ = s.suppress.Add(ctx, event.Recipient, domain.SuppressionBounce, "bounced via webhook")
	}
	if event.EventType == domain.EventComplained {
		_ = s.suppress.Add(ctx, event.Recipient, domain.SuppressionComplaint, "complained via webhook")
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "time": s.clock.Now()})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.events.Recent(r.Context(), limit)
	if err != nil {
		s.logger.WithField("error", err.Error()).Error("failed to list recent events")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events, "total": len(events)})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
