package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Vovarama1992/telegram-relay/internal/metrics"
)

// Settings is the process-wide routing configuration, fixed at startup.
type Settings struct {
	// Destination is the operator chat every visitor message is sent to.
	Destination string
	// LegacyFallback enables recent-user addressing when no recorded chat
	// id or reply matches.
	LegacyFallback bool
}

type ServiceOption func(*service)

// WithDeduper drops inbound updates whose update id was already processed.
func WithDeduper(d Deduper) ServiceOption {
	return func(s *service) { s.dedup = d }
}

// WithPublisher publishes every appended event to the change feed.
func WithPublisher(p Publisher) ServiceOption {
	return func(s *service) { s.feed = p }
}

type service struct {
	repo     Log
	outbound Sink
	resolver *Resolver
	cfg      Settings
	dedup    Deduper
	feed     Publisher
}

// NewService wires the router. outbound may be nil when the bot credential is
// not configured; outbound requests then fail with 500 without a network call.
func NewService(repo Log, outbound Sink, cfg Settings, opts ...ServiceOption) Service {
	s := &service{
		repo:     repo,
		outbound: outbound,
		resolver: NewResolver(repo, cfg.LegacyFallback),
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type outboundResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

type ackResponse struct {
	OK bool `json:"ok"`
}

func acknowledged() Result {
	return Result{Status: http.StatusOK, Body: ackResponse{OK: true}}
}

func failed(status int, msg, details string) Result {
	return Result{Status: status, Body: outboundResponse{Error: msg, Details: details}}
}

func (s *service) Handle(ctx context.Context, env Envelope) Result {
	switch env.Kind {
	case KindOutbound:
		return s.HandleOutbound(ctx, env.Outbound)
	case KindInbound:
		return s.HandleInbound(ctx, env.Inbound)
	}

	log.Printf("[relay] %s payload, acknowledging", env.Kind)
	metrics.RequestsTotal.WithLabelValues(env.Kind.String(), "ack").Inc()
	return acknowledged()
}

// ------------------------------------------------------------
// website -> bot network
// ------------------------------------------------------------

func (s *service) HandleOutbound(ctx context.Context, req OutboundRequest) Result {
	if err := ValidateMessage(req.Message); err != nil {
		log.Printf("[relay] outbound rejected session=%q: %v", req.SessionID, err)
		metrics.RequestsTotal.WithLabelValues("outbound", "invalid").Inc()
		return failed(http.StatusBadRequest, clientMessage(err), "")
	}

	if err := s.outboundConfigured(); err != nil {
		log.Printf("[config] CRITICAL outbound disabled: %v", err)
		metrics.RequestsTotal.WithLabelValues("outbound", "config_error").Inc()
		return failed(http.StatusInternalServerError, "server configuration error: bot token or chat id missing", "")
	}

	log.Printf("[relay] outbound session=%q len=%d -> chat %s", req.SessionID, len(req.Message), s.cfg.Destination)

	start := time.Now()
	delivery, err := s.outbound.Send(ctx, s.cfg.Destination, req.Message)
	metrics.SinkDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var rejected *UpstreamRejected
		switch {
		case IsValidation(err):
			metrics.RequestsTotal.WithLabelValues("outbound", "invalid").Inc()
			return failed(http.StatusBadRequest, clientMessage(err), "")
		case errors.As(err, &rejected):
			log.Printf("[telegram] send failed session=%q: %s", req.SessionID, rejected.Details)
			metrics.RequestsTotal.WithLabelValues("outbound", "upstream_rejected").Inc()
			return failed(http.StatusBadRequest, "failed to deliver message to operator", rejected.Details)
		default:
			log.Printf("[relay] outbound internal error session=%q: %v", req.SessionID, err)
			metrics.RequestsTotal.WithLabelValues("outbound", "error").Inc()
			return failed(http.StatusInternalServerError, "internal server error", "")
		}
	}

	ev := &ChatEvent{
		Sender:    SenderUser,
		Message:   req.Message,
		SessionID: req.SessionID,
	}
	if delivery != nil {
		if delivery.ChatID != "" {
			chatID := delivery.ChatID
			ev.ExternalChatID = &chatID
		}
		if delivery.MessageID != 0 {
			msgID := delivery.MessageID
			ev.ExternalMessageID = &msgID
		}
	}
	if req.SessionID == "" {
		log.Println("[relay] outbound without session_id; event stored but replies cannot be routed to it")
	}

	// the notification is already out; a failed append is logged, not surfaced
	s.record(ctx, ev)

	metrics.RequestsTotal.WithLabelValues("outbound", "sent").Inc()
	return Result{Status: http.StatusOK, Body: outboundResponse{Success: true}}
}

func (s *service) outboundConfigured() error {
	var missing []string
	if s.outbound == nil {
		missing = append(missing, "bot token")
	}
	if strings.TrimSpace(s.cfg.Destination) == "" {
		missing = append(missing, "destination chat id")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

// ------------------------------------------------------------
// bot network -> log
// ------------------------------------------------------------

// HandleInbound always acknowledges: any non-200 makes the bot network
// redeliver the same update.
func (s *service) HandleInbound(ctx context.Context, upd InboundUpdate) Result {
	if !upd.HasText || strings.TrimSpace(upd.Text) == "" {
		log.Printf("[relay] inbound chat=%s update=%d without text, acknowledging", upd.ChatID, upd.UpdateID)
		metrics.RequestsTotal.WithLabelValues("inbound", "ping").Inc()
		return acknowledged()
	}

	if s.dedup != nil && upd.UpdateID != 0 {
		first, err := s.dedup.Claim(ctx, strconv.FormatInt(upd.UpdateID, 10))
		switch {
		case err != nil:
			log.Printf("[dedup] claim update=%d failed: %v (processing anyway)", upd.UpdateID, err)
		case !first:
			log.Printf("[relay] inbound update=%d already processed, dropping replay", upd.UpdateID)
			metrics.DuplicateUpdatesTotal.Inc()
			metrics.RequestsTotal.WithLabelValues("inbound", "duplicate").Inc()
			return acknowledged()
		}
	}

	res, ok, err := s.resolver.Resolve(ctx, upd)
	if err != nil {
		log.Printf("[resolver] chat=%s update=%d lookup failed: %v", upd.ChatID, upd.UpdateID, err)
		metrics.RequestsTotal.WithLabelValues("inbound", "log_error").Inc()
		return acknowledged()
	}
	metrics.ResolutionsTotal.WithLabelValues(string(res.Strategy)).Inc()

	if !ok {
		log.Printf("[resolver] WARN no session for chat=%s update=%d; reply dropped", upd.ChatID, upd.UpdateID)
		metrics.RequestsTotal.WithLabelValues("inbound", "unresolved").Inc()
		return acknowledged()
	}
	if res.Strategy == StrategyRecentUser {
		log.Printf("[resolver] WARN chat=%s routed by recent-user fallback to session=%q", upd.ChatID, res.SessionID)
	}

	ev := &ChatEvent{
		Sender:    SenderAdmin,
		Message:   upd.Text,
		SessionID: res.SessionID,
	}
	if upd.ChatID != "" {
		chatID := upd.ChatID
		ev.ExternalChatID = &chatID
	}
	if upd.MessageID != 0 {
		msgID := upd.MessageID
		ev.ExternalMessageID = &msgID
	}

	log.Printf("[relay] inbound chat=%s -> session=%q via %s", upd.ChatID, res.SessionID, res.Strategy)
	s.record(ctx, ev)

	metrics.RequestsTotal.WithLabelValues("inbound", "routed").Inc()
	return acknowledged()
}

// ------------------------------------------------------------

func (s *service) History(ctx context.Context, sessionID string, limit int) ([]ChatEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListBySession(ctx, sessionID, limit)
}

// record appends best-effort and feeds the change stream on success.
func (s *service) record(ctx context.Context, ev *ChatEvent) {
	if err := s.repo.Append(ctx, ev); err != nil {
		log.Printf("[db] append %s event session=%q failed: %v", ev.Sender, ev.SessionID, err)
		metrics.LogAppendsTotal.WithLabelValues(string(ev.Sender), "error").Inc()
		return
	}
	metrics.LogAppendsTotal.WithLabelValues(string(ev.Sender), "ok").Inc()

	if s.feed == nil || ev.SessionID == "" {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[nats] marshal event id=%d: %v", ev.ID, err)
		return
	}
	if err := s.feed.PublishChatEvent(ev.SessionID, data); err != nil {
		log.Printf("[nats] publish event id=%d session=%q: %v", ev.ID, ev.SessionID, err)
	}
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return "message must not be empty"
	case errors.Is(err, ErrMessageTooLong):
		return "message is too long"
	default:
		return "bad request"
	}
}
