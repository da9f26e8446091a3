package relay

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Vovarama1992/telegram-relay/internal/metrics"
)

const (
	maxBodyBytes = 1 << 20

	// SecretHeader carries the token registered with setWebhook.
	SecretHeader = "X-Telegram-Bot-Api-Secret-Token"
)

type Handler struct {
	svc           Service
	limiter       Limiter
	webhookSecret string
}

type HandlerOption func(*Handler)

// WithLimiter throttles outbound requests per client IP.
func WithLimiter(l Limiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// WithWebhookSecret ignores inbound updates that do not carry secret.
func WithWebhookSecret(secret string) HandlerOption {
	return func(h *Handler) { h.webhookSecret = secret }
}

func NewHandler(svc Service, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleRelay is the shared entry for website posts and bot network webhooks.
func (h *Handler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Printf("[relay] unreadable body: %v", err)
		writeJSON(w, acknowledged())
		return
	}

	env := Classify(body)
	switch env.Kind {
	case KindOutbound:
		writeJSON(w, h.outbound(r, env.Outbound))
	case KindInbound:
		writeJSON(w, h.inbound(r, env.Inbound))
	default:
		writeJSON(w, h.unrecognized(r, env))
	}
}

func (h *Handler) outbound(r *http.Request, req OutboundRequest) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[relay] PANIC in outbound flow: %v\n%s", rec, debug.Stack())
			metrics.RequestsTotal.WithLabelValues("outbound", "error").Inc()
			res = failed(http.StatusInternalServerError, "internal server error", "")
		}
	}()

	if h.limiter != nil {
		allowed, err := h.limiter.Allow(r.Context(), clientIP(r))
		if err != nil {
			log.Printf("[ratelimit] check failed: %v (allowing)", err)
		}
		if !allowed {
			metrics.RequestsTotal.WithLabelValues("outbound", "rate_limited").Inc()
			return failed(http.StatusTooManyRequests, "too many messages, try again shortly", "")
		}
	}

	return h.svc.HandleOutbound(r.Context(), req)
}

// inbound never lets a failure escape as a non-200 status.
func (h *Handler) inbound(r *http.Request, upd InboundUpdate) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[relay] PANIC in inbound flow: %v\n%s", rec, debug.Stack())
			metrics.RequestsTotal.WithLabelValues("inbound", "error").Inc()
			res = acknowledged()
		}
	}()

	if h.webhookSecret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			log.Printf("[relay] WARN inbound update=%d with wrong webhook secret, ignoring", upd.UpdateID)
			metrics.RequestsTotal.WithLabelValues("inbound", "forbidden").Inc()
			return acknowledged()
		}
	}

	return h.svc.HandleInbound(r.Context(), upd)
}

func (h *Handler) unrecognized(r *http.Request, env Envelope) (res Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[relay] PANIC on unrecognized payload: %v", rec)
			res = acknowledged()
		}
	}()
	return h.svc.Handle(r.Context(), env)
}

type historyResponse struct {
	Messages []ChatEvent `json:"messages"`
}

// HandleHistory returns one session's conversation, oldest first.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := h.svc.History(r.Context(), sessionID, limit)
	if err != nil {
		log.Printf("[db] history session=%q failed: %v", sessionID, err)
		writeJSON(w, failed(http.StatusInternalServerError, "failed to load history", ""))
		return
	}
	if msgs == nil {
		msgs = []ChatEvent{}
	}

	writeJSON(w, Result{Status: http.StatusOK, Body: historyResponse{Messages: msgs}})
}

func (h *Handler) MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, failed(http.StatusMethodNotAllowed, "Method Not Allowed", ""))
}

func writeJSON(w http.ResponseWriter, res Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status)
	if err := json.NewEncoder(w).Encode(res.Body); err != nil {
		log.Printf("[relay] write response: %v", err)
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
