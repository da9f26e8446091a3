package relay

import "github.com/go-chi/chi/v5"

func RegisterRoutes(r chi.Router, h *Handler) {
	r.MethodNotAllowed(h.MethodNotAllowed)
	r.Post("/api/telegram", h.HandleRelay)
	r.Get("/api/chats/{sessionID}", h.HandleHistory)
}
