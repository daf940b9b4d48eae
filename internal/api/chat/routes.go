package chat

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the coaching conversation routes.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/new_session", h.NewSession)
	r.Post("/new_session/{session_id}", h.NewSession)
	r.Post("/chat", h.Chat)
	r.Post("/after_chat/{session_id}", h.AfterChat)
	r.Get("/sessions/{session_id}/export", h.Export)
}
