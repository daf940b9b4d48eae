package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	chatapi "github.com/grantwise/coach-backend/internal/api/chat"
	"github.com/grantwise/coach-backend/internal/api/docs"
	"github.com/grantwise/coach-backend/internal/api/middleware"
)

// SetupRouter creates and configures the HTTP router. apiToken guards
// the conversation routes; an empty token leaves them open.
func SetupRouter(chatHandler *chatapi.Handler, apiToken string, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(chimiddleware.Recoverer)   // Recover from panics
	r.Use(chimiddleware.RequestID)   // Add request ID
	r.Use(middleware.Logger(logger)) // Log requests
	r.Use(middleware.CORS)           // Handle CORS

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Swagger documentation endpoints
	docs.RegisterRoutes(r)

	// Conversation routes stream indefinitely, so no timeout middleware
	// is applied to them.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(apiToken))
		chatapi.RegisterRoutes(r, chatHandler)
	})

	return r
}

// NewServer wraps the router in an http.Server with sane timeouts.
// WriteTimeout stays unset because chat responses are open-ended SSE
// streams.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}
