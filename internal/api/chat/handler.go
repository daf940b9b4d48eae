package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/grantwise/coach-backend/internal/pkg/formatter"
	"github.com/grantwise/coach-backend/internal/pkg/logger"
	"github.com/grantwise/coach-backend/internal/pkg/sse"
)

type Handler struct {
	engine     Engine
	formatters *formatter.Factory
}

func NewHandler(engine Engine, formatters *formatter.Factory) *Handler {
	return &Handler{engine: engine, formatters: formatters}
}

// NewSession handles POST /new_session/{session_id} - create or reset a
// session and stream its opening message. Without a path ID a fresh one
// is generated and announced as the first SSE event.
func (h *Handler) NewSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	generated := sessionID == ""
	if generated {
		sessionID = uuid.NewString()
	}
	ctx := logger.WithSession(logger.WithAction(r.Context(), "NewSession"), sessionID)

	desc, err := h.engine.NewSession(ctx, sessionID)
	if err != nil {
		h.handleEngineError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "session created")

	stream, err := sse.NewWriter(w)
	if err != nil {
		h.respondError(ctx, w, http.StatusInternalServerError, "streaming unsupported", err)
		return
	}
	if generated {
		if err := stream.WriteEvent(ctx, "session", map[string]string{"session_id": sessionID}); err != nil {
			ctxzap.Warn(ctx, "write session event", zap.Error(err))
			return
		}
	}
	h.streamText(ctx, stream, desc.InitialMessage)
	if err := stream.WriteDone(ctx); err != nil {
		ctxzap.Warn(ctx, "write done event", zap.Error(err))
	}
}

// Chat handles POST /chat - record a user event and stream the
// assistant messages it produces.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "Chat")

	var req entity.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctxzap.Error(ctx, "failed to decode request body", zap.Error(err))
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.SessionID == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "session_id is required", nil)
		return
	}
	ctx = logger.WithSession(ctx, req.SessionID)

	input, err := toUserInput(req.UserInput)
	if err != nil {
		ctxzap.Error(ctx, "failed to validate request", zap.Error(err))
		h.respondError(ctx, w, http.StatusBadRequest, "validation failed", err)
		return
	}

	ctxzap.Info(ctx, "handling chat event", zap.String("trigger", input.Trigger()))

	tokens, err := h.engine.HandleEvent(ctx, req.SessionID, input)
	if err != nil {
		h.handleEngineError(ctx, w, err)
		return
	}

	stream, err := sse.NewWriter(w)
	if err != nil {
		// The event is already in flight; drain it so the engine can
		// release the session lock.
		for range tokens {
		}
		h.respondError(ctx, w, http.StatusInternalServerError, "streaming unsupported", err)
		return
	}
	for token := range tokens {
		if err := stream.WriteToken(ctx, token); err != nil {
			ctxzap.Warn(ctx, "client disconnected mid-stream", zap.Error(err))
			for range tokens {
			}
			return
		}
	}
	if err := stream.WriteDone(ctx); err != nil {
		ctxzap.Warn(ctx, "write done event", zap.Error(err))
	}
}

// AfterChat handles POST /after_chat/{session_id} - advance the session
// to its next step and describe it.
func (h *Handler) AfterChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	ctx := logger.WithSession(logger.WithAction(r.Context(), "AfterChat"), sessionID)

	if sessionID == "" {
		h.respondError(ctx, w, http.StatusBadRequest, "session_id is required", nil)
		return
	}

	desc, err := h.engine.Advance(ctx, sessionID)
	if err != nil {
		h.handleEngineError(ctx, w, err)
		return
	}

	ctxzap.Info(ctx, "session advanced")

	h.respondJSON(w, http.StatusOK, desc)
}

// Export handles GET /sessions/{session_id}/export - download the
// session transcript as pdf, docx or markdown.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")
	ctx := logger.WithSession(logger.WithAction(r.Context(), "Export"), sessionID)

	format := entity.ResultFormat(r.URL.Query().Get("format"))
	if format == "" {
		format = entity.FormatPDF
	}

	state, err := h.engine.State(ctx, sessionID)
	if err != nil {
		h.handleEngineError(ctx, w, err)
		return
	}

	f, err := h.formatters.Create(format)
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "unsupported format", err)
		return
	}
	payload, err := f.Format(formatter.RenderTranscript(state))
	if err != nil {
		h.respondError(ctx, w, http.StatusInternalServerError, "failed to render export", err)
		return
	}

	ctxzap.Info(ctx, "exporting session", zap.String("format", string(format)))

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s%s"`, sessionID, f.FileExtension()))
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

// streamText streams a pre-rendered message as individual runes so the
// client renders it the same way as generated answers.
func (h *Handler) streamText(ctx context.Context, stream *sse.Writer, text string) {
	for _, r := range text {
		if err := stream.WriteToken(ctx, string(r)); err != nil {
			ctxzap.Warn(ctx, "client disconnected mid-stream", zap.Error(err))
			return
		}
	}
}

func (h *Handler) handleEngineError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrSessionNotFound):
		h.respondError(ctx, w, http.StatusNotFound, "session not found", err)
	case errors.Is(err, entity.ErrState), errors.Is(err, entity.ErrNoCurrentQuestion):
		h.respondError(ctx, w, http.StatusConflict, "session is not in a valid state for this request", err)
	default:
		h.respondError(ctx, w, http.StatusInternalServerError, "internal error", err)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	ctxzap.Error(ctx, message, zap.Error(err))
	h.respondJSON(w, status, map[string]string{"error": message})
}
