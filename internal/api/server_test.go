package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	chatapi "github.com/grantwise/coach-backend/internal/api/chat"
	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/grantwise/coach-backend/internal/pkg/formatter"
)

type stubEngine struct{}

func (stubEngine) NewSession(context.Context, string) (*entity.NextStepDescriptor, error) {
	return &entity.NextStepDescriptor{InitialMessage: "Hi"}, nil
}

func (stubEngine) HandleEvent(context.Context, string, entity.UserInput) (<-chan string, error) {
	out := make(chan string)
	close(out)
	return out, nil
}

func (stubEngine) Advance(context.Context, string) (*entity.NextStepDescriptor, error) {
	return &entity.NextStepDescriptor{InitialMessage: "Next"}, nil
}

func (stubEngine) State(ctx context.Context, sessionID string) (*entity.SessionState, error) {
	return entity.NewSessionState(sessionID), nil
}

func testRouter(t *testing.T, apiToken string) http.Handler {
	t.Helper()
	handler := chatapi.NewHandler(stubEngine{}, formatter.NewFactory())
	return SetupRouter(handler, apiToken, zap.NewNop())
}

func TestHealthEndpoint(t *testing.T) {
	router := testRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestAuthGuardsConversationRoutes(t *testing.T) {
	router := testRouter(t, "secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/after_chat/session-1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no credential")

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/after_chat/session-1", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "wrong credential")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/after_chat/session-1", nil)
	req.Header.Set("Authorization", "Bearer secret")
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "valid credential")
}

func TestAuthDisabledWithoutToken(t *testing.T) {
	router := testRouter(t, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/after_chat/session-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthDoesNotGuardHealth(t *testing.T) {
	router := testRouter(t, "secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := testRouter(t, "secret")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/chat", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
