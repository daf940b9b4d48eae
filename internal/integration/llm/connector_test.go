package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grantwise/coach-backend/internal/config"
	"github.com/grantwise/coach-backend/internal/entity"
	pkgretry "github.com/grantwise/coach-backend/internal/pkg/retry"
)

func TestFormatText(t *testing.T) {
	assert.Equal(t, "one*\n\n*two", FormatText("one\n\ntwo"))
	assert.Equal(t, "one*\n\n*two", FormatText("one  \n\ntwo"),
		"whitespace before the break is folded into it")
	assert.Equal(t, "no breaks here", FormatText("no breaks here"))
}

func TestBindTemplate(t *testing.T) {
	got := bindTemplate("Q: {question} limit{clause}", map[string]string{
		"question": "Why now?",
		"clause":   " (10 words)",
	})
	assert.Equal(t, "Q: Why now? limit (10 words)", got)
}

func TestRenderPromptGroundedRequiresDocs(t *testing.T) {
	_, err := renderPrompt(entity.ChatStreamRequest{
		UserTemplate: "{question}\n{context}",
		Mode:         entity.PromptModeDocumentGrounded,
	})
	assert.ErrorIs(t, err, entity.ErrState)

	prompt, err := renderPrompt(entity.ChatStreamRequest{
		UserTemplate: "{question}\n{context}",
		Bindings:     map[string]string{"question": "Why now?"},
		Mode:         entity.PromptModeDocumentGrounded,
		Docs:         []string{"doc one", "doc two"},
	})
	require.NoError(t, err)
	assert.Contains(t, prompt, "Why now?")
	assert.Contains(t, prompt, "doc one\n\n---\n\ndoc two")
}

func testConnector(serverURL string) *Connector {
	cfg := config.LLMConnectorConfig{
		ChatEndpoint: "/v1/chat/completions",
		Retry:        pkgretry.RetryConfig{Attempts: 1},
	}
	cfg.Url = serverURL
	return NewConnector(cfg, "gpt-4", zap.NewNop())
}

func TestChatStreamParsesTokens(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])
		assert.Equal(t, "gpt-4", req["model"])

		w.Header().Set("Content-Type", "text/event-stream")
		for _, token := range []string{"Hello", " ", "world"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", token)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	conn := testConnector(server.URL)
	out := make(chan string, 16)

	var gotFull, gotFormatted string
	err := conn.ChatStream(context.Background(), entity.ChatStreamRequest{
		SystemPrompt: "system",
		UserTemplate: "{question}",
		Bindings:     map[string]string{"question": "Why now?"},
		Mode:         entity.PromptModeDirect,
	}, out, func(full, formatted string) {
		gotFull, gotFormatted = full, formatted
	})
	require.NoError(t, err)
	close(out)

	var tokens []string
	for token := range out {
		tokens = append(tokens, token)
	}
	assert.Equal(t, []string{"Hello", " ", "world"}, tokens)
	assert.Equal(t, "Hello world", gotFull)
	assert.Equal(t, "Hello world", gotFormatted)
}

func TestChatStreamProviderError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	conn := testConnector(server.URL)
	out := make(chan string, 16)

	called := false
	err := conn.ChatStream(context.Background(), entity.ChatStreamRequest{
		UserTemplate: "q",
		Mode:         entity.PromptModeDirect,
	}, out, func(full, formatted string) { called = true })

	assert.ErrorIs(t, err, entity.ErrProvider)
	assert.False(t, called, "onEnd only fires on success")
}

func TestInvokeStructured(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotNil(t, req["tools"])
		assert.NotNil(t, req["tool_choice"])

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"tool_calls":[
			{"function":{"name":"report","arguments":"{\"missing_information\":\"none\"}"}}
		]}}]}`)
	}))
	defer server.Close()

	conn := testConnector(server.URL)
	raw, err := conn.InvokeStructured(context.Background(), entity.StructuredRequest{
		UserTemplate: "review {answer}",
		Bindings:     map[string]string{"answer": "draft"},
		Function:     entity.FunctionSchema{Name: "report", Parameters: json.RawMessage(`{}`)},
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"missing_information":"none"}`, string(raw))
}

func TestInvokeStructuredWithoutToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"plain text instead"}}]}`)
	}))
	defer server.Close()

	conn := testConnector(server.URL)
	_, err := conn.InvokeStructured(context.Background(), entity.StructuredRequest{
		UserTemplate: "review",
		Function:     entity.FunctionSchema{Name: "report", Parameters: json.RawMessage(`{}`)},
	})
	assert.ErrorIs(t, err, entity.ErrStructuredResponse)
}
