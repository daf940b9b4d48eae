package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/grantwise/coach-backend/internal/config"
	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/grantwise/coach-backend/internal/integration/common"
	pkghttp "github.com/grantwise/coach-backend/pkg/http"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// docSeparator joins retrieved chunks into the {context} slot.
const docSeparator = "\n\n---\n\n"

// paragraphBreak matches optional whitespace followed by a paragraph
// break. The formatted variant wraps such breaks in emphasis markers for
// presentation; the canonical text is kept unmodified.
var paragraphBreak = regexp.MustCompile(`\s*\n\n`)

// FormatText derives the presentation variant of a completed answer.
func FormatText(text string) string {
	return paragraphBreak.ReplaceAllString(text, "*\n\n*")
}

// Connector talks to an OpenAI-compatible chat-completion service.
type Connector struct {
	config       config.LLMConnectorConfig
	model        string
	connector    *pkghttp.Connector
	streamClient *http.Client
	logger       *zap.Logger
}

func NewConnector(cfg config.LLMConnectorConfig, model string, logger *zap.Logger) *Connector {
	return &Connector{
		config:    cfg,
		model:     model,
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger),
		// No overall request timeout: a token stream may legitimately
		// outlive any fixed deadline. The provider's own timeout is the
		// effective ceiling.
		streamClient: pkghttp.NewClient(
			pkghttp.WithRequestTimeout(0),
			pkghttp.WithConnClientTimeout(cfg.ConnTimeout),
			pkghttp.WithResponseHeaderTimeout(cfg.ResponseHeaderTimeout),
			pkghttp.WithAuthToken(cfg.Token),
		),
		logger: logger,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model      string          `json:"model"`
	Messages   []chatMessage   `json:"messages"`
	Stream     bool            `json:"stream"`
	Tools      []toolSpec      `json:"tools,omitempty"`
	ToolChoice *toolChoiceSpec `json:"tool_choice,omitempty"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

type toolChoiceSpec struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
}

// ChatStream runs one streaming completion, pushing each token onto out
// in generation order. onEnd is called exactly once with the full and
// formatted text, after the last token and only on success.
func (c *Connector) ChatStream(
	ctx context.Context, req entity.ChatStreamRequest, out chan<- string, onEnd func(full, formatted string),
) error {
	userPrompt, err := renderPrompt(req)
	if err != nil {
		return err
	}

	payload := chatRequest{
		Model:  c.model,
		Stream: true,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal chat request: %w", err)
	}

	url := c.config.Url + c.config.ChatEndpoint
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	ctxzap.Info(ctx, "starting chat completion stream",
		zap.String("model", c.model),
		zap.String("mode", string(req.Mode)),
		zap.Int("doc_count", len(req.Docs)),
	)

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", entity.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: HTTP %d: %s", entity.ErrProvider, resp.StatusCode, string(body))
	}

	var full strings.Builder

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return fmt.Errorf("%w: decode stream chunk: %v", entity.ErrProvider, err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		token := chunk.Choices[0].Delta.Content
		if token == "" {
			continue
		}

		full.WriteString(token)

		select {
		case out <- token:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("%w: read stream: %v", entity.ErrProvider, err)
	}

	text := full.String()
	onEnd(text, FormatText(text))

	return nil
}

// InvokeStructured runs one non-streaming completion forced through the
// given function and returns the raw function-call arguments.
func (c *Connector) InvokeStructured(ctx context.Context, req entity.StructuredRequest) (json.RawMessage, error) {
	userPrompt := bindTemplate(req.UserTemplate, req.Bindings)

	choice := &toolChoiceSpec{Type: "function"}
	choice.Function.Name = req.Function.Name

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Tools: []toolSpec{{
			Type: "function",
			Function: functionSpec{
				Name:        req.Function.Name,
				Description: req.Function.Description,
				Parameters:  req.Function.Parameters,
			},
		}},
		ToolChoice: choice,
	}

	ctxzap.Info(ctx, "invoking structured completion",
		zap.String("model", c.model),
		zap.String("function", req.Function.Name),
	)

	var resp chatResponse
	err := retry.Do(func() error {
		return c.connector.DoRequest(ctx, http.MethodPost, c.config.ChatEndpoint, payload, &resp)
	}, append(c.config.Retry.ToRetryOptions(), retry.Context(ctx))...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", entity.ErrProvider, err)
	}

	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return nil, fmt.Errorf("%w: no function call in response", entity.ErrStructuredResponse)
	}

	return json.RawMessage(resp.Choices[0].Message.ToolCalls[0].Function.Arguments), nil
}

// renderPrompt fills the template slots and, for the document-grounded
// mode, the {context} slot from the non-empty docs list.
func renderPrompt(req entity.ChatStreamRequest) (string, error) {
	bindings := req.Bindings

	if req.Mode == entity.PromptModeDocumentGrounded {
		if len(req.Docs) == 0 {
			return "", fmt.Errorf("document-grounded prompt requires at least one doc: %w", entity.ErrState)
		}
		bindings = make(map[string]string, len(req.Bindings)+1)
		for k, v := range req.Bindings {
			bindings[k] = v
		}
		bindings["context"] = strings.Join(req.Docs, docSeparator)
	}

	return bindTemplate(req.UserTemplate, bindings), nil
}

func bindTemplate(template string, bindings map[string]string) string {
	result := template
	for name, value := range bindings {
		result = strings.ReplaceAll(result, "{"+name+"}", value)
	}
	return result
}
