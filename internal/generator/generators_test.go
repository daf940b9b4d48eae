package generator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/grantwise/coach-backend/internal/document"
	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/grantwise/coach-backend/internal/workflow"
)

// fakeLLM replays canned responses and records what it was asked.
type fakeLLM struct {
	streamText     string
	structuredJSON string
	structuredErr  error

	streamRequests     []entity.ChatStreamRequest
	structuredRequests []entity.StructuredRequest
}

func (f *fakeLLM) ChatStream(
	ctx context.Context, req entity.ChatStreamRequest, out chan<- string, onEnd func(full, formatted string),
) error {
	f.streamRequests = append(f.streamRequests, req)
	for _, word := range strings.SplitAfter(f.streamText, " ") {
		select {
		case out <- word:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	onEnd(f.streamText, f.streamText)
	return nil
}

func (f *fakeLLM) InvokeStructured(ctx context.Context, req entity.StructuredRequest) (json.RawMessage, error) {
	f.structuredRequests = append(f.structuredRequests, req)
	if f.structuredErr != nil {
		return nil, f.structuredErr
	}
	return json.RawMessage(f.structuredJSON), nil
}

// fakeDocs serves a fixed chunk list and records retrieval parameters.
type fakeDocs struct {
	chunks         []document.Chunk
	buildCalls     int
	tokensPerChunk int
	lastQuery      string
	lastK          int
}

func (f *fakeDocs) BuildOrRefresh(
	ctx context.Context, sessionID string, files []entity.FileReference, tokensPerChunk int,
) (*document.Index, error) {
	f.buildCalls++
	f.tokensPerChunk = tokensPerChunk
	return nil, nil
}

func (f *fakeDocs) TopK(ctx context.Context, index *document.Index, query string, k int) ([]document.Chunk, error) {
	f.lastQuery = query
	f.lastK = k
	return f.chunks, nil
}

func collect(t *testing.T, run func(out chan<- string) error) string {
	t.Helper()
	out := make(chan string, 256)
	err := run(out)
	close(out)
	require.NoError(t, err)
	var b strings.Builder
	for token := range out {
		b.WriteString(token)
	}
	return b.String()
}

func sessionWithQuestion(question string) *entity.SessionState {
	state := entity.NewSessionState("s-1")
	state.Questions = []*entity.QuestionContext{{Question: &question}}
	return state
}

var _ workflow.Generator = (*Set)(nil).AnswerQuestionStream

func TestWordLimitClause(t *testing.T) {
	assert.Equal(t, "", wordLimitClause(nil))
	zero := 0
	assert.Equal(t, "", wordLimitClause(&zero), "zero means no limit")
	limit := 250
	assert.Equal(t, " (250 words)", wordLimitClause(&limit))
}

func TestAnswerQuestionStreamGrounded(t *testing.T) {
	llm := &fakeLLM{streamText: "a grounded draft"}
	docs := &fakeDocs{chunks: []document.Chunk{
		{Source: "notes.txt", Index: 1, TokenCount: 10, Text: "budget facts"},
	}}
	s := NewSet(llm, docs, Config{TokensPerChunk: 500, TopK: 3}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	state.UploadedFiles = []entity.FileReference{{Name: "notes.txt", URI: "notes.txt"}}
	limit := 100
	state.CurrentQuestion().WordLimit = &limit

	streamed := collect(t, func(out chan<- string) error {
		return s.AnswerQuestionStream(context.Background(), state, out)
	})

	assert.Contains(t, streamed, "a grounded draft")
	assert.Contains(t, streamed, "(3 words)", "streamed answers close with a word count")
	assert.Equal(t, 1, docs.buildCalls)
	assert.Equal(t, 500, docs.tokensPerChunk)
	assert.Equal(t, "Why now?", docs.lastQuery)
	assert.Equal(t, 3, docs.lastK)

	require.Len(t, llm.streamRequests, 1)
	req := llm.streamRequests[0]
	assert.Equal(t, entity.PromptModeDocumentGrounded, req.Mode)
	assert.Equal(t, []string{"budget facts"}, req.Docs)
	assert.Equal(t, " (100 words)", req.Bindings["word_limit_clause"])

	q := state.CurrentQuestion()
	require.NotNil(t, q.OriginalAnswer)
	assert.Equal(t, "a grounded draft", *q.OriginalAnswer)
	require.Len(t, q.RetrievedChunks, 1)
	assert.Equal(t, "notes.txt", q.RetrievedChunks[0].Source)
}

func TestAnswerQuestionStreamDirectWithoutUploads(t *testing.T) {
	llm := &fakeLLM{streamText: "a direct draft"}
	docs := &fakeDocs{}
	s := NewSet(llm, docs, Config{}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	collect(t, func(out chan<- string) error {
		return s.AnswerQuestionStream(context.Background(), state, out)
	})

	assert.Zero(t, docs.buildCalls, "no uploads means no index build")
	require.Len(t, llm.streamRequests, 1)
	assert.Equal(t, entity.PromptModeDirect, llm.streamRequests[0].Mode)
	assert.Empty(t, state.CurrentQuestion().RetrievedChunks)
}

func TestAnswerQuestionStreamTestConfigOverrides(t *testing.T) {
	llm := &fakeLLM{streamText: "draft"}
	docs := &fakeDocs{chunks: []document.Chunk{{Text: "c"}}}
	s := NewSet(llm, docs, Config{TokensPerChunk: 1000, TopK: 4}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	state.UploadedFiles = []entity.FileReference{{Name: "notes.txt"}}
	prompt, tokens, k := "be terse", 200, 2
	state.TestConfig = &entity.TestConfig{SystemPrompt: &prompt, TokensPerChunk: &tokens, NumDocs: &k}

	collect(t, func(out chan<- string) error {
		return s.AnswerQuestionStream(context.Background(), state, out)
	})

	assert.Equal(t, 200, docs.tokensPerChunk)
	assert.Equal(t, 2, docs.lastK)
	assert.Equal(t, "be terse", llm.streamRequests[0].SystemPrompt)
}

func TestNormalizeImplicitQuestions(t *testing.T) {
	plain, err := normalizeImplicitQuestions(json.RawMessage(`["one","two"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, plain)

	objects, err := normalizeImplicitQuestions(json.RawMessage(`[{"question":"one"},{"question":"two"}]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, objects)

	keyed, err := normalizeImplicitQuestions(json.RawMessage(`{"q2":"two","q1":"one"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, keyed, "map shape is ordered by key")

	_, err = normalizeImplicitQuestions(json.RawMessage(`42`))
	assert.ErrorIs(t, err, entity.ErrStructuredResponse)
}

func TestCheckComprehensiveness(t *testing.T) {
	llm := &fakeLLM{structuredJSON: `{
		"missing_information": "no budget",
		"implicit_questions": ["What is the budget?"]
	}`}
	s := NewSet(llm, &fakeDocs{}, Config{}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	q := state.CurrentQuestion()
	draft := "the draft"
	q.OriginalAnswer = &draft
	// Residue from a previous run must be replaced wholesale.
	stale := 0
	q.Comprehensiveness.IndexBeingAnswered = &stale

	streamed := collect(t, func(out chan<- string) error {
		return s.CheckComprehensiveness(context.Background(), state, out)
	})

	assert.Contains(t, streamed, "1 follow-up question(s)")
	assert.Equal(t, "no budget", *q.Comprehensiveness.MissingInformation)
	require.Len(t, q.Comprehensiveness.ImplicitQuestions, 1)
	assert.Nil(t, q.Comprehensiveness.IndexBeingAnswered, "a new review restarts the walkthrough")
	assert.Nil(t, q.Comprehensiveness.RevisedApplicationAnswer)
}

func TestCheckComprehensivenessRequiresDraft(t *testing.T) {
	s := NewSet(&fakeLLM{}, &fakeDocs{}, Config{}, zap.NewNop())
	state := sessionWithQuestion("Why now?")

	out := make(chan string, 8)
	err := s.CheckComprehensiveness(context.Background(), state, out)
	assert.ErrorIs(t, err, entity.ErrState)
}

func TestAnswerImplicitStreamRecordsAnswer(t *testing.T) {
	llm := &fakeLLM{streamText: "The budget is 50k."}
	s := NewSet(llm, &fakeDocs{chunks: []document.Chunk{{Text: "budget facts"}}}, Config{}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	state.UploadedFiles = []entity.FileReference{{Name: "notes.txt"}}
	q := state.CurrentQuestion()
	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{{Question: "What is the budget?"}}
	idx := 0
	q.Comprehensiveness.IndexBeingAnswered = &idx

	streamed := collect(t, func(out chan<- string) error {
		return s.AnswerImplicitStream(context.Background(), state, out)
	})

	assert.Contains(t, streamed, "follow-up question")
	assert.Contains(t, streamed, "(4 words)")
	require.NotNil(t, q.Comprehensiveness.ImplicitQuestions[0].Answer)
	assert.Equal(t, "The budget is 50k.", *q.Comprehensiveness.ImplicitQuestions[0].Answer)
}

func TestAnswerImplicitStreamDiscardsMissingInfo(t *testing.T) {
	llm := &fakeLLM{streamText: "Not enough information in the provided documents."}
	s := NewSet(llm, &fakeDocs{}, Config{}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	q := state.CurrentQuestion()
	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{{Question: "What is the budget?"}}
	idx := 0
	q.Comprehensiveness.IndexBeingAnswered = &idx

	collect(t, func(out chan<- string) error {
		return s.AnswerImplicitStream(context.Background(), state, out)
	})

	assert.Nil(t, q.Comprehensiveness.ImplicitQuestions[0].Answer)
}

func TestFinalAnswerStreamWithoutAnswersApologizes(t *testing.T) {
	llm := &fakeLLM{streamText: "should not be called"}
	s := NewSet(llm, &fakeDocs{}, Config{}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	q := state.CurrentQuestion()
	draft := "the draft"
	q.OriginalAnswer = &draft
	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{{Question: "gap"}}

	streamed := collect(t, func(out chan<- string) error {
		return s.FinalAnswerStream(context.Background(), state, out)
	})

	assert.Contains(t, streamed, "nothing new to add")
	assert.NotContains(t, streamed, "words)", "no word count on the apology path")
	assert.Empty(t, llm.streamRequests, "no completion without answered questions")
	assert.Nil(t, q.Comprehensiveness.RevisedApplicationAnswer)
}

func TestFinalAnswerStreamFoldsAnswers(t *testing.T) {
	llm := &fakeLLM{streamText: "the revised draft"}
	s := NewSet(llm, &fakeDocs{}, Config{}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	q := state.CurrentQuestion()
	draft := "the draft"
	q.OriginalAnswer = &draft
	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{
		{Question: "What is the budget?"},
		{Question: "unanswered"},
	}
	q.Comprehensiveness.ImplicitQuestions[0].SetAnswer("50k")

	streamed := collect(t, func(out chan<- string) error {
		return s.FinalAnswerStream(context.Background(), state, out)
	})
	assert.Contains(t, streamed, "(3 words)")

	require.Len(t, llm.streamRequests, 1)
	details := llm.streamRequests[0].Bindings["details"]
	assert.Contains(t, details, "Q: What is the budget?")
	assert.Contains(t, details, "A: 50k")
	assert.NotContains(t, details, "unanswered")

	require.NotNil(t, q.Comprehensiveness.RevisedApplicationAnswer)
	assert.Equal(t, "the revised draft", *q.Comprehensiveness.RevisedApplicationAnswer)
}

func TestImprovedAnswerStream(t *testing.T) {
	llm := &fakeLLM{streamText: "warmer draft"}
	s := NewSet(llm, &fakeDocs{}, Config{}, zap.NewNop())

	state := sessionWithQuestion("Why now?")
	q := state.CurrentQuestion()
	draft := "the draft"
	q.OriginalAnswer = &draft

	// No round in flight: state violation.
	out := make(chan string, 8)
	assert.ErrorIs(t, s.ImprovedAnswerStream(context.Background(), state, out), entity.ErrState)

	q.Polish.Improvements = []entity.Improvement{{UserPrompt: "make it warmer"}}
	streamed := collect(t, func(out chan<- string) error {
		return s.ImprovedAnswerStream(context.Background(), state, out)
	})
	assert.Contains(t, streamed, "(2 words)")

	require.Len(t, llm.streamRequests, 1)
	assert.Equal(t, "make it warmer", llm.streamRequests[0].Bindings["guidance"])
	require.NotNil(t, q.Polish.Improvements[0].ImprovedAnswer)
	assert.Equal(t, "warmer draft", *q.Polish.Improvements[0].ImprovedAnswer)
}

func TestValidateUpload(t *testing.T) {
	s := NewSet(&fakeLLM{}, &fakeDocs{}, Config{}, zap.NewNop())
	state := entity.NewSessionState("s-1")
	state.UploadedFiles = []entity.FileReference{
		{Name: "a.txt"}, {Name: "b.md"},
	}

	streamed := collect(t, func(out chan<- string) error {
		return s.ValidateUpload(context.Background(), state, out)
	})
	assert.Contains(t, streamed, "2 file(s)")
	assert.Contains(t, streamed, "a.txt, b.md")
}
