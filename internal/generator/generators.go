package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/grantwise/coach-backend/internal/document"
	"github.com/grantwise/coach-backend/internal/entity"
)

const defaultTopK = 4

// Config holds the retrieval defaults applied when a session carries no
// developer-mode overrides.
type Config struct {
	TokensPerChunk int
	TopK           int
}

// Set bundles the message generators wired into workflow steps. Every
// generator streams user-visible text onto out and records its result on
// the session state only after the stream completed.
type Set struct {
	llm    LLMConnector
	docs   DocumentService
	cfg    Config
	logger *zap.Logger
}

func NewSet(llm LLMConnector, docs DocumentService, cfg Config, logger *zap.Logger) *Set {
	if cfg.TokensPerChunk <= 0 {
		cfg.TokensPerChunk = document.DefaultTokensPerChunk
	}
	if cfg.TopK <= 0 {
		cfg.TopK = defaultTopK
	}
	return &Set{llm: llm, docs: docs, cfg: cfg, logger: logger}
}

func emit(ctx context.Context, out chan<- string, msg string) error {
	select {
	case out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// wordCountSuffix closes a streamed answer with its length.
func wordCountSuffix(text string) string {
	return fmt.Sprintf("\n\n(%d words)", len(strings.Fields(text)))
}

// retrievalParams resolves the effective prompt and retrieval settings,
// letting a session's test config override the defaults.
func (s *Set) retrievalParams(state *entity.SessionState) (systemPrompt string, tokensPerChunk, topK int) {
	systemPrompt = DefaultSystemPrompt
	tokensPerChunk = s.cfg.TokensPerChunk
	topK = s.cfg.TopK
	if tc := state.TestConfig; tc != nil {
		if tc.SystemPrompt != nil && *tc.SystemPrompt != "" {
			systemPrompt = *tc.SystemPrompt
		}
		if tc.TokensPerChunk != nil && *tc.TokensPerChunk > 0 {
			tokensPerChunk = *tc.TokensPerChunk
		}
		if tc.NumDocs != nil && *tc.NumDocs > 0 {
			topK = *tc.NumDocs
		}
	}
	return systemPrompt, tokensPerChunk, topK
}

// retrieve builds or refreshes the session index and returns the chunks
// most relevant to query. Returns nothing when the session has no
// uploaded files.
func (s *Set) retrieve(ctx context.Context, state *entity.SessionState, query string, tokensPerChunk, topK int) ([]document.Chunk, error) {
	if len(state.UploadedFiles) == 0 {
		return nil, nil
	}
	idx, err := s.docs.BuildOrRefresh(ctx, state.SessionID, state.UploadedFiles, tokensPerChunk)
	if err != nil {
		return nil, fmt.Errorf("build document index: %w", err)
	}
	chunks, err := s.docs.TopK(ctx, idx, query, topK)
	if err != nil {
		return nil, fmt.Errorf("retrieve chunks: %w", err)
	}
	return chunks, nil
}

func chunkTexts(chunks []document.Chunk) []string {
	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	return texts
}

func asRetrievedChunks(chunks []document.Chunk) []entity.RetrievedChunk {
	if len(chunks) == 0 {
		return nil
	}
	recorded := make([]entity.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		recorded = append(recorded, entity.RetrievedChunk{
			Source:     c.Source,
			Index:      c.Index,
			TokenCount: c.TokenCount,
			Text:       c.Text,
		})
	}
	return recorded
}

// ValidateUpload confirms the recorded uploads back to the user.
func (s *Set) ValidateUpload(ctx context.Context, state *entity.SessionState, out chan<- string) error {
	names := make([]string, 0, len(state.UploadedFiles))
	for _, f := range state.UploadedFiles {
		names = append(names, f.Name)
	}
	msg := fmt.Sprintf("Received %d file(s): %s.", len(names), strings.Join(names, ", "))
	if len(names) == 0 {
		msg = "No files were received."
	}
	return emit(ctx, out, msg)
}

// AnswerQuestionStream drafts the first answer to the current question,
// grounded in the uploaded materials when any exist.
func (s *Set) AnswerQuestionStream(ctx context.Context, state *entity.SessionState, out chan<- string) error {
	q := state.CurrentQuestion()
	if q == nil || q.Question == nil {
		return entity.ErrNoCurrentQuestion
	}
	systemPrompt, tokensPerChunk, topK := s.retrievalParams(state)

	chunks, err := s.retrieve(ctx, state, *q.Question, tokensPerChunk, topK)
	if err != nil {
		return err
	}

	if err := emit(ctx, out, "Here is a draft answer to your question:\n\n"); err != nil {
		return err
	}

	req := entity.ChatStreamRequest{
		SystemPrompt: systemPrompt,
		UserTemplate: answerQuestionDirectTemplate,
		Bindings: map[string]string{
			"question":          *q.Question,
			"word_limit_clause": wordLimitClause(q.WordLimit),
		},
		Mode: entity.PromptModeDirect,
	}
	if len(chunks) > 0 {
		req.UserTemplate = answerQuestionGroundedTemplate
		req.Mode = entity.PromptModeDocumentGrounded
		req.Docs = chunkTexts(chunks)
	}

	var completed string
	if err := s.llm.ChatStream(ctx, req, out, func(full, formatted string) {
		q.OriginalAnswer = &full
		q.RetrievedChunks = asRetrievedChunks(chunks)
		completed = full
	}); err != nil {
		return err
	}
	return emit(ctx, out, wordCountSuffix(completed))
}

type comprehensivenessReport struct {
	MissingInformation string          `json:"missing_information"`
	ImplicitQuestions  json.RawMessage `json:"implicit_questions"`
}

// normalizeImplicitQuestions accepts the three shapes models return for
// the question list: a plain string array, an array of objects with a
// "question" field, or a map of label to question.
func normalizeImplicitQuestions(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var plain []string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, nil
	}
	var objects []struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(raw, &objects); err == nil {
		questions := make([]string, 0, len(objects))
		for _, o := range objects {
			if o.Question != "" {
				questions = append(questions, o.Question)
			}
		}
		return questions, nil
	}
	var keyed map[string]string
	if err := json.Unmarshal(raw, &keyed); err == nil {
		keys := make([]string, 0, len(keyed))
		for k := range keyed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		questions := make([]string, 0, len(keys))
		for _, k := range keys {
			questions = append(questions, keyed[k])
		}
		return questions, nil
	}
	return nil, fmt.Errorf("%w: unrecognized implicit_questions shape", entity.ErrStructuredResponse)
}

// CheckComprehensiveness runs the structured gap review against the
// draft answer and resets the implicit-question walkthrough.
func (s *Set) CheckComprehensiveness(ctx context.Context, state *entity.SessionState, out chan<- string) error {
	q := state.CurrentQuestion()
	if q == nil || q.Question == nil {
		return entity.ErrNoCurrentQuestion
	}
	answer := q.CurrentAnswer()
	if answer == nil {
		return fmt.Errorf("%w: no draft answer to review", entity.ErrState)
	}
	systemPrompt, _, _ := s.retrievalParams(state)

	raw, err := s.llm.InvokeStructured(ctx, entity.StructuredRequest{
		SystemPrompt: systemPrompt,
		UserTemplate: checkComprehensivenessTemplate,
		Bindings: map[string]string{
			"question": *q.Question,
			"answer":   *answer,
		},
		Function: comprehensivenessFunction,
	})
	if err != nil {
		return err
	}

	var report comprehensivenessReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return fmt.Errorf("%w: %v", entity.ErrStructuredResponse, err)
	}
	questions, err := normalizeImplicitQuestions(report.ImplicitQuestions)
	if err != nil {
		return err
	}

	implicit := make([]entity.ImplicitQuestion, 0, len(questions))
	for _, text := range questions {
		implicit = append(implicit, entity.ImplicitQuestion{Question: text})
	}
	q.Comprehensiveness = entity.ComprehensivenessContext{
		MissingInformation: &report.MissingInformation,
		ImplicitQuestions:  implicit,
	}

	if len(implicit) == 0 {
		return emit(ctx, out, "\n\nI reviewed the draft and did not find any obvious gaps.")
	}
	return emit(ctx, out, fmt.Sprintf(
		"\n\nI reviewed the draft and found %d follow-up question(s) that could strengthen the answer.", len(implicit)))
}

// AnswerImplicitStream answers the implicit question currently being
// walked through. Answers containing the "Not enough information"
// fragment are discarded.
func (s *Set) AnswerImplicitStream(ctx context.Context, state *entity.SessionState, out chan<- string) error {
	q := state.CurrentQuestion()
	if q == nil {
		return entity.ErrNoCurrentQuestion
	}
	cur := q.Comprehensiveness.Current()
	if cur == nil {
		return fmt.Errorf("%w: no implicit question selected", entity.ErrState)
	}
	systemPrompt, tokensPerChunk, topK := s.retrievalParams(state)

	chunks, err := s.retrieve(ctx, state, cur.Question, tokensPerChunk, topK)
	if err != nil {
		return err
	}

	req := entity.ChatStreamRequest{
		SystemPrompt: systemPrompt,
		UserTemplate: answerImplicitDirectTemplate,
		Bindings:     map[string]string{"implicit_question": cur.Question},
		Mode:         entity.PromptModeDirect,
	}
	if len(chunks) > 0 {
		req.UserTemplate = answerImplicitGroundedTemplate
		req.Mode = entity.PromptModeDocumentGrounded
		req.Docs = chunkTexts(chunks)
	} else {
		answer := ""
		if a := q.CurrentAnswer(); a != nil {
			answer = *a
		}
		req.Bindings["answer"] = answer
	}

	if err := emit(ctx, out, "Here is my answer to this follow-up question:\n\n"); err != nil {
		return err
	}

	var completed string
	if err := s.llm.ChatStream(ctx, req, out, func(full, formatted string) {
		cur.SetAnswer(full)
		completed = full
	}); err != nil {
		return err
	}
	return emit(ctx, out, wordCountSuffix(completed))
}

// FinalAnswerStream folds the answered implicit questions back into the
// draft. When nothing was answered it apologizes and leaves the draft
// untouched.
func (s *Set) FinalAnswerStream(ctx context.Context, state *entity.SessionState, out chan<- string) error {
	q := state.CurrentQuestion()
	if q == nil || q.Question == nil {
		return entity.ErrNoCurrentQuestion
	}
	comp := &q.Comprehensiveness
	if len(comp.ImplicitQuestions) == 0 || !comp.AnsweredAny() {
		return emit(ctx, out,
			"I am sorry, none of the follow-up questions were answered, so I have nothing new to add to the draft.")
	}
	answer := q.CurrentAnswer()
	if answer == nil {
		return fmt.Errorf("%w: no draft answer to revise", entity.ErrState)
	}

	var details strings.Builder
	for _, iq := range comp.ImplicitQuestions {
		if iq.Answer == nil {
			continue
		}
		fmt.Fprintf(&details, "Q: %s\nA: %s\n\n", iq.Question, *iq.Answer)
	}

	if err := emit(ctx, out, "Here is the revised answer:\n\n"); err != nil {
		return err
	}

	systemPrompt, _, _ := s.retrievalParams(state)
	var completed string
	if err := s.llm.ChatStream(ctx, entity.ChatStreamRequest{
		SystemPrompt: systemPrompt,
		UserTemplate: finalAnswerTemplate,
		Bindings: map[string]string{
			"question":          *q.Question,
			"answer":            *answer,
			"details":           strings.TrimRight(details.String(), "\n"),
			"word_limit_clause": wordLimitClause(q.WordLimit),
		},
		Mode: entity.PromptModeDirect,
	}, out, func(full, formatted string) {
		comp.RevisedApplicationAnswer = &full
		completed = full
	}); err != nil {
		return err
	}
	return emit(ctx, out, wordCountSuffix(completed))
}

// ImprovedAnswerStream rewrites the latest answer following the
// guidance recorded by the in-flight improvement round.
func (s *Set) ImprovedAnswerStream(ctx context.Context, state *entity.SessionState, out chan<- string) error {
	q := state.CurrentQuestion()
	if q == nil {
		return entity.ErrNoCurrentQuestion
	}
	imps := q.Polish.Improvements
	if len(imps) == 0 || imps[len(imps)-1].ImprovedAnswer != nil {
		return fmt.Errorf("%w: no improvement round in flight", entity.ErrState)
	}
	pending := &q.Polish.Improvements[len(imps)-1]
	answer := q.CurrentAnswer()
	if answer == nil {
		return fmt.Errorf("%w: no answer to improve", entity.ErrState)
	}

	if err := emit(ctx, out, "Here is the updated answer:\n\n"); err != nil {
		return err
	}

	systemPrompt, _, _ := s.retrievalParams(state)
	var completed string
	if err := s.llm.ChatStream(ctx, entity.ChatStreamRequest{
		SystemPrompt: systemPrompt,
		UserTemplate: improvedAnswerTemplate,
		Bindings: map[string]string{
			"guidance":          pending.UserPrompt,
			"answer":            *answer,
			"word_limit_clause": wordLimitClause(q.WordLimit),
		},
		Mode: entity.PromptModeDirect,
	}, out, func(full, formatted string) {
		pending.ImprovedAnswer = &full
		completed = full
	}); err != nil {
		return err
	}
	return emit(ctx, out, wordCountSuffix(completed))
}
