package entity

import (
	"strings"
	"time"
)

// MaxImprovements caps the free-form polish rounds per question.
const MaxImprovements = 3

// notEnoughInfoFragment marks a model answer that should be discarded
// instead of being recorded against an implicit question.
const notEnoughInfoFragment = "Not enough information"

// FileReference is an opaque handle to an uploaded reference document.
// Name is the basename shown to the user; URI is resolved by the
// document service (plain path, file:// or http(s)://).
type FileReference struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}

// RetrievedChunk records a chunk that was fed into the model while
// drafting an answer.
type RetrievedChunk struct {
	Source     string `json:"source"`
	Index      int    `json:"index"`
	TokenCount int    `json:"token_count"`
	Text       string `json:"text"`
}

// ImplicitQuestion is a follow-up question produced by the
// comprehensiveness review to elicit missing information.
type ImplicitQuestion struct {
	Question string  `json:"question"`
	Answer   *string `json:"answer,omitempty"`
}

// SetAnswer records an answer unless it contains the "Not enough
// information" fragment, which is discarded and leaves the answer unset.
func (q *ImplicitQuestion) SetAnswer(text string) {
	if strings.Contains(text, notEnoughInfoFragment) {
		return
	}
	q.Answer = &text
}

// ComprehensivenessContext holds the outcome of the comprehensiveness
// review and the progress of the implicit-question walkthrough.
type ComprehensivenessContext struct {
	MissingInformation *string            `json:"missing_information,omitempty"`
	ImplicitQuestions  []ImplicitQuestion `json:"implicit_questions,omitempty"`
	// IndexBeingAnswered is 0-based and monotonically non-decreasing
	// until a new question resets it.
	IndexBeingAnswered       *int    `json:"index_of_implicit_question_being_answered,omitempty"`
	RevisedApplicationAnswer *string `json:"revised_application_answer,omitempty"`
}

// AnsweredAny reports whether at least one implicit question carries an answer.
func (c *ComprehensivenessContext) AnsweredAny() bool {
	for _, q := range c.ImplicitQuestions {
		if q.Answer != nil {
			return true
		}
	}
	return false
}

// Current returns the implicit question being answered, if any.
func (c *ComprehensivenessContext) Current() *ImplicitQuestion {
	if c.IndexBeingAnswered == nil {
		return nil
	}
	i := *c.IndexBeingAnswered
	if i < 0 || i >= len(c.ImplicitQuestions) {
		return nil
	}
	return &c.ImplicitQuestions[i]
}

// HasMore reports whether an implicit question remains after the current
// position. Before the walkthrough starts it is true iff any exist.
func (c *ComprehensivenessContext) HasMore() bool {
	if c.IndexBeingAnswered == nil {
		return len(c.ImplicitQuestions) > 0
	}
	return *c.IndexBeingAnswered+1 < len(c.ImplicitQuestions)
}

// Improvement is one free-form polish round. A nil ImprovedAnswer means
// the rewrite is still in flight.
type Improvement struct {
	UserPrompt     string  `json:"user_prompt"`
	ImprovedAnswer *string `json:"improved_answer,omitempty"`
}

// PolishContext holds up to MaxImprovements improvement rounds.
type PolishContext struct {
	Improvements []Improvement `json:"improvements,omitempty"`
}

// LatestImproved returns the most recent completed improvement, if any.
func (p *PolishContext) LatestImproved() *string {
	for i := len(p.Improvements) - 1; i >= 0; i-- {
		if p.Improvements[i].ImprovedAnswer != nil {
			return p.Improvements[i].ImprovedAnswer
		}
	}
	return nil
}

// EditedAnswer is one entry of the append-only manual edit history.
type EditedAnswer struct {
	Timestamp time.Time `json:"timestamp"`
	Previous  string    `json:"previous"`
	New       string    `json:"new"`
}

// QuestionContext accumulates everything about a single grant question.
// Created when the user enters the question step, mutated by save-event
// handlers and message generators, never destroyed.
type QuestionContext struct {
	Question          *string                  `json:"question,omitempty"`
	WordLimit         *int                     `json:"word_limit,omitempty"`
	OriginalAnswer    *string                  `json:"original_answer,omitempty"`
	RetrievedChunks   []RetrievedChunk         `json:"retrieved_chunks,omitempty"`
	Comprehensiveness ComprehensivenessContext `json:"comprehensiveness"`
	Polish            PolishContext            `json:"polish"`
	EditedAnswers     []EditedAnswer           `json:"edited_answers,omitempty"`
}

// CurrentAnswer is the answer most recently shown to the user: the
// latest improvement if one completed, else the revised answer, else the
// original draft.
func (q *QuestionContext) CurrentAnswer() *string {
	if improved := q.Polish.LatestImproved(); improved != nil {
		return improved
	}
	if q.Comprehensiveness.RevisedApplicationAnswer != nil {
		return q.Comprehensiveness.RevisedApplicationAnswer
	}
	return q.OriginalAnswer
}

// RecordEdit appends a manual edit to the history and applies it by
// overwriting whichever answer layer CurrentAnswer resolves to.
func (q *QuestionContext) RecordEdit(newText string) {
	previous := ""
	if cur := q.CurrentAnswer(); cur != nil {
		previous = *cur
	}
	q.EditedAnswers = append(q.EditedAnswers, EditedAnswer{
		Timestamp: time.Now().UTC(),
		Previous:  previous,
		New:       newText,
	})
	applied := newText
	switch {
	case len(q.Polish.Improvements) > 0 && q.Polish.Improvements[len(q.Polish.Improvements)-1].ImprovedAnswer != nil:
		q.Polish.Improvements[len(q.Polish.Improvements)-1].ImprovedAnswer = &applied
	case q.Comprehensiveness.RevisedApplicationAnswer != nil:
		q.Comprehensiveness.RevisedApplicationAnswer = &applied
	default:
		q.OriginalAnswer = &applied
	}
}

// TestConfig carries developer-mode overrides for the retrieval pipeline.
type TestConfig struct {
	SystemPrompt   *string `json:"system_prompt,omitempty"`
	TokensPerChunk *int    `json:"tokens_per_chunk,omitempty"`
	NumDocs        *int    `json:"num_docs,omitempty"`
}

// SessionState is the per-session root record. All nested records are
// exclusively owned; navigation is strictly downward.
type SessionState struct {
	SessionID     string             `json:"session_id"`
	UserID        string             `json:"user_id,omitempty"`
	CurrentStepID StepID             `json:"current_step_id"`
	UploadedFiles []FileReference    `json:"uploaded_files,omitempty"`
	Questions     []*QuestionContext `json:"questions,omitempty"`
	LastUserInput UserInput          `json:"last_user_input"`
	TestConfig    *TestConfig        `json:"test_config,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NewSessionState constructs a fresh session positioned at the START step.
func NewSessionState(sessionID string) *SessionState {
	now := time.Now().UTC()
	return &SessionState{
		SessionID:     sessionID,
		CurrentStepID: StepStart,
		LastUserInput: NoInput(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// CurrentQuestion returns the question being worked on (the last one), or
// nil before any question was entered.
func (s *SessionState) CurrentQuestion() *QuestionContext {
	if len(s.Questions) == 0 {
		return nil
	}
	return s.Questions[len(s.Questions)-1]
}
