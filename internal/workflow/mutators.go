package workflow

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/grantwise/coach-backend/internal/entity"
)

// Session state mutators. Together with the message generators these are
// the only writers to SessionState. Each is total on its documented
// precondition; violations fail with entity.ErrState.

// SetUploadedFiles records the uploaded file set, deduplicated by
// basename with first occurrence winning.
func SetUploadedFiles(state *entity.SessionState, files []entity.FileReference) error {
	seen := make(map[string]bool, len(files))
	deduped := make([]entity.FileReference, 0, len(files))
	for _, f := range files {
		base := filepath.Base(f.Name)
		if seen[base] {
			continue
		}
		seen[base] = true
		f.Name = base
		deduped = append(deduped, f)
	}
	state.UploadedFiles = deduped
	return nil
}

// AddNewQuestion appends a fresh QuestionContext and makes it current.
func AddNewQuestion(state *entity.SessionState) error {
	state.Questions = append(state.Questions, &entity.QuestionContext{})
	return nil
}

// SetGrantApplicationQuestion stores the grant question text.
// Precondition: a current question exists.
func SetGrantApplicationQuestion(state *entity.SessionState, text string) error {
	q := state.CurrentQuestion()
	if q == nil {
		return fmt.Errorf("set question: %w", entity.ErrState)
	}
	q.Question = &text
	return nil
}

// SetWordLimit stores the word limit for the current question. A limit
// of zero means "no limit". Precondition: a current question exists.
func SetWordLimit(state *entity.SessionState, limit int) error {
	q := state.CurrentQuestion()
	if q == nil {
		return fmt.Errorf("set word limit: %w", entity.ErrState)
	}
	if limit < 0 {
		return fmt.Errorf("negative word limit %d: %w", limit, entity.ErrState)
	}
	q.WordLimit = &limit
	return nil
}

// AdvanceImplicitIndex moves the walkthrough to the next implicit
// question: nil becomes 0, otherwise the index increments. It never
// moves backwards. With no implicit questions it is a no-op.
func AdvanceImplicitIndex(state *entity.SessionState) error {
	q := state.CurrentQuestion()
	if q == nil {
		return fmt.Errorf("advance implicit index: %w", entity.ErrState)
	}

	comp := &q.Comprehensiveness
	if len(comp.ImplicitQuestions) == 0 {
		return nil
	}

	if comp.IndexBeingAnswered == nil {
		zero := 0
		comp.IndexBeingAnswered = &zero
		return nil
	}

	next := *comp.IndexBeingAnswered + 1
	if next >= len(comp.ImplicitQuestions) {
		return fmt.Errorf("implicit index %d out of range: %w", next, entity.ErrState)
	}
	comp.IndexBeingAnswered = &next
	return nil
}

// SetAnswerToCurrentImplicitQuestion records the user's own answer to
// the implicit question being answered. Precondition: a walkthrough is
// in progress.
func SetAnswerToCurrentImplicitQuestion(state *entity.SessionState, text string) error {
	q := state.CurrentQuestion()
	if q == nil {
		return fmt.Errorf("set implicit answer: %w", entity.ErrNoCurrentQuestion)
	}
	current := q.Comprehensiveness.Current()
	if current == nil {
		return fmt.Errorf("no implicit question currently being answered: %w", entity.ErrState)
	}
	current.SetAnswer(text)
	return nil
}

// SetUserGuidancePrompt opens a new improvement round with the user's
// guidance. The improved answer is filled in by the rewrite generator.
// Precondition: a current question exists and the improvement cap has
// not been reached.
func SetUserGuidancePrompt(state *entity.SessionState, text string) error {
	q := state.CurrentQuestion()
	if q == nil {
		return fmt.Errorf("set guidance prompt: %w", entity.ErrNoCurrentQuestion)
	}
	if len(q.Polish.Improvements) >= entity.MaxImprovements {
		return fmt.Errorf("improvement cap reached: %w", entity.ErrState)
	}
	q.Polish.Improvements = append(q.Polish.Improvements, entity.Improvement{UserPrompt: text})
	return nil
}

// SetTestConfigParams stores developer-mode retrieval overrides. The
// input is either a JSON object with system_prompt / tokens_per_chunk /
// num_docs fields or a plain system prompt.
func SetTestConfigParams(state *entity.SessionState, text string) error {
	var cfg entity.TestConfig
	if err := json.Unmarshal([]byte(text), &cfg); err != nil {
		cfg = entity.TestConfig{SystemPrompt: &text}
	}
	state.TestConfig = &cfg
	return nil
}
