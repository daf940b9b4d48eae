package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantwise/coach-backend/internal/entity"
)

func sessionWithQuestion(t *testing.T) *entity.SessionState {
	t.Helper()
	state := entity.NewSessionState("s-1")
	require.NoError(t, AddNewQuestion(state))
	return state
}

func TestSetUploadedFilesDedupesByBasename(t *testing.T) {
	state := entity.NewSessionState("s-1")

	err := SetUploadedFiles(state, []entity.FileReference{
		{Name: "/tmp/a/report.txt", URI: "file:///tmp/a/report.txt"},
		{Name: "report.txt", URI: "file:///tmp/b/report.txt"},
		{Name: "budget.md", URI: "file:///tmp/budget.md"},
	})
	require.NoError(t, err)

	require.Len(t, state.UploadedFiles, 2)
	assert.Equal(t, "report.txt", state.UploadedFiles[0].Name)
	assert.Equal(t, "file:///tmp/a/report.txt", state.UploadedFiles[0].URI,
		"first occurrence of a basename wins")
	assert.Equal(t, "budget.md", state.UploadedFiles[1].Name)
}

func TestSetGrantApplicationQuestionRequiresQuestion(t *testing.T) {
	state := entity.NewSessionState("s-1")
	err := SetGrantApplicationQuestion(state, "Why now?")
	assert.ErrorIs(t, err, entity.ErrState)

	state = sessionWithQuestion(t)
	require.NoError(t, SetGrantApplicationQuestion(state, "Why now?"))
	assert.Equal(t, "Why now?", *state.CurrentQuestion().Question)
}

func TestSetWordLimit(t *testing.T) {
	state := sessionWithQuestion(t)

	assert.ErrorIs(t, SetWordLimit(state, -1), entity.ErrState)

	require.NoError(t, SetWordLimit(state, 0), "zero means no limit")
	assert.Equal(t, 0, *state.CurrentQuestion().WordLimit)

	require.NoError(t, SetWordLimit(state, 250))
	assert.Equal(t, 250, *state.CurrentQuestion().WordLimit)
}

func TestAdvanceImplicitIndex(t *testing.T) {
	state := sessionWithQuestion(t)
	q := state.CurrentQuestion()

	// No implicit questions: advancing is a no-op.
	require.NoError(t, AdvanceImplicitIndex(state))
	assert.Nil(t, q.Comprehensiveness.IndexBeingAnswered)

	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{
		{Question: "first"}, {Question: "second"},
	}

	require.NoError(t, AdvanceImplicitIndex(state))
	assert.Equal(t, 0, *q.Comprehensiveness.IndexBeingAnswered)

	require.NoError(t, AdvanceImplicitIndex(state))
	assert.Equal(t, 1, *q.Comprehensiveness.IndexBeingAnswered)

	assert.ErrorIs(t, AdvanceImplicitIndex(state), entity.ErrState,
		"advancing past the last question is a state violation")
	assert.Equal(t, 1, *q.Comprehensiveness.IndexBeingAnswered)
}

func TestSetAnswerToCurrentImplicitQuestion(t *testing.T) {
	state := sessionWithQuestion(t)
	q := state.CurrentQuestion()

	assert.ErrorIs(t, SetAnswerToCurrentImplicitQuestion(state, "answer"), entity.ErrState)

	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{{Question: "first"}}
	require.NoError(t, AdvanceImplicitIndex(state))

	require.NoError(t, SetAnswerToCurrentImplicitQuestion(state, "the budget is 50k"))
	assert.Equal(t, "the budget is 50k", *q.Comprehensiveness.ImplicitQuestions[0].Answer)
}

func TestSetUserGuidancePromptEnforcesCap(t *testing.T) {
	state := sessionWithQuestion(t)
	q := state.CurrentQuestion()

	for i := 0; i < entity.MaxImprovements; i++ {
		require.NoError(t, SetUserGuidancePrompt(state, "make it better"))
		improved := "better"
		q.Polish.Improvements[i].ImprovedAnswer = &improved
	}

	assert.ErrorIs(t, SetUserGuidancePrompt(state, "one more"), entity.ErrState)
	assert.Len(t, q.Polish.Improvements, entity.MaxImprovements)
}

func TestSetTestConfigParams(t *testing.T) {
	state := entity.NewSessionState("s-1")

	require.NoError(t, SetTestConfigParams(state,
		`{"system_prompt":"be terse","tokens_per_chunk":500,"num_docs":2}`))
	require.NotNil(t, state.TestConfig)
	assert.Equal(t, "be terse", *state.TestConfig.SystemPrompt)
	assert.Equal(t, 500, *state.TestConfig.TokensPerChunk)
	assert.Equal(t, 2, *state.TestConfig.NumDocs)

	// Non-JSON input is taken as a plain system prompt.
	require.NoError(t, SetTestConfigParams(state, "answer like a pirate"))
	assert.Equal(t, "answer like a pirate", *state.TestConfig.SystemPrompt)
	assert.Nil(t, state.TestConfig.TokensPerChunk)
}
