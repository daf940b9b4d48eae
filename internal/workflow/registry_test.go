package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grantwise/coach-backend/internal/entity"
)

func noopGenerators() Generators {
	return Generators{}
}

func TestRegistryValidates(t *testing.T) {
	for _, devMode := range []bool{false, true} {
		registry := NewRegistry(noopGenerators(), devMode)
		assert.NoError(t, registry.Validate())
	}
}

func TestRegistryUnknownStep(t *testing.T) {
	registry := NewRegistry(noopGenerators(), false)
	_, err := registry.Step("NO_SUCH_STEP")
	assert.ErrorIs(t, err, entity.ErrUnknownStep)
}

func TestWordLimitRoutingPerMode(t *testing.T) {
	state := entity.NewSessionState("s-1")
	require.NoError(t, AddNewQuestion(state))
	state.CurrentQuestion().Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{{Question: "gap"}}

	prod := NewRegistry(noopGenerators(), false)
	step, err := prod.Step(entity.StepEnterWordLimit)
	require.NoError(t, err)
	decider, ok := step.DeciderFor(entity.TriggerNumber)
	require.True(t, ok)
	assert.Equal(t, entity.StepGoOverImplicit, decider.Next(state))
	assert.NotEmpty(t, step.GeneratorsFor(entity.TriggerNumber),
		"production mode drafts the answer right after the word limit")

	dev := NewRegistry(noopGenerators(), true)
	step, err = dev.Step(entity.StepEnterWordLimit)
	require.NoError(t, err)
	decider, ok = step.DeciderFor(entity.TriggerNumber)
	require.True(t, ok)
	assert.Equal(t, entity.StepEnterRAGConfig, decider.Next(state))
	assert.Empty(t, step.GeneratorsFor(entity.TriggerNumber),
		"developer mode defers drafting to the retrieval-config step")
}

func TestCleanReviewSkipsWalkthrough(t *testing.T) {
	prod := NewRegistry(noopGenerators(), false)
	step, err := prod.Step(entity.StepEnterWordLimit)
	require.NoError(t, err)
	decider, ok := step.DeciderFor(entity.TriggerNumber)
	require.True(t, ok)

	state := entity.NewSessionState("s-1")
	require.NoError(t, AddNewQuestion(state))
	assert.Equal(t, entity.StepAskUserIfGuidanceNeeded, decider.Next(state),
		"no follow-up questions means no walkthrough to offer")

	state.CurrentQuestion().Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{{Question: "gap"}}
	assert.Equal(t, entity.StepGoOverImplicit, decider.Next(state))

	dev := NewRegistry(noopGenerators(), true)
	step, err = dev.Step(entity.StepGoBackToConfigStep)
	require.NoError(t, err)
	decider, ok = step.DeciderFor(string(entity.ComponentNo))
	require.True(t, ok)

	assert.Equal(t, entity.StepGoOverImplicit, decider.Next(state))
	state.CurrentQuestion().Comprehensiveness.ImplicitQuestions = nil
	assert.Equal(t, entity.StepAskUserIfGuidanceNeeded, decider.Next(state))
}

func TestRAGConfigRejectsNonTextInput(t *testing.T) {
	dev := NewRegistry(noopGenerators(), true)
	step, err := dev.Step(entity.StepEnterRAGConfig)
	require.NoError(t, err)

	state := entity.NewSessionState("s-1")
	require.NoError(t, AddNewQuestion(state))

	assert.ErrorIs(t, step.SaveEvent(state, entity.NumberInput(500)), entity.ErrState)
	assert.Nil(t, state.TestConfig, "a rejected input leaves the config untouched")

	require.NoError(t, step.SaveEvent(state, entity.TextInput("be terse")))
	require.NotNil(t, state.TestConfig)
	require.NotNil(t, state.TestConfig.SystemPrompt)
	assert.Equal(t, "be terse", *state.TestConfig.SystemPrompt)
}

func TestSelectStepComponentsFollowImplicitAnswer(t *testing.T) {
	registry := NewRegistry(noopGenerators(), false)
	step, err := registry.Step(entity.StepSelectWhatToDoWithAnswer)
	require.NoError(t, err)

	state := entity.NewSessionState("s-1")
	require.NoError(t, AddNewQuestion(state))
	q := state.CurrentQuestion()
	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{{Question: "gap"}}
	require.NoError(t, AdvanceImplicitIndex(state))

	assert.Equal(t,
		[]entity.ComponentLabel{entity.ComponentYes, entity.ComponentNo},
		step.ComponentsFor(state),
		"without a model answer the user is offered to answer themselves")

	q.Comprehensiveness.ImplicitQuestions[0].SetAnswer("found it")
	assert.Equal(t,
		[]entity.ComponentLabel{entity.ComponentGoodAsIs, entity.ComponentEditIt},
		step.ComponentsFor(state))
}

func TestAfterImplicitRouting(t *testing.T) {
	registry := NewRegistry(noopGenerators(), false)
	step, err := registry.Step(entity.StepPromptUserToSubmitAnswer)
	require.NoError(t, err)
	decider, ok := step.DeciderFor(entity.TriggerText)
	require.True(t, ok)

	state := entity.NewSessionState("s-1")
	require.NoError(t, AddNewQuestion(state))
	q := state.CurrentQuestion()
	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{
		{Question: "first"}, {Question: "second"},
	}
	require.NoError(t, AdvanceImplicitIndex(state))

	// More questions remain: keep walking.
	assert.Equal(t, entity.StepDoProceedWithImplicit, decider.Next(state))

	// Last question, nothing answered: skip the final revision.
	require.NoError(t, AdvanceImplicitIndex(state))
	assert.Equal(t, entity.StepDoAnotherQuestion, decider.Next(state))

	// Last question with at least one answer: generate the revision.
	q.Comprehensiveness.ImplicitQuestions[0].SetAnswer("answered")
	assert.Equal(t, entity.StepReadyToGenerateFinal, decider.Next(state))
}

func TestDoProceedMessageVars(t *testing.T) {
	registry := NewRegistry(noopGenerators(), false)
	step, err := registry.Step(entity.StepDoProceedWithImplicit)
	require.NoError(t, err)

	state := entity.NewSessionState("s-1")
	require.NoError(t, AddNewQuestion(state))
	q := state.CurrentQuestion()
	q.Comprehensiveness.ImplicitQuestions = []entity.ImplicitQuestion{
		{Question: "What is the budget?"}, {Question: "Who is on staff?"},
	}
	require.NoError(t, AdvanceImplicitIndex(state))
	require.NoError(t, AdvanceImplicitIndex(state))

	message := step.RenderMessage(state)
	assert.Contains(t, message, "Question 2 of 2", "index is displayed 1-based")
	assert.Contains(t, message, "Who is on staff?")
}

func TestEndStepIsTerminal(t *testing.T) {
	registry := NewRegistry(noopGenerators(), false)
	step, err := registry.Step(entity.StepEnd)
	require.NoError(t, err)

	_, ok := step.DeciderFor("YES")
	assert.False(t, ok, "the end step accepts no triggers")
}
