package workflow

import (
	"fmt"
	"strconv"

	"github.com/grantwise/coach-backend/internal/entity"
)

// Generators names the message generators the steps dispatch to. The
// builder fills it from the generator set; tests substitute scripted
// functions.
type Generators struct {
	ValidateUpload         Generator
	AnswerQuestion         Generator
	CheckComprehensiveness Generator
	AnswerImplicit         Generator
	FinalAnswer            Generator
	ImprovedAnswer         Generator
}

// Registry holds the static step table of the coaching conversation.
// Steps are read-only after construction.
type Registry struct {
	steps map[entity.StepID]*Step
}

func hasMoreImplicit(state *entity.SessionState) bool {
	q := state.CurrentQuestion()
	return q != nil && q.Comprehensiveness.HasMore()
}

func answeredAnyImplicit(state *entity.SessionState) bool {
	q := state.CurrentQuestion()
	return q != nil && q.Comprehensiveness.AnsweredAny()
}

func implicitCount(state *entity.SessionState) int {
	q := state.CurrentQuestion()
	if q == nil {
		return 0
	}
	return len(q.Comprehensiveness.ImplicitQuestions)
}

func underImprovementCap(state *entity.SessionState) bool {
	q := state.CurrentQuestion()
	return q != nil && len(q.Polish.Improvements) < entity.MaxImprovements
}

// NewRegistry builds the step table. In developer mode the word-limit
// step routes into the retrieval-config loop instead of generating the
// draft immediately.
func NewRegistry(gens Generators, devMode bool) *Registry {
	// Routing applied whenever the implicit-question walkthrough should
	// move on: next unanswered question first, then the final revision
	// if anything was answered, otherwise straight to the wrap-up.
	afterImplicit := MultiConditional{
		Cases: []ConditionalCase{
			{Predicate: hasMoreImplicit, Step: entity.StepDoProceedWithImplicit},
			{Predicate: answeredAnyImplicit, Step: entity.StepReadyToGenerateFinal},
		},
		Default: entity.StepDoAnotherQuestion,
	}

	// The gap review may come back clean; with nothing to walk through
	// the session goes straight to polishing the draft.
	afterReview := Conditional{
		Predicate: func(state *entity.SessionState) bool { return implicitCount(state) > 0 },
		IfTrue:    entity.StepGoOverImplicit,
		IfFalse:   entity.StepAskUserIfGuidanceNeeded,
	}

	wordLimitStep := &Step{
		ID: entity.StepEnterWordLimit,
		InitialMessage: "What is the word limit for this answer? " +
			"Enter 0 if there is none.",
		Components: []entity.ComponentLabel{entity.ComponentWordLimit},
		SaveEvent: func(state *entity.SessionState, input entity.UserInput) error {
			return SetWordLimit(state, input.Number)
		},
		GeneratorsByTrigger: map[string][]Generator{
			entity.TriggerNumber: {gens.AnswerQuestion, gens.CheckComprehensiveness},
		},
		NextByTrigger: map[string]Decider{
			entity.TriggerNumber: afterReview,
		},
		UpdatedEditorFields: []entity.EditorField{entity.EditorWordLimit, entity.EditorAnswer},
	}
	if devMode {
		wordLimitStep.GeneratorsByTrigger = nil
		wordLimitStep.NextByTrigger = map[string]Decider{
			entity.TriggerNumber: FixedStep(entity.StepEnterRAGConfig),
		}
		wordLimitStep.UpdatedEditorFields = []entity.EditorField{entity.EditorWordLimit}
	}

	steps := []*Step{
		{
			ID: entity.StepStart,
			InitialMessage: "Hi! I am your grant-writing coach. I will help you draft " +
				"strong answers to grant application questions, grounded in your own " +
				"materials. Press START when you are ready.",
			Components: []entity.ComponentLabel{entity.ComponentStart},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentStart): FixedStep(entity.StepHaveMaterialsToShare),
			},
		},
		{
			ID: entity.StepHaveMaterialsToShare,
			InitialMessage: "Do you have any materials to share? Reference documents " +
				"let me ground the draft in your own facts and figures.",
			Components: []entity.ComponentLabel{entity.ComponentYes, entity.ComponentNo},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentYes): FixedStep(entity.StepUploadFiles),
				string(entity.ComponentNo):  FixedStep(entity.StepEnterQuestion),
			},
		},
		{
			ID: entity.StepUploadFiles,
			InitialMessage: "Please upload your reference documents " +
				"(.txt, .md or .docx) and press SUBMIT.",
			Components: []entity.ComponentLabel{entity.ComponentFiles, entity.ComponentSubmit},
			SaveEvent: func(state *entity.SessionState, input entity.UserInput) error {
				return SetUploadedFiles(state, input.Files)
			},
			GeneratorsByTrigger: map[string][]Generator{
				entity.TriggerFiles: {gens.ValidateUpload},
			},
			NextByTrigger: map[string]Decider{
				entity.TriggerFiles: FixedStep(entity.StepEnterQuestion),
			},
		},
		{
			ID: entity.StepEnterQuestion,
			InitialMessage: "What grant application question would you like to work on? " +
				"Paste it below.",
			Components: []entity.ComponentLabel{entity.ComponentUserText},
			Initialize: AddNewQuestion,
			SaveEvent: func(state *entity.SessionState, input entity.UserInput) error {
				return SetGrantApplicationQuestion(state, input.Text)
			},
			NextByTrigger: map[string]Decider{
				entity.TriggerText: FixedStep(entity.StepEnterWordLimit),
			},
			UpdatedEditorFields: []entity.EditorField{entity.EditorQuestion},
		},
		wordLimitStep,
		{
			ID: entity.StepEnterRAGConfig,
			InitialMessage: "Developer mode. Paste a JSON object with system_prompt, " +
				"tokens_per_chunk and num_docs fields, or just a plain system prompt.",
			Components: []entity.ComponentLabel{
				entity.ComponentUserText,
				entity.ComponentNumOfTokens,
				entity.ComponentNumOfDocs,
			},
			SaveEvent: func(state *entity.SessionState, input entity.UserInput) error {
				if input.Kind != entity.InputText {
					return fmt.Errorf("retrieval config must be submitted as text: %w", entity.ErrState)
				}
				return SetTestConfigParams(state, input.Text)
			},
			GeneratorsByTrigger: map[string][]Generator{
				entity.TriggerText: {gens.AnswerQuestion, gens.CheckComprehensiveness},
			},
			NextByTrigger: map[string]Decider{
				entity.TriggerText: FixedStep(entity.StepGoBackToConfigStep),
			},
			UpdatedEditorFields: []entity.EditorField{entity.EditorAnswer},
		},
		{
			ID:             entity.StepGoBackToConfigStep,
			InitialMessage: "Would you like to tweak the configuration and regenerate the draft?",
			Components:     []entity.ComponentLabel{entity.ComponentYes, entity.ComponentNo},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentYes): FixedStep(entity.StepEnterRAGConfig),
				string(entity.ComponentNo):  afterReview,
			},
		},
		{
			ID: entity.StepGoOverImplicit,
			InitialMessage: "I found {count} follow-up question(s) whose answers would " +
				"strengthen the draft. Shall we go over them together?",
			MessageVars: func(state *entity.SessionState) map[string]string {
				return map[string]string{"count": strconv.Itoa(implicitCount(state))}
			},
			Components: []entity.ComponentLabel{entity.ComponentYes, entity.ComponentNo},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentYes): FixedStep(entity.StepDoProceedWithImplicit),
				string(entity.ComponentNo):  FixedStep(entity.StepAskUserIfGuidanceNeeded),
			},
		},
		{
			ID:             entity.StepDoProceedWithImplicit,
			InitialMessage: "Question {index} of {total}: {question}\n\nShall I try to answer it from your documents?",
			MessageVars: func(state *entity.SessionState) map[string]string {
				vars := map[string]string{
					"index":    "?",
					"total":    strconv.Itoa(implicitCount(state)),
					"question": "",
				}
				q := state.CurrentQuestion()
				if q == nil {
					return vars
				}
				if idx := q.Comprehensiveness.IndexBeingAnswered; idx != nil {
					vars["index"] = strconv.Itoa(*idx + 1)
				}
				if cur := q.Comprehensiveness.Current(); cur != nil {
					vars["question"] = cur.Question
				}
				return vars
			},
			Components: []entity.ComponentLabel{entity.ComponentYes, entity.ComponentNo},
			Initialize: AdvanceImplicitIndex,
			GeneratorsByTrigger: map[string][]Generator{
				string(entity.ComponentYes): {gens.AnswerImplicit},
			},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentYes): FixedStep(entity.StepSelectWhatToDoWithAnswer),
				string(entity.ComponentNo):  afterImplicit,
			},
		},
		{
			ID:             entity.StepSelectWhatToDoWithAnswer,
			InitialMessage: "{outcome}",
			MessageVars: func(state *entity.SessionState) map[string]string {
				if currentImplicitAnswered(state) {
					return map[string]string{
						"outcome": "Does this answer look good as is, or would you like to edit it?",
					}
				}
				return map[string]string{
					"outcome": "The documents did not contain enough information to answer " +
						"this question. Would you like to answer it yourself?",
				}
			},
			ComponentsFunc: func(state *entity.SessionState) []entity.ComponentLabel {
				if currentImplicitAnswered(state) {
					return []entity.ComponentLabel{entity.ComponentGoodAsIs, entity.ComponentEditIt}
				}
				return []entity.ComponentLabel{entity.ComponentYes, entity.ComponentNo}
			},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentYes):      FixedStep(entity.StepPromptUserToSubmitAnswer),
				string(entity.ComponentEditIt):   FixedStep(entity.StepPromptUserToSubmitAnswer),
				string(entity.ComponentGoodAsIs): afterImplicit,
				string(entity.ComponentNo):       afterImplicit,
			},
		},
		{
			ID:             entity.StepPromptUserToSubmitAnswer,
			InitialMessage: "Please type your answer to the question above.",
			Components:     []entity.ComponentLabel{entity.ComponentUserText},
			SaveEvent: func(state *entity.SessionState, input entity.UserInput) error {
				return SetAnswerToCurrentImplicitQuestion(state, input.Text)
			},
			NextByTrigger: map[string]Decider{
				entity.TriggerText: afterImplicit,
			},
		},
		{
			ID: entity.StepReadyToGenerateFinal,
			InitialMessage: "Great, we went over all the follow-up questions. " +
				"Shall I fold the answers back into the draft?",
			Components: []entity.ComponentLabel{entity.ComponentOfCourse},
			GeneratorsByTrigger: map[string][]Generator{
				string(entity.ComponentOfCourse): {gens.FinalAnswer},
			},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentOfCourse): FixedStep(entity.StepAskUserIfGuidanceNeeded),
			},
			UpdatedEditorFields: []entity.EditorField{entity.EditorAnswer},
		},
		{
			ID: entity.StepAskUserIfGuidanceNeeded,
			InitialMessage: "How does the answer look? You can keep it as is, or give me " +
				"guidance on how to improve it.",
			Components: []entity.ComponentLabel{entity.ComponentGoodAsIs, entity.ComponentAddGuidance},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentGoodAsIs):    FixedStep(entity.StepDoAnotherQuestion),
				string(entity.ComponentAddGuidance): FixedStep(entity.StepUserGuidancePrompt),
			},
		},
		{
			ID:             entity.StepUserGuidancePrompt,
			InitialMessage: "What would you like me to change?",
			Components:     []entity.ComponentLabel{entity.ComponentUserText},
			SaveEvent: func(state *entity.SessionState, input entity.UserInput) error {
				return SetUserGuidancePrompt(state, input.Text)
			},
			GeneratorsByTrigger: map[string][]Generator{
				entity.TriggerText: {gens.ImprovedAnswer},
			},
			NextByTrigger: map[string]Decider{
				entity.TriggerText: Conditional{
					Predicate: underImprovementCap,
					IfTrue:    entity.StepAskUserIfGuidanceNeeded,
					IfFalse:   entity.StepDoAnotherQuestion,
				},
			},
			UpdatedEditorFields: []entity.EditorField{entity.EditorAnswer},
		},
		{
			ID:             entity.StepDoAnotherQuestion,
			InitialMessage: "Would you like to work on another question?",
			Components:     []entity.ComponentLabel{entity.ComponentYes, entity.ComponentNo},
			NextByTrigger: map[string]Decider{
				string(entity.ComponentYes): FixedStep(entity.StepEnterQuestion),
				string(entity.ComponentNo):  FixedStep(entity.StepEnd),
			},
		},
		{
			ID: entity.StepEnd,
			InitialMessage: "Good luck with your application! You can export the full " +
				"session as a PDF at any time.",
		},
	}

	table := make(map[entity.StepID]*Step, len(steps))
	for _, s := range steps {
		table[s.ID] = s
	}
	return &Registry{steps: table}
}

func currentImplicitAnswered(state *entity.SessionState) bool {
	q := state.CurrentQuestion()
	if q == nil {
		return false
	}
	cur := q.Comprehensiveness.Current()
	return cur != nil && cur.Answer != nil
}

// Step looks up a step by ID.
func (r *Registry) Step(id entity.StepID) (*Step, error) {
	s, ok := r.steps[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, entity.ErrUnknownStep)
	}
	return s, nil
}

// Validate checks that every decider target refers to a registered step.
func (r *Registry) Validate() error {
	for id, s := range r.steps {
		for _, target := range s.AllTargets() {
			if _, ok := r.steps[target]; !ok {
				return fmt.Errorf("step %q routes to unregistered step %q: %w",
					id, target, entity.ErrUnknownStep)
			}
		}
	}
	return nil
}
