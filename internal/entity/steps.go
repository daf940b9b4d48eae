package entity

// StepID identifies a node in the coaching conversation state machine.
type StepID string

const (
	StepStart                    StepID = "START"
	StepHaveMaterialsToShare     StepID = "HAVE_MATERIALS_TO_SHARE"
	StepUploadFiles              StepID = "UPLOAD_FILES"
	StepEnterQuestion            StepID = "ENTER_QUESTION"
	StepEnterWordLimit           StepID = "ENTER_WORD_LIMIT"
	StepEnterRAGConfig           StepID = "ENTER_RAG_CONFIG"
	StepGoBackToConfigStep       StepID = "GO_BACK_TO_CONFIG_STEP"
	StepGoOverImplicit           StepID = "GO_OVER_IMPLICIT_QUESTIONS"
	StepDoProceedWithImplicit    StepID = "DO_PROCEED_WITH_IMPLICIT_QUESTION"
	StepSelectWhatToDoWithAnswer StepID = "SELECT_WHAT_TO_DO_WITH_ANSWER_GENERATED_FROM_CONTEXT"
	StepPromptUserToSubmitAnswer StepID = "PROMPT_USER_TO_SUBMIT_ANSWER"
	StepReadyToGenerateFinal     StepID = "READY_TO_GENERATE_FINAL_ANSWER"
	StepAskUserIfGuidanceNeeded  StepID = "ASK_USER_IF_GUIDANCE_NEEDED"
	StepUserGuidancePrompt       StepID = "USER_GUIDANCE_PROMPT"
	StepDoAnotherQuestion        StepID = "DO_ANOTHER_QUESTION"
	StepEnd                      StepID = "END"
)

// ComponentLabel enumerates the UI affordances a step can expect.
type ComponentLabel string

const (
	ComponentStart       ComponentLabel = "START"
	ComponentYes         ComponentLabel = "YES"
	ComponentNo          ComponentLabel = "NO"
	ComponentFiles       ComponentLabel = "FILES"
	ComponentWordLimit   ComponentLabel = "WORD_LIMIT"
	ComponentUserText    ComponentLabel = "USER_TEXT"
	ComponentNumOfTokens ComponentLabel = "NUM_OF_TOKENS"
	ComponentNumOfDocs   ComponentLabel = "NUM_OF_DOCS"
	ComponentGoodAsIs    ComponentLabel = "GOOD_AS_IS"
	ComponentEditIt      ComponentLabel = "EDIT_IT"
	ComponentAddGuidance ComponentLabel = "ADD_GUIDANCE"
	ComponentOfCourse    ComponentLabel = "OF_COURSE"
	ComponentSubmit      ComponentLabel = "SUBMIT"
)

// EditorField names a side-panel field the client should refresh after a step.
type EditorField string

const (
	EditorQuestion  EditorField = "QUESTION"
	EditorWordLimit EditorField = "WORD_LIMIT"
	EditorAnswer    EditorField = "ANSWER"
)
