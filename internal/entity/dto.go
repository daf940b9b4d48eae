package entity

// ResultFormat selects the export format of a session transcript.
type ResultFormat string

const (
	FormatMarkdown ResultFormat = "md"
	FormatDOCX     ResultFormat = "docx"
	FormatPDF      ResultFormat = "pdf"
)

// ChatRequest is the body of POST /chat. Exactly one user input field
// must be set.
type ChatRequest struct {
	SessionID string       `json:"session_id"`
	UserInput UserInputDTO `json:"user_input"`
}

// UserInputDTO is the wire shape of a user event.
type UserInputDTO struct {
	Text   *string         `json:"text,omitempty"`
	Number *int            `json:"number,omitempty"`
	Button *ComponentLabel `json:"button,omitempty"`
	Files  []FileReference `json:"files,omitempty"`
}

// UpdatedContent is the side-panel snapshot attached to a step transition.
type UpdatedContent struct {
	QuestionIndex int     `json:"question_index"`
	Question      *string `json:"question,omitempty"`
	WordLimit     *int    `json:"word_limit,omitempty"`
	Answer        *string `json:"answer,omitempty"`
}

// NextStepDescriptor is the response of POST /after_chat/{session_id}:
// the new step's opening message, its UI components and the editor
// fields the client should refresh.
type NextStepDescriptor struct {
	InitialMessage string           `json:"initial_message"`
	Components     []ComponentLabel `json:"components"`
	UpdatedContent *UpdatedContent  `json:"updated_content,omitempty"`
}
