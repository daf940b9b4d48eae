package entity

import "encoding/json"

// PromptMode selects the prompt shape for a chat completion.
type PromptMode string

const (
	PromptModeDirect           PromptMode = "DIRECT"
	PromptModeDocumentGrounded PromptMode = "DOCUMENT_GROUNDED"
)

// ChatStreamRequest describes one streaming chat completion. Template
// slots of the form {name} are filled from Bindings; for the
// document-grounded mode the non-empty Docs list is formatted into the
// template's {context} slot.
type ChatStreamRequest struct {
	SystemPrompt string
	UserTemplate string
	Bindings     map[string]string
	Mode         PromptMode
	Docs         []string
}

// FunctionSchema describes the single function exposed to the model for
// a structured invocation.
type FunctionSchema struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// StructuredRequest describes one non-streaming function-call invocation.
type StructuredRequest struct {
	SystemPrompt string
	UserTemplate string
	Bindings     map[string]string
	Function     FunctionSchema
}
