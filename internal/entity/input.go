package entity

// InputKind tags the variant carried by a UserInput.
type InputKind string

const (
	InputNone   InputKind = "NONE"
	InputText   InputKind = "TEXT"
	InputNumber InputKind = "NUMBER"
	InputButton InputKind = "BUTTON"
	InputFiles  InputKind = "FILES"
)

// Triggers derived from free-form submissions. Button inputs use the
// button label itself as the trigger.
const (
	TriggerText   = "__text__"
	TriggerNumber = "__number__"
	TriggerFiles  = "__files__"
)

// UserInput is the tagged variant of the last thing the user submitted.
// Exactly one payload field is meaningful, selected by Kind.
type UserInput struct {
	Kind   InputKind       `json:"kind"`
	Text   string          `json:"text,omitempty"`
	Number int             `json:"number,omitempty"`
	Button ComponentLabel  `json:"button,omitempty"`
	Files  []FileReference `json:"files,omitempty"`
}

// NoInput is the zero-value input recorded before any user event.
func NoInput() UserInput {
	return UserInput{Kind: InputNone}
}

func TextInput(text string) UserInput {
	return UserInput{Kind: InputText, Text: text}
}

func NumberInput(n int) UserInput {
	return UserInput{Kind: InputNumber, Number: n}
}

func ButtonInput(label ComponentLabel) UserInput {
	return UserInput{Kind: InputButton, Button: label}
}

func FilesInput(files []FileReference) UserInput {
	return UserInput{Kind: InputFiles, Files: files}
}

// Trigger returns the normalized label used to dispatch step behavior:
// the button label for button presses, or a fixed marker for free-form
// text, numeric and file submissions.
func (u UserInput) Trigger() string {
	switch u.Kind {
	case InputButton:
		return string(u.Button)
	case InputText:
		return TriggerText
	case InputNumber:
		return TriggerNumber
	case InputFiles:
		return TriggerFiles
	default:
		return ""
	}
}
