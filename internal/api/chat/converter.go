package chat

import (
	"fmt"

	"github.com/grantwise/coach-backend/internal/entity"
)

// toUserInput converts the wire shape to the tagged variant. Exactly one
// input field must be set.
func toUserInput(dto entity.UserInputDTO) (entity.UserInput, error) {
	set := 0
	if dto.Text != nil {
		set++
	}
	if dto.Number != nil {
		set++
	}
	if dto.Button != nil {
		set++
	}
	if len(dto.Files) > 0 {
		set++
	}
	if set != 1 {
		return entity.UserInput{}, fmt.Errorf("user_input must carry exactly one of text, number, button or files, got %d", set)
	}

	switch {
	case dto.Text != nil:
		return entity.TextInput(*dto.Text), nil
	case dto.Number != nil:
		return entity.NumberInput(*dto.Number), nil
	case dto.Button != nil:
		return entity.ButtonInput(*dto.Button), nil
	default:
		return entity.FilesInput(dto.Files), nil
	}
}
