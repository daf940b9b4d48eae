package formatter

import (
	"fmt"
	"strings"

	"github.com/grantwise/coach-backend/internal/entity"
)

const baseTitle = "Grant Application Draft"

type Formatter interface {
	Format(plainText string) ([]byte, error)
	ContentType() string
	FileExtension() string
}

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Create(format entity.ResultFormat) (Formatter, error) {
	switch format {
	case entity.FormatMarkdown:
		return NewMarkdownFormatter(), nil
	case entity.FormatDOCX:
		return NewDOCXFormatter(), nil
	case entity.FormatPDF:
		return NewPDFFormatter(), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// RenderTranscript flattens a session into the plain text fed to the
// formatters: one block per question with its limit and latest answer.
func RenderTranscript(state *entity.SessionState) string {
	var b strings.Builder
	for i, q := range state.Questions {
		if q.Question == nil {
			continue
		}
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Question %d: %s\n", i+1, *q.Question)
		if q.WordLimit != nil && *q.WordLimit > 0 {
			fmt.Fprintf(&b, "Word limit: %d\n", *q.WordLimit)
		}
		b.WriteString("\n")
		if answer := q.CurrentAnswer(); answer != nil {
			b.WriteString(*answer)
		} else {
			b.WriteString("(no answer drafted)")
		}
	}
	if b.Len() == 0 {
		return "(no questions in this session)"
	}
	return b.String()
}
