package generator

import (
	"encoding/json"
	"fmt"

	"github.com/grantwise/coach-backend/internal/entity"
)

// DefaultSystemPrompt frames every completion. Developer mode can
// override it per session through the test config.
const DefaultSystemPrompt = "You are an experienced grant writer coaching a nonprofit. " +
	"Write clear, specific, factual prose grounded in the applicant's own materials. " +
	"Never invent facts that are not supported by the provided context."

const answerQuestionGroundedTemplate = "Draft an answer to the following grant application question{word_limit_clause}. " +
	"Ground the answer in the reference materials below.\n\n" +
	"Question: {question}\n\n" +
	"Reference materials:\n{context}"

const answerQuestionDirectTemplate = "Draft an answer to the following grant application question{word_limit_clause}.\n\n" +
	"Question: {question}"

const answerImplicitGroundedTemplate = "Answer the follow-up question below using only the reference materials. " +
	"If the materials do not contain the answer, reply exactly: " +
	"\"Not enough information in the provided documents.\"\n\n" +
	"Follow-up question: {implicit_question}\n\n" +
	"Reference materials:\n{context}"

const answerImplicitDirectTemplate = "Answer the follow-up question below if it can be answered from the draft. " +
	"If not, reply exactly: \"Not enough information in the provided documents.\"\n\n" +
	"Draft answer:\n{answer}\n\n" +
	"Follow-up question: {implicit_question}"

const finalAnswerTemplate = "Revise the draft answer to a grant application question so it incorporates " +
	"the additional details below{word_limit_clause}. Keep the original structure where possible.\n\n" +
	"Question: {question}\n\n" +
	"Draft answer:\n{answer}\n\n" +
	"Additional details:\n{details}"

const improvedAnswerTemplate = "Rewrite the answer below following the user's guidance{word_limit_clause}.\n\n" +
	"Guidance: {guidance}\n\n" +
	"Answer:\n{answer}"

const checkComprehensivenessTemplate = "Review the draft answer to a grant application question. " +
	"Identify information a reviewer would expect but the draft does not provide, and phrase each gap " +
	"as a question the applicant could answer.\n\n" +
	"Question: {question}\n\n" +
	"Draft answer:\n{answer}"

// comprehensivenessFunction is the function-call schema for the
// comprehensiveness review.
var comprehensivenessFunction = entity.FunctionSchema{
	Name:        "report_comprehensiveness",
	Description: "Report the information missing from a draft grant answer and the implicit follow-up questions that would elicit it.",
	Parameters: json.RawMessage(`{
		"type": "object",
		"properties": {
			"missing_information": {
				"type": "string",
				"description": "A short summary of what the draft fails to cover."
			},
			"implicit_questions": {
				"type": "array",
				"items": {"type": "string"},
				"description": "Follow-up questions the applicant should answer."
			}
		},
		"required": ["missing_information", "implicit_questions"]
	}`),
}

// wordLimitClause renders the optional word-limit hint for prompt
// templates. A zero limit means no limit and yields no clause.
func wordLimitClause(limit *int) string {
	if limit == nil || *limit == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d words)", *limit)
}
