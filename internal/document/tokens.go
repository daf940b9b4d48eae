package document

import "unicode/utf8"

// EstimateTokens approximates the token count of a text. The real
// tokenizer lives with the model provider; four characters per token is
// the usual ballpark for English prose and is good enough for chunk
// sizing.
func EstimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
