package document

import "strings"

// DefaultTokensPerChunk is the chunk size used when no override is set.
const DefaultTokensPerChunk = 1000

// maxOverlapTokens caps the overlap carried between adjacent chunks.
const maxOverlapTokens = 150

// chunkSeparators are tried in order; text that still exceeds the
// target after the last separator is cut at a fixed width.
var chunkSeparators = []string{"\n\n", "\n"}

// Chunker splits text recursively on paragraph and line boundaries,
// targeting a token budget per chunk with a small overlap between
// adjacent chunks.
type Chunker struct {
	targetTokens  int
	overlapTokens int
}

func NewChunker(targetTokens int) *Chunker {
	if targetTokens <= 0 {
		targetTokens = DefaultTokensPerChunk
	}
	overlap := targetTokens / 10
	if overlap > maxOverlapTokens {
		overlap = maxOverlapTokens
	}
	return &Chunker{
		targetTokens:  targetTokens,
		overlapTokens: overlap,
	}
}

// Split breaks text into chunks of at most the target token count,
// prepending the tail of the previous chunk to each subsequent one.
func (c *Chunker) Split(text string) []string {
	pieces := c.split(text, chunkSeparators)
	chunks := c.merge(pieces)

	if c.overlapTokens == 0 || len(chunks) < 2 {
		return chunks
	}

	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		out[i] = tail(chunks[i-1], c.overlapTokens) + chunks[i]
	}
	return out
}

// split recursively cuts text into pieces no larger than the target,
// keeping separators attached so merging is lossless.
func (c *Chunker) split(text string, separators []string) []string {
	if EstimateTokens(text) <= c.targetTokens {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	if len(separators) == 0 {
		return c.hardCut(text)
	}

	parts := strings.SplitAfter(text, separators[0])
	var pieces []string
	for _, part := range parts {
		pieces = append(pieces, c.split(part, separators[1:])...)
	}
	return pieces
}

// merge greedily concatenates adjacent pieces while staying within the
// token budget.
func (c *Chunker) merge(pieces []string) []string {
	var chunks []string
	var current strings.Builder
	currentTokens := 0

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunk := strings.TrimSpace(current.String())
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		current.Reset()
		currentTokens = 0
	}

	for _, piece := range pieces {
		t := EstimateTokens(piece)
		if currentTokens > 0 && currentTokens+t > c.targetTokens {
			flush()
		}
		current.WriteString(piece)
		currentTokens += t
	}
	flush()

	return chunks
}

// hardCut slices text at a fixed rune width when no separator applies.
func (c *Chunker) hardCut(text string) []string {
	width := c.targetTokens * 4
	runes := []rune(text)

	var pieces []string
	for start := 0; start < len(runes); start += width {
		end := start + width
		if end > len(runes) {
			end = len(runes)
		}
		piece := string(runes[start:end])
		if strings.TrimSpace(piece) != "" {
			pieces = append(pieces, piece)
		}
	}
	return pieces
}

// tail returns roughly the last n tokens of text, cut on a rune boundary.
func tail(text string, tokens int) string {
	runes := []rune(text)
	width := tokens * 4
	if len(runes) <= width {
		return text
	}
	return string(runes[len(runes)-width:])
}
