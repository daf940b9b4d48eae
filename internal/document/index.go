package document

import "sort"

// Chunk is one indexed slice of a source document. Index is 1-based
// across the whole source set, in insertion order.
type Chunk struct {
	Source             string `json:"source"`
	Index              int    `json:"index"`
	OriginalTokenCount int    `json:"original_token_count"`
	TokenCount         int    `json:"current_token_count"`
	Text               string `json:"text"`
}

// Index is an in-memory vector index over document chunks. Vectors are
// expected to be unit-normalized so cosine distance reduces to 1 minus
// the dot product. An Index is immutable once built; it belongs to a
// single session.
type Index struct {
	fingerprint string
	entries     []indexEntry
}

type indexEntry struct {
	vector []float32
	chunk  Chunk
}

func newIndex(fingerprint string) *Index {
	return &Index{fingerprint: fingerprint}
}

func (ix *Index) add(vector []float32, chunk Chunk) {
	ix.entries = append(ix.entries, indexEntry{vector: vector, chunk: chunk})
}

// Len reports the number of indexed chunks.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Fingerprint identifies the source set and chunking the index was
// built from.
func (ix *Index) Fingerprint() string {
	return ix.fingerprint
}

// TopK returns the k nearest chunks by cosine distance, ascending, with
// ties broken by insertion order. An empty index yields an empty result.
func (ix *Index) TopK(query []float32, k int) []Chunk {
	if k < 1 {
		k = 1
	}
	if len(ix.entries) == 0 {
		return nil
	}

	type scored struct {
		distance float32
		order    int
	}

	scores := make([]scored, len(ix.entries))
	for i, e := range ix.entries {
		scores[i] = scored{distance: 1 - dot(query, e.vector), order: i}
	}

	sort.SliceStable(scores, func(a, b int) bool {
		return scores[a].distance < scores[b].distance
	})

	if k > len(scores) {
		k = len(scores)
	}

	out := make([]Chunk, 0, k)
	for _, s := range scores[:k] {
		out = append(out, ix.entries[s.order].chunk)
	}
	return out
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
