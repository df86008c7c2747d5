// Package chunk splits extracted text into overlapping windows for embedding.
package chunk

import "strings"

// Default chunking parameters.
const (
	DefaultMaxLen  = 2400
	DefaultOverlap = 200
)

// Chunk is one window of a document's text.
type Chunk struct {
	Index int
	Text  string
}

// Chunker produces overlapping fixed-size windows.
type Chunker struct {
	maxLen  int
	overlap int
}

// NewChunker creates a chunker. Overlap is clamped below maxLen so the step
// size stays positive.
func NewChunker(maxLen, overlap int) *Chunker {
	if maxLen <= 0 {
		maxLen = DefaultMaxLen
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxLen {
		overlap = maxLen / 4
	}
	return &Chunker{maxLen: maxLen, overlap: overlap}
}

// Split cuts text into chunks of at most maxLen runes, each overlapping the
// previous by overlap runes. Whitespace-only windows are dropped. The final
// chunk always reaches the end of the input, and any input containing a
// non-whitespace rune yields at least one chunk.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := c.maxLen - c.overlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.maxLen
		if end > len(runes) {
			end = len(runes)
		}
		window := strings.TrimSpace(string(runes[start:end]))
		if window != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Text: window})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
