package chunker

import (
	"strings"
)

const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 200
)

// Chunker splits raw extracted text into overlapping fixed-size passages.
// Splits prefer natural boundaries (paragraph, then sentence, then word)
// within a backward tolerance window; when no boundary is found it falls
// back to a hard character cut. Identical input and parameters always
// produce the identical chunk sequence.
type Chunker struct {
	chunkSize int
	overlap   int
}

func New(chunkSize, overlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// Split breaks text into chunks of at most chunkSize characters where
// consecutive chunks share overlap characters of context. Empty or
// whitespace-only input yields no chunks.
func (c *Chunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	var chunks []string

	start := 0
	for start < len(runes) {
		end := start + c.chunkSize
		if end >= len(runes) {
			chunk := string(runes[start:])
			if strings.TrimSpace(chunk) != "" {
				chunks = append(chunks, chunk)
			}
			break
		}

		cut := c.boundary(runes, start, end)
		chunk := string(runes[start:cut])
		if strings.TrimSpace(chunk) != "" {
			chunks = append(chunks, chunk)
		}

		next := cut - c.overlap
		if next <= start {
			// overlap would stall the walk; give up the shared context
			// for this pair rather than loop forever
			next = cut
		}
		start = next
	}

	return chunks
}

// boundary finds the cut position for a chunk starting at start with a
// hard limit of end. It scans backwards through a tolerance window for a
// paragraph break, then a sentence end, then any whitespace.
func (c *Chunker) boundary(runes []rune, start, end int) int {
	tolerance := c.overlap
	if tolerance == 0 || tolerance > c.chunkSize/2 {
		tolerance = c.chunkSize / 5
	}
	floor := end - tolerance
	if floor < start+1 {
		floor = start + 1
	}

	// paragraph break: cut after the blank line
	for i := end - 1; i > floor; i-- {
		if runes[i] == '\n' && runes[i-1] == '\n' {
			return i + 1
		}
	}
	// sentence end: punctuation followed by whitespace
	for i := end - 1; i > floor; i-- {
		if isSentenceEnd(runes[i-1]) && isSpace(runes[i]) {
			return i + 1
		}
	}
	// any whitespace
	for i := end - 1; i > floor; i-- {
		if isSpace(runes[i]) {
			return i + 1
		}
	}
	// hard cut
	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}
