package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/teamindigo/ragline/internal/pipeline"
)

// boundaryWindow is the fraction of the chunk tail searched for a natural
// break before falling back to a hard cut.
const boundaryWindow = 4

// Chunker splits normalized text into overlapping chunks. Splitting is
// deterministic: identical input always yields the same ordered chunks and
// fingerprints.
type Chunker struct {
	size    int
	overlap int
	hasher  pipeline.Hasher
}

// NewChunker builds a Chunker with target size and overlap in characters.
// Overlap must be smaller than size.
func NewChunker(size, overlap int, hasher pipeline.Hasher) *Chunker {
	if size <= 0 {
		size = 512
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 4
	}
	return &Chunker{size: size, overlap: overlap, hasher: hasher}
}

// Split cuts text into chunks of at most the target size, each starting
// size-overlap after its predecessor, preferring paragraph and sentence
// breaks over hard truncation when one falls near the boundary.
func (c *Chunker) Split(sourceURL, text string) []pipeline.Chunk {
	if text == "" {
		return nil
	}

	// Sizes, overlap and spans are in characters, so multi-byte runes are
	// never cut mid-sequence.
	runes := []rune(text)

	var chunks []pipeline.Chunk
	start := 0
	seq := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = c.adjustBoundary(runes, start, end)
		}

		body := string(runes[start:end])
		chunks = append(chunks, pipeline.Chunk{
			ContentHash:   c.hasher.Hash([]byte(body)),
			SourceURL:     sourceURL,
			SequenceIndex: seq,
			Text:          body,
			SpanStart:     start,
			SpanEnd:       end,
		})
		seq++

		if end == len(runes) {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return chunks
}

// adjustBoundary pulls the cut back to the nearest paragraph or sentence
// break inside the tail window, when one exists. Offsets are rune indexes;
// the break marks are ASCII, so byte positions inside the window convert to
// rune offsets by counting the runes that precede them.
func (c *Chunker) adjustBoundary(runes []rune, start, end int) int {
	windowStart := end - c.size/boundaryWindow
	if windowStart <= start {
		return end
	}
	window := string(runes[windowStart:end])

	if i := strings.LastIndex(window, "\n\n"); i >= 0 {
		return windowStart + utf8.RuneCountInString(window[:i]) + 2
	}
	for _, mark := range []string{". ", ".\n", "! ", "? "} {
		if i := strings.LastIndex(window, mark); i >= 0 {
			return windowStart + utf8.RuneCountInString(window[:i+len(mark)])
		}
	}
	return end
}
