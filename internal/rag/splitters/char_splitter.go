package splitters

import (
	"context"
	"strings"
	"unicode"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/schema"

	"github.com/google/uuid"
)

// CharSplitter implements the Splitter interface by sliding a fixed-size
// character window over the text, preferring to cut on paragraph or
// sentence boundaries. All sizes and offsets are rune counts; the unit
// is characters throughout, never mixed with tokens.
type CharSplitter struct {
	chunkSize int
	overlap   int
}

// NewCharSplitter creates a CharSplitter. overlap >= chunkSize is a
// configuration error and is rejected here, at startup, not at call time.
func NewCharSplitter(chunkSize, overlap int) (*CharSplitter, error) {
	if chunkSize <= 0 {
		return nil, &splitterConfigError{reason: "chunk size must be positive"}
	}
	if overlap < 0 {
		return nil, &splitterConfigError{reason: "overlap must not be negative"}
	}
	if overlap >= chunkSize {
		return nil, &splitterConfigError{reason: "overlap must be smaller than chunk size"}
	}
	return &CharSplitter{chunkSize: chunkSize, overlap: overlap}, nil
}

type splitterConfigError struct {
	reason string
}

func (e *splitterConfigError) Error() string {
	return "invalid splitter configuration: " + e.reason
}

// Split cuts the text into overlapping chunks. Every chunk ends at
// start+chunkSize, snapped back to the nearest paragraph or sentence
// boundary inside the trailing fifth of the window; the next chunk
// starts overlap runes before that cut. The same text and configuration
// always yield the same boundaries.
func (s *CharSplitter) Split(ctx context.Context, documentID, text string) ([]schema.Chunk, error) {
	runes := []rune(text)
	if len(strings.TrimSpace(text)) == 0 {
		return nil, nil
	}

	paginated := strings.ContainsRune(text, '\f')

	var chunks []schema.Chunk
	start := 0
	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := start + s.chunkSize
		if end >= len(runes) {
			end = len(runes)
		} else if cut := s.snapToBoundary(runes, start, end); cut > start+s.overlap {
			// Snapping must leave the next start strictly after the
			// current one, otherwise the window would stall.
			end = cut
		}

		chunk := schema.Chunk{
			ID:         uuid.New().String(),
			DocumentID: documentID,
			Index:      idx,
			Start:      start,
			End:        end,
			Text:       string(runes[start:end]),
		}
		if paginated {
			chunk.Page = pageOf(runes, start)
		}
		chunks = append(chunks, chunk)

		if end == len(runes) {
			break
		}
		start = end - s.overlap
	}

	return chunks, nil
}

// snapToBoundary searches backwards from the hard cut for a semantic
// boundary, looking no further than a fifth of the window. Paragraph
// breaks win over sentence ends. Returns the hard cut when the window
// has no boundary.
func (s *CharSplitter) snapToBoundary(runes []rune, start, hardCut int) int {
	limit := hardCut - s.chunkSize/5
	if limit < start {
		limit = start
	}

	for i := hardCut; i > limit; i-- {
		if runes[i-1] == '\n' && i >= 2 && runes[i-2] == '\n' {
			return i
		}
	}
	for i := hardCut; i > limit; i-- {
		if isSentenceEnd(runes, i-1) {
			return i
		}
	}
	return hardCut
}

// isSentenceEnd reports whether the rune at i terminates a sentence:
// whitespace immediately preceded by closing punctuation.
func isSentenceEnd(runes []rune, i int) bool {
	if !unicode.IsSpace(runes[i]) || i == 0 {
		return false
	}
	switch runes[i-1] {
	case '.', '!', '?':
		return true
	}
	return false
}

// pageOf derives the 1-based page a rune offset falls on, counting form
// feed page separators in the normalized text.
func pageOf(runes []rune, offset int) int {
	page := 1
	for i := 0; i < offset; i++ {
		if runes[i] == '\f' {
			page++
		}
	}
	return page
}

var _ interfaces.Splitter = (*CharSplitter)(nil)
