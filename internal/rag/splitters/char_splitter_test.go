package splitters

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCharSplitter_ConfigRejection(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		overlap   int
		wantError bool
	}{
		{"valid", 1000, 200, false},
		{"zero overlap", 100, 0, false},
		{"zero size", 0, 0, true},
		{"negative overlap", 100, -1, true},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCharSplitter(tt.size, tt.overlap)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSplit_OffsetArithmetic(t *testing.T) {
	// Boundary-free text so the hard cuts stand: 2500 characters with
	// chunk size 1000 and overlap 200 must produce exactly these spans.
	s, err := NewCharSplitter(1000, 200)
	require.NoError(t, err)

	text := strings.Repeat("a", 2500)
	chunks, err := s.Split(context.Background(), "doc-1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 1000, chunks[0].End)
	assert.Equal(t, 800, chunks[1].Start)
	assert.Equal(t, 1800, chunks[1].End)
	assert.Equal(t, 1600, chunks[2].Start)
	assert.Equal(t, 2500, chunks[2].End)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.Equal(t, "doc-1", c.DocumentID)
		assert.Equal(t, c.End-c.Start, len([]rune(c.Text)))
	}
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	s, err := NewCharSplitter(1000, 200)
	require.NoError(t, err)

	chunks, err := s.Split(context.Background(), "doc-1", "a short compliance note")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len("a short compliance note"), chunks[0].End)
}

func TestSplit_EmptyText(t *testing.T) {
	s, err := NewCharSplitter(1000, 200)
	require.NoError(t, err)

	chunks, err := s.Split(context.Background(), "doc-1", "   \n ")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_DeterministicBoundaries(t *testing.T) {
	s, err := NewCharSplitter(300, 60)
	require.NoError(t, err)

	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("The data controller shall maintain a record of processing activities. ")
		if i%7 == 0 {
			sb.WriteString("\n\n")
		}
	}
	text := sb.String()

	first, err := s.Split(context.Background(), "doc-1", text)
	require.NoError(t, err)
	second, err := s.Split(context.Background(), "doc-1", text)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Start, second[i].Start)
		assert.Equal(t, first[i].End, second[i].End)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}

func TestSplit_CoverageAndOverlap(t *testing.T) {
	s, err := NewCharSplitter(250, 50)
	require.NoError(t, err)

	text := strings.Repeat("All vendors must complete annual security training. ", 30)
	runes := []rune(text)
	chunks, err := s.Split(context.Background(), "doc-1", text)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		// Each chunk starts exactly overlap runes before the previous
		// cut: no gaps, overlap exactly as configured.
		assert.Equal(t, chunks[i-1].End-50, chunks[i].Start)
		assert.Greater(t, chunks[i].End, chunks[i-1].End)
	}
}

func TestSplit_SnapsToSentenceBoundary(t *testing.T) {
	s, err := NewCharSplitter(100, 20)
	require.NoError(t, err)

	// A sentence end sits inside the trailing fifth of the first window,
	// so the first cut should land just after it instead of mid-word.
	text := strings.Repeat("x", 85) + ". " + strings.Repeat("y", 200)
	chunks, err := s.Split(context.Background(), "doc-1", text)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(chunks), 2)

	assert.Equal(t, 87, chunks[0].End)
	assert.True(t, strings.HasSuffix(chunks[0].Text, ". "))
	assert.Equal(t, 67, chunks[1].Start)
}

func TestSplit_PageNumbers(t *testing.T) {
	s, err := NewCharSplitter(1000, 100)
	require.NoError(t, err)

	text := strings.Repeat("a", 400) + "\f" + strings.Repeat("b", 400) + "\f" + strings.Repeat("c", 400)
	chunks, err := s.Split(context.Background(), "doc-1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].Page)
	assert.Equal(t, 2, chunks[1].Page)
}
