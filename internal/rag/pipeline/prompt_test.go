package pipeline

import (
	"strings"
	"testing"

	"ComplianceRAG/internal/rag/schema"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// wordCounter counts whitespace-separated words, standing in for the
// tokenizer so tests stay hermetic.
type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(strings.Fields(text))
}

func TestBuildLabelsPassagesInOrder(t *testing.T) {
	b := NewPromptBuilder(wordCounter{}, 10000, 2000, 10, testLog())
	candidates := []schema.RetrievedCandidate{
		{ChunkID: "a", Filename: "gdpr.pdf", Snippet: "Personal data must be processed lawfully."},
		{ChunkID: "b", Filename: "sox.pdf", Snippet: "Internal controls require annual assessment."},
	}

	prompt := b.Build("What does GDPR require?", candidates, nil)

	require.Len(t, prompt.Included, 2)
	idx1 := strings.Index(prompt.Text, "[1] (gdpr.pdf)")
	idx2 := strings.Index(prompt.Text, "[2] (sox.pdf)")
	require.Greater(t, idx1, -1)
	require.Greater(t, idx2, -1)
	assert.Less(t, idx1, idx2)
	assert.Contains(t, prompt.Text, "Question: What does GDPR require?")
	assert.Contains(t, prompt.Text, "compliance expert assistant")
}

func TestBuildDropsLowestScoringPassageFirst(t *testing.T) {
	long := strings.Repeat("regulation ", 120)
	candidates := []schema.RetrievedCandidate{
		{ChunkID: "keep", Filename: "a.pdf", Snippet: long, Score: 0.9},
		{ChunkID: "drop", Filename: "b.pdf", Snippet: long, Score: 0.4},
	}
	history := []schema.ChatTurn{{Role: "user", Content: "earlier question"}}

	// Budget fits the system prompt, history, and one passage but not two.
	b := NewPromptBuilder(wordCounter{}, 320, 2000, 10, testLog())
	prompt := b.Build("q", candidates, history)

	require.Len(t, prompt.Included, 1)
	assert.Equal(t, "keep", prompt.Included[0].ChunkID)
	assert.Contains(t, prompt.Text, "earlier question", "history should outlive the weakest passage")
}

func TestBuildDropsOldestHistoryAfterPassages(t *testing.T) {
	long := strings.Repeat("word ", 200)
	history := []schema.ChatTurn{
		{Role: "user", Content: "oldest " + long},
		{Role: "assistant", Content: "newest answer"},
	}

	b := NewPromptBuilder(wordCounter{}, 250, 2000, 10, testLog())
	prompt := b.Build("q", nil, history)

	assert.NotContains(t, prompt.Text, "oldest")
	assert.Contains(t, prompt.Text, "newest answer")
}

func TestTrimHistoryBoundsTurnsAndTokens(t *testing.T) {
	b := NewPromptBuilder(wordCounter{}, 10000, 5, 3, testLog())
	history := []schema.ChatTurn{
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
		{Role: "assistant", Content: "four"},
		{Role: "user", Content: "five"},
	}

	got := b.trimHistory(history)

	require.Len(t, got, 3)
	assert.Equal(t, "three", got[0].Content)
	assert.Equal(t, "five", got[2].Content)

	b = NewPromptBuilder(wordCounter{}, 10000, 1, 10, testLog())
	got = b.trimHistory(history)
	require.Len(t, got, 1)
	assert.Equal(t, "five", got[0].Content)
}

func TestBuildEmptyCandidatesStillAsksQuestion(t *testing.T) {
	b := NewPromptBuilder(wordCounter{}, 10000, 2000, 10, testLog())
	prompt := b.Build("Is encryption mandatory?", nil, nil)

	assert.Empty(t, prompt.Included)
	assert.NotContains(t, prompt.Text, "Context from compliance documents")
	assert.Contains(t, prompt.Text, "Question: Is encryption mandatory?")
}
