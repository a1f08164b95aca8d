package pipeline

import (
	"fmt"
	"strings"

	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
)

// systemInstruction is the fixed compliance-assistant persona. The
// passage labels it refers to are the [n] markers produced below.
const systemInstruction = `You are a compliance expert assistant. Your role is to provide accurate, helpful answers based on the compliance documents provided.

Guidelines:
- Only use information from the provided passages and cite them by their [n] label
- Be specific and cite relevant regulations or requirements when possible
- If the passages do not contain enough information, clearly state this
- Provide actionable guidance when possible
- Use professional, clear language appropriate for compliance officers
- If there are conflicting requirements, highlight them
- Always prioritize accuracy over completeness`

// TokenCounter measures text against the model's context budget.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the cl100k_base encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter initializes the cl100k_base tokenizer.
func NewTiktokenCounter() (*TiktokenCounter, error) {
	encoding, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("failed to load cl100k_base encoding: %w", err)
	}
	return &TiktokenCounter{encoding: encoding}, nil
}

// Count returns the number of tokens in text.
func (c *TiktokenCounter) Count(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}

// PromptBuilder assembles a bounded-size prompt from the system
// instruction, recent conversation history, and retrieved passages.
// When the budget is exceeded, passages are dropped lowest-score-first
// before any history is dropped: grounding quality matters more than
// long-range conversational memory. That ordering is policy, not
// accident, and is covered by tests.
type PromptBuilder struct {
	counter         TokenCounter
	contextBudget   int
	historyBudget   int
	maxHistoryTurns int
	log             *logger.Logger
}

// NewPromptBuilder creates a PromptBuilder. contextBudget bounds the
// whole prompt; historyBudget sub-bounds the conversation history.
func NewPromptBuilder(counter TokenCounter, contextBudget, historyBudget, maxHistoryTurns int, log *logger.Logger) *PromptBuilder {
	return &PromptBuilder{
		counter:         counter,
		contextBudget:   contextBudget,
		historyBudget:   historyBudget,
		maxHistoryTurns: maxHistoryTurns,
		log:             log,
	}
}

// Build assembles the prompt. The returned Prompt records which
// candidates made it in, in label order; that list is what the sources
// event is later derived from.
func (b *PromptBuilder) Build(question string, candidates []schema.RetrievedCandidate, history []schema.ChatTurn) schema.Prompt {
	history = b.trimHistory(history)
	passages := append([]schema.RetrievedCandidate(nil), candidates...)

	for {
		text := b.render(question, passages, history)
		if b.counter.Count(text) <= b.contextBudget {
			return schema.Prompt{Text: text, Included: passages}
		}

		// Over budget: shed the weakest passage first, then the oldest
		// history turn, then give up and ship the bare question.
		if len(passages) > 0 {
			passages = dropLowestScore(passages)
			continue
		}
		if len(history) > 0 {
			history = history[1:]
			continue
		}
		b.log.Warn("Prompt exceeds context budget with no passages or history left to drop")
		return schema.Prompt{Text: text}
	}
}

// trimHistory keeps the most recent turns, bounded first by turn count,
// then by the history token budget, dropping oldest first.
func (b *PromptBuilder) trimHistory(history []schema.ChatTurn) []schema.ChatTurn {
	if len(history) > b.maxHistoryTurns {
		history = history[len(history)-b.maxHistoryTurns:]
	}
	for len(history) > 0 {
		total := 0
		for _, turn := range history {
			total += b.counter.Count(turn.Content)
		}
		if total <= b.historyBudget {
			break
		}
		history = history[1:]
	}
	return history
}

// dropLowestScore removes the lowest scoring passage, preserving the
// order of the rest. Among equal scores the later passage goes first.
func dropLowestScore(passages []schema.RetrievedCandidate) []schema.RetrievedCandidate {
	lowest := 0
	for i, p := range passages {
		if p.Score <= passages[lowest].Score {
			lowest = i
		}
	}
	return append(passages[:lowest:lowest], passages[lowest+1:]...)
}

func (b *PromptBuilder) render(question string, passages []schema.RetrievedCandidate, history []schema.ChatTurn) string {
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\n")

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, turn := range history {
			switch turn.Role {
			case "assistant":
				sb.WriteString("Assistant: ")
			default:
				sb.WriteString("User: ")
			}
			sb.WriteString(turn.Content)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	if len(passages) > 0 {
		sb.WriteString("Context from compliance documents:\n")
		for i, p := range passages {
			sb.WriteString(fmt.Sprintf("[%d] (%s)\n%s\n\n", i+1, p.Filename, p.Snippet))
		}
	}

	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\n\nPlease provide a comprehensive answer based on the passages above, citing them by their [n] label.")
	return sb.String()
}
