package schema

// Event kinds emitted on an answer stream, in order: zero or more
// EventToken, then EventSources exactly once, then a single terminal
// EventDone or EventError.
const (
	EventToken   = "token"
	EventSources = "sources"
	EventDone    = "done"
	EventError   = "error"
)

// Event is one element of an answer stream. Type discriminates which of
// the payload fields is meaningful; the zero values of the others are
// omitted on the wire.
type Event struct {
	Type      string            `json:"type"`
	Content   string            `json:"content,omitempty"`    // token: partial answer text
	Sources   []SourceReference `json:"sources,omitempty"`    // sources: resolved references
	MessageID string            `json:"message_id,omitempty"` // done: persisted message identifier
	SessionID string            `json:"session_id,omitempty"` // done: owning session
	Error     string            `json:"error,omitempty"`      // error: failure reason
}
