package schema

// Chunk is a bounded, overlapping slice of a document's text. It is the
// unit of embedding, indexing, and retrieval.
type Chunk struct {
	// ID is the unique identifier of this chunk.
	ID string

	// DocumentID identifies the document the chunk was cut from.
	DocumentID string

	// Index is the zero-based sequence position within the document.
	Index int

	// Start and End are rune offsets into the normalized source text,
	// half-open [Start, End). Adjacent chunks overlap by the configured
	// amount: chunk N+1 starts Overlap runes before chunk N ends.
	Start int
	End   int

	// Text is the chunk content, exactly the source runes [Start, End).
	Text string

	// Page is the page number the chunk starts on, when known (0 = unknown).
	Page int

	// Embedding is the vector representation of Text. Populated by the
	// indexing pipeline; empty until then.
	Embedding []float32
}

// DocumentMeta is the structured metadata submitted alongside a
// document's normalized text.
type DocumentMeta struct {
	Filename  string `json:"filename"`
	Title     string `json:"title"`
	PageCount int    `json:"page_count"`
	Language  string `json:"language"`
}

// RetrievedCandidate is a chunk reference with its similarity score and
// rank for one query. Candidates are ephemeral: produced per query,
// never persisted.
type RetrievedCandidate struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
	Filename   string
	Snippet    string
	Score      float64
	Rank       int
}

// SourceReference is the citable provenance attached to an assistant
// message: which chunk of which document grounded the answer.
type SourceReference struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"document_id"`
	Filename       string  `json:"filename"`
	RelevanceScore float64 `json:"relevance_score"`
	Snippet        string  `json:"snippet"`
}

// ChatTurn is one message of the conversation history handed to the
// prompt builder.
type ChatTurn struct {
	Role    string // "user" or "assistant"
	Content string
}

// Prompt is the assembled model input plus the candidates that actually
// made it in. The included candidates, in label order, are the source of
// truth for the sources event; they are never re-queried.
type Prompt struct {
	Text     string
	Included []RetrievedCandidate
}
