package pipeline

import (
	"context"
	"fmt"
	"sort"

	"ComplianceRAG/internal/rag/interfaces"
	"ComplianceRAG/internal/rag/schema"
	"ComplianceRAG/pkg/logger"
)

// Retriever turns a query into a ranked, deduplicated candidate set.
// An empty result is a valid outcome, not an error: callers answer with
// no grounding rather than with low-quality matches.
type Retriever struct {
	embedder    interfaces.Embedder
	index       interfaces.VectorIndex
	topK        int
	overfetch   int
	minScore    float64
	dedupWindow int
	log         *logger.Logger
}

// NewRetriever creates a Retriever. The knobs come from the validated
// boot configuration.
func NewRetriever(
	embedder interfaces.Embedder,
	index interfaces.VectorIndex,
	topK, overfetch int,
	minScore float64,
	dedupWindow int,
	log *logger.Logger,
) *Retriever {
	return &Retriever{
		embedder:    embedder,
		index:       index,
		topK:        topK,
		overfetch:   overfetch,
		minScore:    minScore,
		dedupWindow: dedupWindow,
		log:         log,
	}
}

// Retrieve embeds the query, overfetches from the index to compensate
// for deduplication, drops candidates below the relevance threshold,
// deduplicates near-adjacent chunks of the same document, and returns
// the top k candidates with ranks assigned.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]schema.RetrievedCandidate, error) {
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	candidates, err := r.index.Search(ctx, vectors[0], r.topK*r.overfetch)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	if len(candidates) == 0 {
		r.log.Debug("Vector index returned no candidates for query")
		return nil, nil
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Score >= r.minScore {
			kept = append(kept, c)
		}
	}
	candidates = kept

	// Deterministic order: score descending, score ties prefer the
	// earlier chunk in the document.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].DocumentID != candidates[j].DocumentID {
			return candidates[i].DocumentID < candidates[j].DocumentID
		}
		return candidates[i].ChunkIndex < candidates[j].ChunkIndex
	})

	deduped := r.dedupe(candidates)
	if len(deduped) > r.topK {
		deduped = deduped[:r.topK]
	}
	for i := range deduped {
		deduped[i].Rank = i + 1
	}

	r.log.WithPayload(map[string]interface{}{
		"fetched": len(candidates),
		"kept":    len(deduped),
	}).Debug("Retrieval finished")
	return deduped, nil
}

// dedupe removes candidates whose chunk lies within the proximity
// window of an already kept chunk of the same document. The input is
// sorted by descending score, so the kept candidate of each cluster is
// its highest scoring chunk and the same paragraph is never cited twice.
func (r *Retriever) dedupe(sorted []schema.RetrievedCandidate) []schema.RetrievedCandidate {
	var kept []schema.RetrievedCandidate
	for _, c := range sorted {
		clustered := false
		for _, k := range kept {
			if k.DocumentID != c.DocumentID {
				continue
			}
			if abs(k.ChunkIndex-c.ChunkIndex) <= r.dedupWindow {
				clustered = true
				break
			}
		}
		if !clustered {
			kept = append(kept, c)
		}
	}
	return kept
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
