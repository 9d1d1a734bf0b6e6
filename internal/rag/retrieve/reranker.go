package retrieve

import (
	"context"
	"fmt"
	"math"

	"mbacore/internal/config"
	"mbacore/internal/rag/embedder"
	"mbacore/internal/rerank"
)

// Reranker scores documents against query and returns results ordered by
// descending relevance, each paired with its original index into documents.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]rerank.Result, error)
}

// crossEncoderReranker wraps the HTTP cross-encoder rerank call used by C6
// (RAGQueryEngine) against a remote rerank model.
type crossEncoderReranker struct {
	cfg config.RerankerConfig
}

// NewCrossEncoderReranker builds a Reranker backed by a remote cross-encoder
// rerank endpoint.
func NewCrossEncoderReranker(cfg config.RerankerConfig) Reranker {
	return &crossEncoderReranker{cfg: cfg}
}

func (r *crossEncoderReranker) Rerank(ctx context.Context, query string, documents []string) ([]rerank.Result, error) {
	return rerank.Rerank(ctx, r.cfg, query, documents)
}

// embeddingSimilarityReranker reranks by cosine similarity between the query
// embedding and each document's embedding, computed with the same local
// Embedder used for indexing. Used by C7 (LocalDocHandler), which has no
// cross-encoder model available locally.
type embeddingSimilarityReranker struct {
	embed embedder.Embedder
}

// NewEmbeddingSimilarityReranker builds a Reranker that re-embeds candidates
// locally and scores them by cosine similarity against the query embedding.
func NewEmbeddingSimilarityReranker(embed embedder.Embedder) Reranker {
	return &embeddingSimilarityReranker{embed: embed}
}

func (r *embeddingSimilarityReranker) Rerank(ctx context.Context, query string, documents []string) ([]rerank.Result, error) {
	if len(documents) == 0 {
		return nil, fmt.Errorf("no documents to rerank")
	}
	texts := append([]string{query}, documents...)
	vectors, err := r.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed rerank candidates: %w", err)
	}
	queryVec := vectors[0]
	out := make([]rerank.Result, len(documents))
	for i, docVec := range vectors[1:] {
		out[i] = rerank.Result{Index: i, Score: cosineSimilarity(queryVec, docVec)}
	}
	sortResultsByScoreDesc(out)
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortResultsByScoreDesc(results []rerank.Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
