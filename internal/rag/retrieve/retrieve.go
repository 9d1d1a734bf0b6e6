// Package retrieve implements the grounded RAG query engine (C6): embed the
// question, retrieve and optionally rerank candidates, synthesize a grounded
// answer, and report sources in final order. It never fabricates an answer
// when the generation step fails.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"mbacore/internal/llm"
	"mbacore/internal/observability"
	"mbacore/internal/persistence/databases"
	"mbacore/internal/rag/embedder"
)

const (
	sourceContentCap = 500
	groundedPreamble = "You are a medical benefits assistant. Answer the question using only the " +
		"information in the sources below. If the sources do not contain the answer, say so plainly " +
		"instead of guessing."
)

// VectorStoreFactory opens the VectorStore bound to indexName.
type VectorStoreFactory func(ctx context.Context, indexName string) (databases.VectorStore, error)

// Source is one retrieved passage backing an answer.
type Source struct {
	SourceID int            `json:"source_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RAGResult is Engine.Query's tagged-union result.
type RAGResult struct {
	Success            bool     `json:"success"`
	Question           string   `json:"question"`
	Answer             string   `json:"answer,omitempty"`
	Sources            []Source `json:"sources,omitempty"`
	RetrievedDocsCount int      `json:"retrieved_docs_count"`
	Error              string   `json:"error,omitempty"`
}

// Engine is the RAGQueryEngine (C6). The same Engine implementation backs
// both the remote index (C6 proper) and the local embedded index
// (LocalDocHandler, C7), parameterized by which Embedder/Reranker are wired
// in: a remote HTTP embedder and cross-encoder reranker for C6, a local
// deterministic/embedding-similarity pair for C7.
type Engine struct {
	embed    embedder.Embedder
	reranker Reranker
	vecOpen  VectorStoreFactory
	gen      llm.Provider
	genModel string
}

func NewEngine(embed embedder.Embedder, reranker Reranker, vecOpen VectorStoreFactory, gen llm.Provider, genModel string) *Engine {
	return &Engine{embed: embed, reranker: reranker, vecOpen: vecOpen, gen: gen, genModel: genModel}
}

const maxCandidateCap = 50

// Query embeds question, retrieves up to min(2k, cap) candidates from
// indexName, optionally reranks them down to k, synthesizes a grounded
// answer, and reports the final-order sources. Any transport failure short
// of completing retrieval is surfaced as a Go error; failures in the
// generation step alone are captured in the returned result so retrieved
// sources are never discarded.
func (e *Engine) Query(ctx context.Context, question, indexName string, k int, useReranker bool) (RAGResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return RAGResult{}, fmt.Errorf("question required")
	}
	if k <= 0 {
		k = 5
	}

	vectors, err := e.embed.EmbedBatch(ctx, []string{question})
	if err != nil {
		return RAGResult{}, fmt.Errorf("embed question: %w", err)
	}

	vec, err := e.vecOpen(ctx, indexName)
	if err != nil {
		return RAGResult{}, fmt.Errorf("open vector collection %q: %w", indexName, err)
	}

	candidateCount := 2 * k
	if candidateCount > maxCandidateCap {
		candidateCount = maxCandidateCap
	}
	hits, err := vec.SimilaritySearch(ctx, vectors[0], candidateCount, nil)
	if err != nil {
		return RAGResult{}, fmt.Errorf("vector search: %w", err)
	}

	ordered := hits
	if useReranker && len(hits) > 0 {
		ordered, err = e.applyRerank(ctx, question, hits)
		if err != nil {
			observability.L(ctx).Warn().Err(err).Msg("rag_rerank_failed_falling_back_to_retrieval_order")
			ordered = hits
		}
	}
	if len(ordered) > k {
		ordered = ordered[:k]
	}

	sources := composeSources(ordered)

	answer, err := e.synthesize(ctx, question, sources)
	if err != nil {
		return RAGResult{Success: false, Question: question, Error: err.Error(), Sources: sources, RetrievedDocsCount: len(sources)}, nil
	}
	return RAGResult{Success: true, Question: question, Answer: answer, Sources: sources, RetrievedDocsCount: len(sources)}, nil
}

func (e *Engine) applyRerank(ctx context.Context, question string, hits []databases.VectorResult) ([]databases.VectorResult, error) {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = contentOf(h)
	}
	results, err := e.reranker.Rerank(ctx, question, texts)
	if err != nil {
		return nil, err
	}
	out := make([]databases.VectorResult, 0, len(results))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(hits) {
			continue
		}
		out = append(out, hits[r.Index])
	}
	return out, nil
}

func composeSources(hits []databases.VectorResult) []Source {
	sources := make([]Source, len(hits))
	for i, h := range hits {
		sources[i] = Source{
			SourceID: i + 1,
			Content:  truncate(contentOf(h), sourceContentCap),
			Metadata: h.Metadata,
		}
	}
	return sources
}

func contentOf(h databases.VectorResult) string {
	if s, ok := h.Metadata["content"].(string); ok {
		return s
	}
	return ""
}

func truncate(s string, cap int) string {
	r := []rune(s)
	if len(r) <= cap {
		return s
	}
	return string(r[:cap])
}

func (e *Engine) synthesize(ctx context.Context, question string, sources []Source) (string, error) {
	var sb strings.Builder
	for _, s := range sources {
		fmt.Fprintf(&sb, "[Source %d]\n%s\n\n", s.SourceID, s.Content)
	}
	msgs := []llm.Message{
		{Role: "system", Content: groundedPreamble},
		{Role: "user", Content: sb.String() + "\nQuestion: " + question},
	}
	msg, err := e.gen.Chat(ctx, msgs, nil, e.genModel)
	if err != nil {
		return "", fmt.Errorf("generate answer: %w", err)
	}
	return msg.Content, nil
}
