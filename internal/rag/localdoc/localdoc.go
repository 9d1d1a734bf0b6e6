// Package localdoc implements LocalDocHandler (C7): the same indexing and
// query contract as RAGIndexer/RAGQueryEngine (C5/C6), but sourced from
// locally produced page JSON rather than an object store, embedded and
// reranked with local models, and persisted to a local embedded vector
// store on disk. Answer synthesis may still call a remote generation
// provider.
package localdoc

import (
	"context"
	"fmt"

	"mbacore/internal/llm"
	"mbacore/internal/objectstore"
	"mbacore/internal/persistence/databases"
	"mbacore/internal/rag/embedder"
	"mbacore/internal/rag/ingest"
	"mbacore/internal/rag/localstore"
	"mbacore/internal/rag/retrieve"
)

// Handler is LocalDocHandler (C7), sharing its pipeline code with
// ingest.Indexer and retrieve.Engine through the Embedder/Reranker
// interfaces rather than duplicating C5/C6's logic.
type Handler struct {
	store   *localstore.Store
	indexer *ingest.Indexer
	engine  *retrieve.Engine
}

// Open roots a Handler at docsDir (the local page-file tree) and dbPath (the
// sqlite file backing the embedded vector store), using a local deterministic
// embedder of the given dimension and an embedding-similarity reranker. gen
// and genModel back the answer-synthesis step, which may still be remote.
func Open(ctx context.Context, docsDir, dbPath string, dimension int, gen llm.Provider, genModel string) (*Handler, error) {
	fs, err := objectstore.NewFSStore(docsDir)
	if err != nil {
		return nil, fmt.Errorf("open local docs root %q: %w", docsDir, err)
	}
	store, err := localstore.Open(ctx, dbPath, dimension)
	if err != nil {
		return nil, fmt.Errorf("open local vector store %q: %w", dbPath, err)
	}

	embed := embedder.NewDeterministic(dimension, true, 0)
	reranker := retrieve.NewEmbeddingSimilarityReranker(embed)

	// A single sqlite file holds every local collection, unlike the
	// Qdrant-backed factory which opens one client per named collection;
	// the "collection name" argument is accepted for interface parity and
	// ignored.
	vecOpen := func(context.Context, string) (databases.VectorStore, error) { return store, nil }

	return &Handler{
		store:   store,
		indexer: ingest.NewIndexer(fs, embed, vecOpen),
		engine:  retrieve.NewEngine(embed, reranker, vecOpen, gen, genModel),
	}, nil
}

func (h *Handler) Close() error { return h.store.Close() }

// Prepare indexes the local page-file tree under prefix, identical in
// contract to ingest.Indexer.Prepare except that it takes no bucket
// argument, since a local doc tree has no bucket concept.
func (h *Handler) Prepare(ctx context.Context, prefix, indexName string, chunkSize, chunkOverlap int) (ingest.PrepareResult, error) {
	return h.indexer.Prepare(ctx, "", prefix, indexName, chunkSize, chunkOverlap)
}

// Query answers question against the local index, identical in contract to
// retrieve.Engine.Query.
func (h *Handler) Query(ctx context.Context, question, indexName string, k int, useReranker bool) (retrieve.RAGResult, error) {
	return h.engine.Query(ctx, question, indexName, k, useReranker)
}
