package databases

import (
	"context"
	"fmt"

	"mbacore/internal/config"
)

// NewManager wires the relational and vector adapters from configuration.
// The relational adapter always backs onto Postgres (the transposed wide
// tables it reads live nowhere else); the vector store always backs onto
// Qdrant (see qdrant_vector.go's dimension-mismatch fail-fast check).
func NewManager(ctx context.Context, cfg config.Config) (Manager, error) {
	rel, err := NewRelationalAdapter(ctx, cfg.Database.DSN, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return Manager{}, fmt.Errorf("connect relational store: %w", err)
	}

	vec, err := NewQdrantVector(cfg.VectorStore.DSN, cfg.VectorStore.Collection, cfg.VectorStore.Dimension, cfg.VectorStore.Metric)
	if err != nil {
		rel.Close()
		return Manager{}, fmt.Errorf("connect vector store: %w", err)
	}

	return Manager{Relational: rel, Vector: vec}, nil
}
