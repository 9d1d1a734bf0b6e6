package databases

import "context"

// VectorResult represents a single nearest-neighbor hit.
type VectorResult struct {
	ID       string
	Score    float64 // higher is closer
	Metadata map[string]any
}

// VectorStore is the narrow interface C5/C6/C7 use to upsert chunk
// embeddings, run similarity search, and read the collection's dimension.
// It has no method to create or reshape a collection; the Qdrant
// implementation ensures the collection's shape when it is opened. One
// VectorStore instance is bound to a single collection.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]VectorResult, error)
	Dimension() int
}

// Manager holds the concrete database backends resolved from configuration.
type Manager struct {
	Relational RelationalAdapter
	Vector     VectorStore
}

// Close releases any underlying connection pools.
func (m Manager) Close() {
	if m.Relational != nil {
		m.Relational.Close()
	}
	if c, ok := m.Vector.(interface{ Close() error }); ok {
		_ = c.Close()
	}
}
