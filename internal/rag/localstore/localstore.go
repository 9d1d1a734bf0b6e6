// Package localstore implements the on-disk embedded vector store used by
// LocalDocHandler (C7): a sqlite table of (id, vector, payload) rows with
// cosine similarity computed in Go, since sqlite carries no native vector
// index.
package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	_ "modernc.org/sqlite"

	"mbacore/internal/persistence/databases"
)

// Store is a sqlite-backed databases.VectorStore bound to a single on-disk
// database file. Unlike the Qdrant-backed VectorStore, one Store instance
// serves every collection name: all points share the single local_vectors
// table and the collection name is not stored, since local docs are scoped
// to a single embedded file rather than a remote cluster.
type Store struct {
	db        *sql.DB
	dimension int
}

// Open creates (or reuses) the sqlite file at path and ensures its schema.
func Open(ctx context.Context, path string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("localstore requires dimension > 0")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite file %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS local_vectors (
    id TEXT PRIMARY KEY,
    vector TEXT NOT NULL,
    payload TEXT NOT NULL
)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create local_vectors table: %w", err)
	}

	return &Store{db: db, dimension: dimension}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Dimension() int { return s.dimension }

func (s *Store) Upsert(ctx context.Context, id string, vector []float32, metadata map[string]any) error {
	if len(vector) != s.dimension {
		return fmt.Errorf("localstore upsert: vector has %d dims, store expects %d", len(vector), s.dimension)
	}
	vecJSON, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode vector: %w", err)
	}
	payloadJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO local_vectors (id, vector, payload) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET vector = excluded.vector, payload = excluded.payload`,
		id, string(vecJSON), string(payloadJSON))
	if err != nil {
		return fmt.Errorf("upsert local vector: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM local_vectors WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete local vector: %w", err)
	}
	return nil
}

// SimilaritySearch scores every stored vector by cosine similarity against
// vector and returns the top k. filter restricts to rows whose payload
// contains matching string values for every given key.
func (s *Store) SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]any) ([]databases.VectorResult, error) {
	if k <= 0 {
		k = 10
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, vector, payload FROM local_vectors`)
	if err != nil {
		return nil, fmt.Errorf("scan local vectors: %w", err)
	}
	defer rows.Close()

	var results []databases.VectorResult
	for rows.Next() {
		var id, vecJSON, payloadJSON string
		if err := rows.Scan(&id, &vecJSON, &payloadJSON); err != nil {
			return nil, fmt.Errorf("scan local vector row: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(vecJSON), &vec); err != nil {
			return nil, fmt.Errorf("decode stored vector %s: %w", id, err)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("decode stored payload %s: %w", id, err)
		}
		if !matchesFilter(payload, filter) {
			continue
		}
		results = append(results, databases.VectorResult{
			ID:       id,
			Score:    cosineSimilarity(vector, vec),
			Metadata: payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate local vectors: %w", err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func matchesFilter(payload map[string]any, filter map[string]any) bool {
	for k, v := range filter {
		sv, ok := v.(string)
		if !ok {
			continue
		}
		pv, ok := payload[k].(string)
		if !ok || pv != sv {
			return false
		}
	}
	return true
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
