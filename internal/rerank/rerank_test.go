package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mbacore/internal/config"
)

func TestRerankOrdersByDescendingScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_ = json.NewEncoder(w).Encode(rerankResp{Results: []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		}{
			{Index: 0, RelevanceScore: 0.2},
			{Index: 1, RelevanceScore: 0.9},
			{Index: 2, RelevanceScore: 0.5},
		}})
	}))
	defer srv.Close()

	results, err := Rerank(context.Background(), config.RerankerConfig{Host: srv.URL, Model: "rerank-1"}, "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []Result{{Index: 1, Score: 0.9}, {Index: 2, Score: 0.5}, {Index: 0, Score: 0.2}}, results)
}

func TestRerankRejectsEmptyDocuments(t *testing.T) {
	_, err := Rerank(context.Background(), config.RerankerConfig{Host: "http://unused"}, "q", nil)
	assert.Error(t, err)
}

func TestRerankRetriesOnServerErrorThenSucceeds(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(rerankResp{Results: []struct {
			Index          int     `json:"index"`
			RelevanceScore float64 `json:"relevance_score"`
		}{{Index: 0, RelevanceScore: 0.4}}})
	}))
	defer srv.Close()

	results, err := Rerank(context.Background(), config.RerankerConfig{Host: srv.URL}, "q", []string{"a"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, calls)
}

func TestRerankDoesNotRetryOnClientError(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := Rerank(context.Background(), config.RerankerConfig{Host: srv.URL}, "q", []string{"a"})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
