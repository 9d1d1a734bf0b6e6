package embedding

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

func writeEmbedResp(w http.ResponseWriter, dims ...float32) {
	resp := map[string]interface{}{"data": []map[string]interface{}{{"embedding": dims}}}
	b, _ := json.Marshal(resp)
	w.Write(b)
}

func TestEmbedTextBearerAuthorization(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeEmbedResp(w, 0.1)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{Host: ts.URL, Model: "m", APIHeader: "Authorization", APIKey: "secret"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
}

func TestEmbedTextCustomHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc", r.Header.Get("x-api-key"))
		writeEmbedResp(w, 0.2)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{Host: ts.URL, Model: "m", APIHeader: "x-api-key", APIKey: "abc"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
}

func TestEmbedTextTruncatesToCharCap(t *testing.T) {
	var seenLen int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		seenLen = len(req.Input[0])
		writeEmbedResp(w, 0.1)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{Host: ts.URL, Model: "m", CharCap: 5}
	_, err := EmbedText(context.Background(), cfg, []string{"abcdefghij"})
	require.NoError(t, err)
	assert.Equal(t, 5, seenLen)
}

func TestEmbedTextCountMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeEmbedResp(w, 0.1)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{Host: ts.URL, Model: "m"}
	_, err := EmbedText(context.Background(), cfg, []string{"a", "b"})
	assert.Error(t, err)
}

func TestEmbedTextRetriesOnServerErrorThenSucceeds(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeEmbedResp(w, 0.3)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{Host: ts.URL, Model: "m"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestEmbedTextDoesNotRetryOnClientError(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	cfg := config.EmbeddingConfig{Host: ts.URL, Model: "m"}
	_, err := EmbedText(context.Background(), cfg, []string{"x"})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
