// Package rerank implements the cross-encoder reranking call used by
// RAGQueryEngine's optional second retrieval stage, following the same HTTP
// client shape as internal/embedding.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"mbacore/internal/config"
	"mbacore/internal/mbaerrors"
	"mbacore/internal/retry"
)

const defaultTimeout = 30 * time.Second

// Result pairs a candidate's original index with its relevance score.
type Result struct {
	Index int
	Score float64
}

type rerankReq struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResp struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float64 `json:"relevance_score"`
	} `json:"results"`
}

// Rerank scores each document against query and returns results sorted by
// descending relevance score. len(documents) == 0 returns an error: callers
// should skip reranking entirely rather than call with nothing to score.
// Transient failures (network errors, 429/5xx) are retried with bounded
// exponential backoff.
func Rerank(ctx context.Context, cfg config.RerankerConfig, query string, documents []string) ([]Result, error) {
	if len(documents) == 0 {
		return nil, fmt.Errorf("no documents to rerank")
	}
	reqBody, _ := json.Marshal(rerankReq{Model: cfg.Model, Query: query, Documents: documents})

	var out []Result
	err := retry.Do(ctx, retry.DefaultPolicy, isRetryable, func(ctx context.Context) error {
		result, err := doRerankRequest(ctx, cfg, reqBody)
		if err != nil {
			return err
		}
		out = result
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func doRerankRequest(ctx context.Context, cfg config.RerankerConfig, reqBody []byte) ([]Result, error) {
	cctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, cfg.Host, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	if cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &mbaerrors.HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}

	var rr rerankResp
	if err := json.Unmarshal(body, &rr); err != nil {
		return nil, fmt.Errorf("parse rerank response: %w", err)
	}
	out := make([]Result, len(rr.Results))
	for i, r := range rr.Results {
		out[i] = Result{Index: r.Index, Score: r.RelevanceScore}
	}
	sortByScoreDesc(out)
	return out, nil
}

// isRetryable classifies a connection-level failure or a 429/5xx response as
// worth retrying; anything else (4xx, malformed body) is permanent.
func isRetryable(err error) bool {
	return mbaerrors.IsNetworkError(err) || mbaerrors.IsTransient(err)
}

func sortByScoreDesc(results []Result) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
