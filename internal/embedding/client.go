package embedding

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

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedText calls the configured embedding endpoint and returns one embedding
// per input string. Caller should provide cfg loaded from config.Load().
// Transient failures (network errors, 429/5xx) are retried with bounded
// exponential backoff; a permanent failure (4xx, malformed response) returns
// immediately.
func EmbedText(ctx context.Context, cfg config.EmbeddingConfig, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no inputs")
	}
	capped := make([]string, len(inputs))
	for i, in := range inputs {
		capped[i] = truncateToCap(in, cfg.CharCap)
	}
	reqBody, _ := json.Marshal(embedReq{Model: cfg.Model, Input: capped})

	var out [][]float32
	err := retry.Do(ctx, retry.DefaultPolicy, isRetryable, func(ctx context.Context) error {
		result, err := doEmbedRequest(ctx, cfg, reqBody, len(inputs))
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

func doEmbedRequest(ctx context.Context, cfg config.EmbeddingConfig, reqBody []byte, wantCount int) ([][]float32, error) {
	cctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, cfg.Host, bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	if cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+cfg.APIKey)
	} else if cfg.APIHeader != "" {
		req.Header.Set(cfg.APIHeader, cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &mbaerrors.HTTPStatusError{Status: resp.StatusCode, Body: string(b)}
	}

	// Read the response body first so we can provide better error messages
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var er embedResp
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response (input count: %d, response: %s): %w",
			wantCount, string(bodyBytes[:min(200, len(bodyBytes))]), err)
	}
	if len(er.Data) != wantCount {
		// a partial response is discarded and reported as an error
		return nil, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Data), wantCount)
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		out[i] = er.Data[i].Embedding
	}
	return out, nil
}

// isRetryable classifies a connection-level failure or a 429/5xx response as
// worth retrying; anything else (4xx, malformed body) is permanent.
func isRetryable(err error) bool {
	return mbaerrors.IsNetworkError(err) || mbaerrors.IsTransient(err)
}

// CheckReachability verifies that the embedding endpoint is reachable and
// responding correctly by sending a small test request.
func CheckReachability(ctx context.Context, cfg config.EmbeddingConfig) error {
	_, err := EmbedText(ctx, cfg, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// truncateToCap trims s to at most cap runes. A non-positive cap disables
// truncation, matching the teacher's embedding client which performed none.
func truncateToCap(s string, cap int) string {
	if cap <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= cap {
		return s
	}
	return string(r[:cap])
}
