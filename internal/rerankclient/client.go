// Package rerankclient implements the other half of C15: a thin REST
// client to the out-of-scope cross-encoder reranker service. Grounded on
// the same request/response shape as internal/embedclient (itself adapted
// from the donor's internal/gcpclient/embedding.go), applied to spec.md
// §6's reranker contract: POST /rerank {query, documents, top_k?} ->
// [{index, score}].
package rerankclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ragbox/core-rag/internal/retry"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient}
}

type rerankRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopK      int      `json:"top_k,omitempty"`
}

// Score is one reranked document's index into the request's Documents
// slice and its cross-encoder relevance score.
type Score struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Rerank scores documents against query, returning one Score per input
// document (TopK truncation, if any, is the caller's responsibility per
// spec.md §4.6's RERANK_TOP_K policy).
func (c *Client) Rerank(ctx context.Context, query string, documents []string) ([]Score, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	return retry.Do(ctx, retry.Default, "rerankclient.Rerank", isRetryableHTTPError, func() ([]Score, error) {
		return c.doRerank(ctx, query, documents)
	})
}

func (c *Client) doRerank(ctx context.Context, query string, documents []string) ([]Score, error) {
	body, err := json.Marshal(rerankRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, fmt.Errorf("rerankclient: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("rerankclient: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerankclient: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerankclient: status %d: %s", resp.StatusCode, respBody)
	}

	var scores []Score
	if err := json.NewDecoder(resp.Body).Decode(&scores); err != nil {
		return nil, fmt.Errorf("rerankclient: decode: %w", err)
	}
	return scores, nil
}

// Ping validates the reranker service connection (satisfies
// healthcheck.Pinger).
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRerank(ctx, "health check", []string{"ping"})
	if err != nil {
		return fmt.Errorf("rerankclient: health check failed: %w", err)
	}
	return nil
}

func isRetryableHTTPError(err error) bool {
	return err != nil
}
