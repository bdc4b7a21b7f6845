// Package embedclient implements half of C15: a thin REST client to the
// out-of-scope embedding service, grounded on the donor's
// internal/gcpclient/embedding.go (same marshal/POST/decode/withRetry
// shape) simplified from Vertex AI's RETRIEVAL_DOCUMENT/RETRIEVAL_QUERY
// task-typed :predict envelope down to spec.md §6's flat contract:
// POST /embed {texts} -> {vectors}.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/ragbox/core-rag/internal/retry"
)

// MaxBatchSize bounds how many texts are sent per request, mirroring the
// donor's EmbedderService batching policy (internal/service/embedder.go).
const MaxBatchSize = 250

// Client calls an embedding HTTP service.
type Client struct {
	baseURL string
	http    *http.Client
	dim     int
}

func New(baseURL string, dim int, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{baseURL: baseURL, http: httpClient, dim: dim}
}

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// Embed returns one L2-normalized vector per input text, batching requests
// of more than MaxBatchSize texts.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("embedclient.Embed: no texts provided")
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += MaxBatchSize {
		end := i + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vectors, err := retry.Do(ctx, retry.Default, "embedclient.Embed", isRetryableHTTPError, func() ([][]float32, error) {
			return c.doEmbed(ctx, texts[i:end])
		})
		if err != nil {
			return nil, fmt.Errorf("embedclient.Embed: batch %d-%d: %w", i, end, err)
		}
		for j, v := range vectors {
			if c.dim > 0 && len(v) != c.dim {
				return nil, fmt.Errorf("embedclient.Embed: vector %d has %d dimensions, want %d", i+j, len(v), c.dim)
			}
			vectors[j] = l2Normalize(v)
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (c *Client) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("embedclient: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedclient: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedclient: call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedclient: status %d: %s", resp.StatusCode, respBody)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("embedclient: decode: %w", err)
	}
	return parsed.Vectors, nil
}

// Ping validates the embedding service connection (satisfies
// healthcheck.Pinger).
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doEmbed(ctx, []string{"health check"})
	if err != nil {
		return fmt.Errorf("embedclient: health check failed: %w", err)
	}
	return nil
}

func isRetryableHTTPError(err error) bool {
	return err != nil
}

func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
