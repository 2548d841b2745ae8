// Package huggingface implements pkg/embeddings' Embedder client for
// Hugging Face text-embeddings-inference (TEI) servers.
package huggingface

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/quarryhq/quarry/pkg/embeddings"
)

// Embedder wraps a TEI server's /embed endpoint.
type Embedder struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	mu   sync.Mutex
	dims int
}

// Config holds configuration for the TEI embedder.
type Config struct {
	// BaseURL is the TEI server URL (e.g., "http://localhost:8080"). Required.
	BaseURL string

	// APIKey is sent as a bearer token when set (hosted endpoints).
	APIKey string

	// Dimensions is the expected vector dimensionality. When zero it is
	// learned from the first response.
	Dimensions int
}

// embedRequest is the request body for TEI's /embed endpoint.
type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// NewEmbedder creates a new embedder against a TEI server.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("huggingface TEI URL is required")
	}

	return &Embedder{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		dims:    cfg.Dimensions,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}, nil
}

// Embed converts a single text into a vector embedding.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch converts texts into embeddings in one provider call. TEI
// preserves input order in its response array.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	jsonBody, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/embed", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", embeddings.ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", embeddings.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: TEI returned status %d: %s", statusErr(resp.StatusCode), resp.StatusCode, string(body))
	}

	var vectors [][]float32
	if err := json.NewDecoder(resp.Body).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", embeddings.ErrProvider, err)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", embeddings.ErrProvider, len(texts), len(vectors))
	}

	e.recordDims(vectors)

	return vectors, nil
}

// Dimensions returns the configured or observed vector dimensionality.
func (e *Embedder) Dimensions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dims
}

func (e *Embedder) recordDims(vectors [][]float32) {
	if len(vectors) == 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dims == 0 {
		e.dims = len(vectors[0])
	}
}

// Close releases resources held by the embedder.
func (e *Embedder) Close() error {
	return nil
}

func statusErr(status int) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests, http.StatusBadRequest:
		return embeddings.ErrProviderFatal
	default:
		return embeddings.ErrProvider
	}
}

// Ensure Embedder implements embeddings.Embedder
var _ embeddings.Embedder = (*Embedder)(nil)
