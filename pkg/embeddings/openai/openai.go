// Package openai implements pkg/embeddings' Embedder client for the OpenAI
// embeddings API and Azure OpenAI deployments, which share the same request
// and response shape and differ only in endpoint layout and auth header.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/quarryhq/quarry/pkg/embeddings"
)

const (
	// DefaultEmbeddingModel is the default model used for embeddings.
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultBaseURL is the default OpenAI API URL.
	DefaultBaseURL = "https://api.openai.com"

	// DefaultAzureAPIVersion is the API version sent to Azure deployments.
	DefaultAzureAPIVersion = "2024-02-01"
)

// Embedder wraps the OpenAI embeddings API.
type Embedder struct {
	baseURL    string
	model      string
	apiKey     string
	azure      bool
	apiVersion string
	httpClient *http.Client

	mu   sync.Mutex
	dims int
}

// Config holds configuration for the OpenAI embedder.
type Config struct {
	// BaseURL is the API base URL. Defaults to DefaultBaseURL. For Azure,
	// this is the resource endpoint (e.g., "https://myres.openai.azure.com").
	BaseURL string

	// APIKey authenticates the request. Required.
	APIKey string

	// Model is the embedding model, or the deployment name on Azure.
	// Defaults to DefaultEmbeddingModel.
	Model string

	// Azure switches to Azure OpenAI endpoint layout and auth header.
	Azure bool

	// APIVersion is the Azure api-version query parameter.
	// Defaults to DefaultAzureAPIVersion.
	APIVersion string

	// Dimensions is the expected vector dimensionality. When zero it is
	// learned from the first response.
	Dimensions int
}

// embedRequest is the request body for the embeddings API.
type embedRequest struct {
	Model string   `json:"model,omitempty"`
	Input []string `json:"input"`
}

// embedResponse is the response from the embeddings API. Entries carry an
// index because the provider does not guarantee output order.
type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// NewEmbedder creates a new embedder using the OpenAI embeddings API.
func NewEmbedder(cfg Config) (*Embedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		if cfg.Azure {
			return nil, fmt.Errorf("azure endpoint URL is required")
		}
		baseURL = DefaultBaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultEmbeddingModel
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = DefaultAzureAPIVersion
	}

	return &Embedder{
		baseURL:    baseURL,
		model:      model,
		apiKey:     cfg.APIKey,
		azure:      cfg.Azure,
		apiVersion: apiVersion,
		dims:       cfg.Dimensions,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
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

// EmbedBatch converts texts into embeddings in one provider call. Results are
// reordered by the response index so output order matches input order even if
// the provider reorders internally.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embedRequest{Input: texts}
	if !e.azure {
		reqBody.Model = e.model
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshaling request: %v", embeddings.ErrProvider, err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", e.endpoint(), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: creating request: %v", embeddings.ErrProvider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.azure {
		req.Header.Set("api-key", e.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: sending request: %v", embeddings.ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: provider returned status %d: %s", statusErr(resp.StatusCode), resp.StatusCode, string(body))
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", embeddings.ErrProvider, err)
	}

	if len(embedResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", embeddings.ErrProvider, len(texts), len(embedResp.Data))
	}

	sort.Slice(embedResp.Data, func(i, j int) bool {
		return embedResp.Data[i].Index < embedResp.Data[j].Index
	})

	vectors := make([][]float32, len(embedResp.Data))
	for i, d := range embedResp.Data {
		vectors[i] = d.Embedding
	}

	e.recordDims(vectors)

	return vectors, nil
}

// endpoint builds the provider URL for the configured auth mode.
func (e *Embedder) endpoint() string {
	if e.azure {
		return fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s", e.baseURL, e.model, e.apiVersion)
	}
	return e.baseURL + "/v1/embeddings"
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
