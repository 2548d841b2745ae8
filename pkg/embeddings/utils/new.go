// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/quarryhq/quarry/pkg/embeddings"
	"github.com/quarryhq/quarry/pkg/embeddings/huggingface"
	"github.com/quarryhq/quarry/pkg/embeddings/ollama"
	"github.com/quarryhq/quarry/pkg/embeddings/openai"
)

type NewEmbedderOpts struct {
	// ProviderType selects the provider: "ollama", "openai", "azure" or
	// "huggingface". The "bedrock" and "vertexai" names are recognized but
	// not yet backed by an implementation.
	ProviderType string
	TargetURL    string
	Model        string
	APIKey       string
	Dimensions   int
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case "ollama":
		return ollama.NewEmbedder(ollama.Config{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	case "openai":
		return openai.NewEmbedder(openai.Config{
			BaseURL:    o.TargetURL,
			APIKey:     o.APIKey,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	case "azure":
		return openai.NewEmbedder(openai.Config{
			BaseURL:    o.TargetURL,
			APIKey:     o.APIKey,
			Model:      o.Model,
			Azure:      true,
			Dimensions: o.Dimensions,
		})
	case "huggingface":
		return huggingface.NewEmbedder(huggingface.Config{
			BaseURL:    o.TargetURL,
			APIKey:     o.APIKey,
			Dimensions: o.Dimensions,
		})
	case "bedrock", "vertexai":
		return nil, fmt.Errorf("embedding provider %s is recognized but not implemented", o.ProviderType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
