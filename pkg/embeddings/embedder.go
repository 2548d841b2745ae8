// Package embeddings
package embeddings

import "context"

// Embedder provides text embedding capabilities.
//
// Implementations are provider-specific (ollama, openai, azure, huggingface)
// and are selected by configuration at startup through
// pkg/embeddings/utils. The vector dimensionality is fixed per provider and
// model for the lifetime of a collection.
type Embedder interface {
	// Embed converts a single text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts texts into embeddings, preserving input order:
	// result[i] is the embedding of texts[i]. Implementations batch the
	// underlying provider call where the API supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimensionality this embedder produces,
	// or 0 if it has not been configured and no embedding has been generated
	// yet.
	Dimensions() int

	// Close releases any resources held by the embedder.
	Close() error
}
