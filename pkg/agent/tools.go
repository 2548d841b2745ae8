package agent

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarryhq/quarry/pkg/embeddings"
	"github.com/quarryhq/quarry/pkg/vector"
)

const (
	ToolSimilaritySearch = "similarity_search"
	ToolFilterLookup     = "filter_lookup"
	ToolCountAggregate   = "count_aggregate"
	ToolListFiles        = "list_files"
)

// NewDefaultRegistry builds the standard tool set over an embedder and a
// vector store.
func NewDefaultRegistry(embedder embeddings.Embedder, store vector.Store) *Registry {
	return NewRegistry(
		&similaritySearchTool{embedder: embedder, store: store},
		&filterLookupTool{embedder: embedder, store: store},
		&countAggregateTool{store: store},
		&listFilesTool{store: store},
	)
}

var (
	_ Tool = (*similaritySearchTool)(nil)
	_ Tool = (*filterLookupTool)(nil)
	_ Tool = (*countAggregateTool)(nil)
	_ Tool = (*listFilesTool)(nil)
)

type similaritySearchTool struct {
	embedder embeddings.Embedder
	store    vector.Store
}

func (t *similaritySearchTool) Name() string { return ToolSimilaritySearch }

func (t *similaritySearchTool) Description() string {
	return "find the chunks most similar to the query across the collection"
}

func (t *similaritySearchTool) Run(ctx context.Context, input Input) (Output, error) {
	return runSearch(ctx, t.embedder, t.store, input, nil)
}

type filterLookupTool struct {
	embedder embeddings.Embedder
	store    vector.Store
}

func (t *filterLookupTool) Name() string { return ToolFilterLookup }

func (t *filterLookupTool) Description() string {
	return "find the most relevant chunks within a single file"
}

func (t *filterLookupTool) Run(ctx context.Context, input Input) (Output, error) {
	if input.FileID == "" {
		return Output{}, fmt.Errorf("filter lookup requires a file id")
	}
	return runSearch(ctx, t.embedder, t.store, input, &vector.Filter{FileID: input.FileID})
}

func runSearch(ctx context.Context, embedder embeddings.Embedder, store vector.Store, input Input, filter *vector.Filter) (Output, error) {
	embedding, err := embedder.Embed(ctx, input.Query)
	if err != nil {
		return Output{}, fmt.Errorf("failed to embed query: %w", err)
	}

	hits, err := store.Search(ctx, input.Collection, embedding, input.TopK, filter)
	if err != nil {
		return Output{}, fmt.Errorf("search failed: %w", err)
	}

	summary := fmt.Sprintf("%d matching chunks", len(hits))
	if filter != nil {
		summary = fmt.Sprintf("%d matching chunks in file %s", len(hits), filter.FileID)
	}

	return Output{Hits: hits, Summary: summary}, nil
}

type countAggregateTool struct {
	store vector.Store
}

func (t *countAggregateTool) Name() string { return ToolCountAggregate }

func (t *countAggregateTool) Description() string {
	return "count the documents and chunks stored in the collection"
}

func (t *countAggregateTool) Run(ctx context.Context, input Input) (Output, error) {
	chunks, err := t.store.Count(ctx, input.Collection)
	if err != nil {
		return Output{}, fmt.Errorf("count failed: %w", err)
	}

	fileIDs, err := t.store.ListFileIDs(ctx, input.Collection)
	if err != nil {
		return Output{}, fmt.Errorf("failed to list file ids: %w", err)
	}

	return Output{
		Documents: int64(len(fileIDs)),
		Chunks:    chunks,
		Summary:   fmt.Sprintf("%d documents, %d chunks", len(fileIDs), chunks),
	}, nil
}

type listFilesTool struct {
	store vector.Store
}

func (t *listFilesTool) Name() string { return ToolListFiles }

func (t *listFilesTool) Description() string {
	return "list the file ids present in the collection"
}

func (t *listFilesTool) Run(ctx context.Context, input Input) (Output, error) {
	fileIDs, err := t.store.ListFileIDs(ctx, input.Collection)
	if err != nil {
		return Output{}, fmt.Errorf("failed to list file ids: %w", err)
	}

	summary := fmt.Sprintf("%d files", len(fileIDs))
	if len(fileIDs) > 0 {
		summary += ": " + strings.Join(fileIDs, ", ")
	}

	return Output{
		Documents: int64(len(fileIDs)),
		FileIDs:   fileIDs,
		Summary:   summary,
	}, nil
}
