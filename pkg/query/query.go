// Package query routes read requests to either a direct similarity search
// or the agentic engine, and merges ranked results across collections.
package query

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/agent"
	"github.com/quarryhq/quarry/pkg/embeddings"
	"github.com/quarryhq/quarry/pkg/vector"
)

// Mode selects the retrieval strategy for a request.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeAgentic  Mode = "agentic"
)

// DefaultTopK is the result count used when a request does not set one.
const DefaultTopK = 10

// Request is a routed query. An empty mode defaults to semantic; empty
// collections default to the router's configured collection.
type Request struct {
	Query       string   `json:"query"`
	Mode        Mode     `json:"mode,omitempty"`
	Collections []string `json:"collections,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	FileID      string   `json:"file_id,omitempty"`
	MaxSteps    int      `json:"max_steps,omitempty"`
}

// Hit is a search result annotated with the collection it came from.
type Hit struct {
	Collection string            `json:"collection"`
	FileID     string            `json:"file_id"`
	ChunkIndex int               `json:"chunk_index"`
	Text       string            `json:"text"`
	Score      float32           `json:"score"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Response is the result of a routed query. Hits is set for semantic
// requests; Agentic for agentic ones.
type Response struct {
	Mode    Mode           `json:"mode"`
	Hits    []Hit          `json:"hits,omitempty"`
	Agentic *agent.Outcome `json:"agentic,omitempty"`
}

// Router validates requests and dispatches them by mode.
type Router struct {
	embedder          embeddings.Embedder
	store             vector.Store
	engine            *agent.Engine
	logger            *zap.Logger
	defaultCollection string
}

// NewRouter creates a query router. The engine may be nil, in which case
// agentic requests are rejected as invalid.
func NewRouter(
	embedder embeddings.Embedder,
	store vector.Store,
	engine *agent.Engine,
	logger *zap.Logger,
	defaultCollection string,
) (*Router, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultCollection == "" {
		return nil, fmt.Errorf("default collection is required")
	}

	return &Router{
		embedder:          embedder,
		store:             store,
		engine:            engine,
		logger:            logger,
		defaultCollection: defaultCollection,
	}, nil
}

// Route validates the request and runs it in the requested mode.
func (r *Router) Route(ctx context.Context, req Request) (*Response, error) {
	req, err := r.normalize(req)
	if err != nil {
		return nil, err
	}

	switch req.Mode {
	case ModeSemantic:
		hits, err := r.semantic(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Response{Mode: ModeSemantic, Hits: hits}, nil
	case ModeAgentic:
		outcome, err := r.agentic(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Response{Mode: ModeAgentic, Agentic: outcome}, nil
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, req.Mode)
	}
}

func (r *Router) normalize(req Request) (Request, error) {
	if strings.TrimSpace(req.Query) == "" {
		return req, fmt.Errorf("%w: query must not be empty", ErrInvalidQuery)
	}

	if req.Mode == "" {
		req.Mode = ModeSemantic
	}
	if req.Mode != ModeSemantic && req.Mode != ModeAgentic {
		return req, fmt.Errorf("%w: unknown mode %q", ErrInvalidQuery, req.Mode)
	}

	if req.TopK == 0 {
		req.TopK = DefaultTopK
	}
	if req.TopK < 1 {
		return req, fmt.Errorf("%w: top_k must be at least 1", ErrInvalidQuery)
	}

	if len(req.Collections) == 0 {
		req.Collections = []string{r.defaultCollection}
	}
	for _, collection := range req.Collections {
		if strings.TrimSpace(collection) == "" {
			return req, fmt.Errorf("%w: collection names must not be empty", ErrInvalidQuery)
		}
	}

	if req.Mode == ModeAgentic {
		if r.engine == nil {
			return req, fmt.Errorf("%w: agentic mode is not enabled", ErrInvalidQuery)
		}
		if len(req.Collections) > 1 {
			return req, fmt.Errorf("%w: agentic mode queries a single collection", ErrInvalidQuery)
		}
		if req.MaxSteps < 0 {
			return req, fmt.Errorf("%w: max_steps must not be negative", ErrInvalidQuery)
		}
	}

	return req, nil
}

// semantic embeds the query once and searches every requested collection,
// merging the results into a single ranked list.
func (r *Router) semantic(ctx context.Context, req Request) ([]Hit, error) {
	embedding, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var filter *vector.Filter
	if req.FileID != "" {
		filter = &vector.Filter{FileID: req.FileID}
	}

	var merged []Hit
	for _, collection := range req.Collections {
		hits, err := r.store.Search(ctx, collection, embedding, req.TopK, filter)
		if err != nil {
			return nil, fmt.Errorf("search in %s failed: %w", collection, err)
		}
		for _, hit := range hits {
			merged = append(merged, Hit{
				Collection: collection,
				FileID:     hit.FileID,
				ChunkIndex: hit.Index,
				Text:       hit.Text,
				Score:      hit.Score,
				Metadata:   hit.Metadata,
			})
		}
	}

	sortHits(merged)
	if len(merged) > req.TopK {
		merged = merged[:req.TopK]
	}

	r.logger.Debug("semantic query served",
		zap.Int("collections", len(req.Collections)),
		zap.Int("hits", len(merged)),
	)

	return merged, nil
}

func (r *Router) agentic(ctx context.Context, req Request) (*agent.Outcome, error) {
	outcome, err := r.engine.Run(ctx, agent.Request{
		Query:      req.Query,
		Collection: req.Collections[0],
		TopK:       req.TopK,
		FileID:     req.FileID,
		MaxSteps:   req.MaxSteps,
	})
	if err != nil {
		return nil, err
	}

	r.logger.Debug("agentic query served",
		zap.Int("steps", len(outcome.Steps)),
		zap.Bool("truncated", outcome.Truncated),
		zap.Bool("cancelled", outcome.Cancelled),
	)

	return outcome, nil
}

// sortHits orders merged results by score descending, then chunk index,
// file ID, and collection ascending so equal scores rank deterministically.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].ChunkIndex != hits[j].ChunkIndex {
			return hits[i].ChunkIndex < hits[j].ChunkIndex
		}
		if hits[i].FileID != hits[j].FileID {
			return hits[i].FileID < hits[j].FileID
		}
		return hits[i].Collection < hits[j].Collection
	})
}
