// Package vector defines the vector store gateway used to persist and query
// document chunks. Implementations live in subpackages (memory, sqlitevec,
// qdrant) and are selected by configuration through pkg/vector/utils.
package vector

import (
	"context"
	"sort"
)

// Chunk is the unit stored in the vector database: one bounded span of a
// document's text together with its embedding and positional metadata.
type Chunk struct {
	// FileID is the caller-supplied identifier of the owning document.
	FileID string

	// Index is the 0-based position of this span within the document.
	Index int

	// Text is the span content.
	Text string

	// Embedding is the vector representation of Text. Its length must match
	// the dimensionality of the collection it is written to.
	Embedding []float32

	// Metadata carries optional extra attributes (filename, content type,
	// page number) alongside the positional fields.
	Metadata map[string]string
}

// SearchHit is a chunk returned from a similarity search with its score.
type SearchHit struct {
	Chunk

	// Score is the similarity to the query vector (higher = more similar).
	Score float32
}

// Filter restricts a search or lookup to chunks matching the given fields.
// Zero-valued fields are ignored.
type Filter struct {
	// FileID restricts results to chunks of a single document.
	FileID string

	// Metadata restricts results to chunks whose metadata contains every
	// listed key/value pair.
	Metadata map[string]string
}

// Matches reports whether the chunk satisfies the filter.
func (f *Filter) Matches(c Chunk) bool {
	if f == nil {
		return true
	}
	if f.FileID != "" && c.FileID != f.FileID {
		return false
	}
	for k, v := range f.Metadata {
		if c.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Store handles storage and retrieval of document chunks, scoped by
// collection name. Collections are created lazily on first write.
type Store interface {
	// EnsureCollection creates the collection with the given embedding
	// dimensionality if it does not exist. Returns ErrSchemaMismatch if the
	// collection exists with a different dimensionality.
	EnsureCollection(ctx context.Context, collection string, dimensions int) error

	// Upsert stores chunks, keyed by (file_id, chunk_index). Re-upserting an
	// existing key overwrites rather than duplicates.
	Upsert(ctx context.Context, collection string, chunks []Chunk) error

	// Search returns the topK most similar chunks to the given embedding,
	// ordered by descending score. Ties break by ascending chunk index, then
	// ascending file id.
	Search(ctx context.Context, collection string, embedding []float32, topK int, filter *Filter) ([]SearchHit, error)

	// DeleteByFileID removes every chunk belonging to the file. Once the call
	// returns, no chunk of that file is observable to subsequent reads.
	DeleteByFileID(ctx context.Context, collection, fileID string) error

	// Count returns the number of chunks stored in the collection.
	Count(ctx context.Context, collection string) (int64, error)

	// ListFileIDs returns the distinct file ids present in the collection,
	// sorted ascending.
	ListFileIDs(ctx context.Context, collection string) ([]string, error)

	// Close releases any resources held by the store.
	Close() error
}

// SortHits orders hits by descending score, breaking ties by ascending chunk
// index and then ascending file id. Every Store implementation and the query
// router's multi-collection merge use this ordering so results are
// deterministic across backends.
func SortHits(hits []SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Index != hits[j].Index {
			return hits[i].Index < hits[j].Index
		}
		return hits[i].FileID < hits[j].FileID
	})
}
