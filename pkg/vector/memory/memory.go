// Package memory provides an in-process implementation of vector.Store.
//
// Search is an exact cosine similarity scan over all stored chunks. This is a
// local-dev and test story; the qdrant and sqlitevec drivers back production
// deployments.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/quarryhq/quarry/pkg/vector"
)

type chunkKey struct {
	fileID string
	index  int
}

type collection struct {
	dimensions int
	chunks     map[chunkKey]vector.Chunk
}

// Store implements vector.Store using in-process data structures.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

// NewStore creates an empty in-memory vector store.
func NewStore() *Store {
	return &Store{
		collections: make(map[string]*collection),
	}
}

// EnsureCollection creates the collection if absent. An existing collection
// with a different dimensionality is a schema mismatch.
func (s *Store) EnsureCollection(_ context.Context, name string, dimensions int) error {
	if dimensions <= 0 {
		return fmt.Errorf("collection %q: dimensions must be positive, got %d", name, dimensions)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ensureLocked(name, dimensions)
}

func (s *Store) ensureLocked(name string, dimensions int) error {
	coll, ok := s.collections[name]
	if !ok {
		s.collections[name] = &collection{
			dimensions: dimensions,
			chunks:     make(map[chunkKey]vector.Chunk),
		}
		return nil
	}

	if coll.dimensions != dimensions {
		return fmt.Errorf("collection %q has %d dimensions, got %d: %w",
			name, coll.dimensions, dimensions, vector.ErrSchemaMismatch)
	}

	return nil
}

// Upsert stores chunks keyed by (file_id, chunk_index), overwriting existing
// keys. The collection is created lazily from the first chunk's embedding
// length.
func (s *Store) Upsert(_ context.Context, name string, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureLocked(name, len(chunks[0].Embedding)); err != nil {
		return err
	}

	coll := s.collections[name]
	for _, c := range chunks {
		if len(c.Embedding) != coll.dimensions {
			return fmt.Errorf("chunk %s/%d has %d dimensions, collection %q expects %d: %w",
				c.FileID, c.Index, len(c.Embedding), name, coll.dimensions, vector.ErrSchemaMismatch)
		}
		coll.chunks[chunkKey{fileID: c.FileID, index: c.Index}] = c
	}

	return nil
}

// Search scans the collection computing cosine similarity against every
// stored chunk, applies the filter, and returns the topK hits in the
// deterministic order defined by vector.SortHits.
func (s *Store) Search(_ context.Context, name string, embedding []float32, topK int, filter *vector.Filter) ([]vector.SearchHit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[name]
	if !ok {
		return nil, nil
	}

	if len(embedding) != coll.dimensions {
		return nil, fmt.Errorf("query vector has %d dimensions, collection %q expects %d: %w",
			len(embedding), name, coll.dimensions, vector.ErrSchemaMismatch)
	}

	hits := make([]vector.SearchHit, 0, len(coll.chunks))
	for _, c := range coll.chunks {
		if !filter.Matches(c) {
			continue
		}
		hits = append(hits, vector.SearchHit{
			Chunk: c,
			Score: cosine(embedding, c.Embedding),
		})
	}

	vector.SortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}

	return hits, nil
}

// DeleteByFileID removes every chunk of the file in one critical section, so
// readers never observe a partially deleted document.
func (s *Store) DeleteByFileID(_ context.Context, name, fileID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[name]
	if !ok {
		return nil
	}

	for key := range coll.chunks {
		if key.fileID == fileID {
			delete(coll.chunks, key)
		}
	}

	return nil
}

// Count returns the number of chunks in the collection.
func (s *Store) Count(_ context.Context, name string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[name]
	if !ok {
		return 0, nil
	}

	return int64(len(coll.chunks)), nil
}

// ListFileIDs returns the distinct file ids in the collection, sorted.
func (s *Store) ListFileIDs(_ context.Context, name string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[name]
	if !ok {
		return nil, nil
	}

	seen := make(map[string]struct{})
	for key := range coll.chunks {
		seen[key.fileID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// cosine computes cosine similarity between two equal-length vectors.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

var _ vector.Store = (*Store)(nil)
