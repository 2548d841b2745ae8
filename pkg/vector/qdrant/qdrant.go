// Package qdrant provides a Qdrant-backed implementation of vector.Store
// using the official gRPC client.
//
// Chunks map to points whose IDs are deterministic UUIDs derived from
// (collection, file_id, chunk_index), so re-upserting a key overwrites the
// existing point instead of duplicating it. The file id, chunk index, text
// and metadata travel in the point payload, which is what filtered deletes
// and lookups match against.
package qdrant

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/vector"
)

const (
	payloadFileID     = "file_id"
	payloadChunkIndex = "chunk_index"
	payloadText       = "text"
	payloadMetadata   = "metadata"

	scrollPageSize = 256
)

// Store implements vector.Store against a Qdrant deployment.
type Store struct {
	client *qd.Client
	logger *zap.Logger
}

// Config holds connection parameters for the Qdrant store.
type Config struct {
	// Host is the Qdrant host (e.g., "localhost").
	Host string

	// Port is the Qdrant gRPC port (e.g., 6334).
	Port int

	// APIKey authenticates against Qdrant cloud. Empty for local deployments.
	APIKey string

	// UseTLS enables TLS on the gRPC connection. Required for cloud.
	UseTLS bool
}

// NewStore connects to Qdrant and returns a Store.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}

	client, err := qd.NewClient(&qd.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", c.Host, c.Port, err)
	}

	logger.Info("connected to qdrant",
		zap.String("host", c.Host),
		zap.Int("port", c.Port),
		zap.Bool("tls", c.UseTLS),
	)

	return &Store{
		client: client,
		logger: logger,
	}, nil
}

// pointID derives a deterministic UUID for a chunk so upserts overwrite.
func pointID(collection, fileID string, index int) string {
	key := fmt.Sprintf("%s/%s/%d", collection, fileID, index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// unavailable wraps a transport-level failure as vector.ErrUnavailable so
// callers can distinguish connectivity loss from schema or input errors.
func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, vector.ErrUnavailable, err)
}

func fileIDFilter(fileID string) *qd.Filter {
	return &qd.Filter{
		Must: []*qd.Condition{
			qd.NewMatch(payloadFileID, fileID),
		},
	}
}

// EnsureCollection creates the collection with cosine distance if absent and
// verifies the dimensionality of an existing one.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("collection %q: dimensions must be positive, got %d", collection, dims)
	}

	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return unavailable("checking collection", err)
	}

	if !exists {
		err := s.client.CreateCollection(ctx, &qd.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qd.NewVectorsConfig(&qd.VectorParams{
				Size:     uint64(dims),
				Distance: qd.Distance_Cosine,
			}),
		})
		if err != nil {
			return unavailable("creating collection", err)
		}

		s.logger.Info("created collection",
			zap.String("collection", collection),
			zap.Int("dimensions", dims),
		)
		return nil
	}

	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return unavailable("inspecting collection", err)
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params != nil && params.GetSize() != uint64(dims) {
		return fmt.Errorf("collection %q has %d dimensions, got %d: %w",
			collection, params.GetSize(), dims, vector.ErrSchemaMismatch)
	}

	return nil
}

// Upsert writes chunks as points keyed by their deterministic IDs. The
// collection is created lazily from the first chunk's embedding length.
func (s *Store) Upsert(ctx context.Context, collection string, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dims := len(chunks[0].Embedding)
	if err := s.EnsureCollection(ctx, collection, dims); err != nil {
		return err
	}

	points := make([]*qd.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) != dims {
			return fmt.Errorf("chunk %s/%d has %d dimensions, collection %q expects %d: %w",
				c.FileID, c.Index, len(c.Embedding), collection, dims, vector.ErrSchemaMismatch)
		}

		metadata := make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			metadata[k] = v
		}

		points = append(points, &qd.PointStruct{
			Id:      qd.NewID(pointID(collection, c.FileID, c.Index)),
			Vectors: qd.NewVectors(c.Embedding...),
			Payload: qd.NewValueMap(map[string]any{
				payloadFileID:     c.FileID,
				payloadChunkIndex: int64(c.Index),
				payloadText:       c.Text,
				payloadMetadata:   metadata,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: collection,
		Wait:           qd.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return unavailable("upserting points", err)
	}

	s.logger.Debug("upserted chunks to qdrant",
		zap.String("collection", collection),
		zap.Int("count", len(chunks)),
	)

	return nil
}

// Search runs a similarity query and returns the topK hits in the
// deterministic order defined by vector.SortHits.
func (s *Store) Search(ctx context.Context, collection string, embedding []float32, topK int, filter *vector.Filter) ([]vector.SearchHit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	query := &qd.QueryPoints{
		CollectionName: collection,
		Query:          qd.NewQuery(embedding...),
		Limit:          qd.PtrOf(uint64(topK)),
		WithPayload:    qd.NewWithPayload(true),
	}

	if filter != nil {
		var must []*qd.Condition
		if filter.FileID != "" {
			must = append(must, qd.NewMatch(payloadFileID, filter.FileID))
		}
		for k, v := range filter.Metadata {
			must = append(must, qd.NewMatch(payloadMetadata+"."+k, v))
		}
		if len(must) > 0 {
			query.Filter = &qd.Filter{Must: must}
		}
	}

	scored, err := s.client.Query(ctx, query)
	if err != nil {
		return nil, unavailable("querying points", err)
	}

	hits := make([]vector.SearchHit, 0, len(scored))
	for _, point := range scored {
		hits = append(hits, vector.SearchHit{
			Chunk: chunkFromPayload(point.GetPayload()),
			Score: point.GetScore(),
		})
	}

	vector.SortHits(hits)

	s.logger.Debug("queried qdrant",
		zap.String("collection", collection),
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

// DeleteByFileID removes every point whose payload matches the file id.
// Qdrant applies a filtered delete atomically, so no partial result is
// observable once the call returns.
func (s *Store) DeleteByFileID(ctx context.Context, collection, fileID string) error {
	_, err := s.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: collection,
		Wait:           qd.PtrOf(true),
		Points:         qd.NewPointsSelectorFilter(fileIDFilter(fileID)),
	})
	if err != nil {
		return unavailable("deleting points", err)
	}

	s.logger.Debug("deleted file from qdrant",
		zap.String("collection", collection),
		zap.String("file_id", fileID),
	)

	return nil
}

// Count returns the exact number of points in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return 0, unavailable("checking collection", err)
	}
	if !exists {
		return 0, nil
	}

	count, err := s.client.Count(ctx, &qd.CountPoints{
		CollectionName: collection,
		Exact:          qd.PtrOf(true),
	})
	if err != nil {
		return 0, unavailable("counting points", err)
	}

	return int64(count), nil
}

// ListFileIDs scrolls the collection payloads and returns the distinct file
// ids, sorted ascending.
func (s *Store) ListFileIDs(ctx context.Context, collection string) ([]string, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, unavailable("checking collection", err)
	}
	if !exists {
		return nil, nil
	}

	seen := make(map[string]struct{})

	var offset *qd.PointId
	for {
		resp, err := s.client.GetPointsClient().Scroll(ctx, &qd.ScrollPoints{
			CollectionName: collection,
			Limit:          qd.PtrOf(uint32(scrollPageSize)),
			WithPayload:    qd.NewWithPayloadInclude(payloadFileID),
			Offset:         offset,
		})
		if err != nil {
			return nil, unavailable("scrolling points", err)
		}

		for _, point := range resp.GetResult() {
			if v, ok := point.GetPayload()[payloadFileID]; ok {
				seen[v.GetStringValue()] = struct{}{}
			}
		}

		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids, nil
}

// Close releases the underlying gRPC connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// chunkFromPayload rebuilds a chunk from a point payload. Embeddings are not
// returned; query paths only need text and provenance.
func chunkFromPayload(payload map[string]*qd.Value) vector.Chunk {
	c := vector.Chunk{}

	if v, ok := payload[payloadFileID]; ok {
		c.FileID = v.GetStringValue()
	}
	if v, ok := payload[payloadChunkIndex]; ok {
		c.Index = int(v.GetIntegerValue())
	}
	if v, ok := payload[payloadText]; ok {
		c.Text = v.GetStringValue()
	}
	if v, ok := payload[payloadMetadata]; ok {
		if fields := v.GetStructValue().GetFields(); len(fields) > 0 {
			c.Metadata = make(map[string]string, len(fields))
			for k, fv := range fields {
				c.Metadata[k] = fv.GetStringValue()
			}
		}
	}

	return c
}

var _ vector.Store = (*Store)(nil)
