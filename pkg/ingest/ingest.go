// Package ingest runs documents through the extract, chunk, embed, and
// store stages and keeps the vector store consistent under concurrent
// writes. Re-ingesting a file ID replaces its chunks atomically with
// respect to readers of that file ID.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/chunker"
	"github.com/quarryhq/quarry/pkg/embeddings"
	"github.com/quarryhq/quarry/pkg/eventstream"
	"github.com/quarryhq/quarry/pkg/extract"
	"github.com/quarryhq/quarry/pkg/vector"
)

// Stage identifies a phase of the ingestion pipeline.
type Stage string

const (
	StageReceived  Stage = "received"
	StageExtracted Stage = "extracted"
	StageChunked   Stage = "chunked"
	StageEmbedded  Stage = "embedded"
	StageStored    Stage = "stored"
	StageComplete  Stage = "complete"
)

const (
	// DefaultMaxRetries bounds retry attempts for transient backend errors.
	DefaultMaxRetries = 3

	// DefaultRetryBackoff is the initial delay between retries. It doubles
	// on each attempt.
	DefaultRetryBackoff = 250 * time.Millisecond
)

// Document is a single file submitted for ingestion.
type Document struct {
	// FileID is the stable identity of the document within a collection.
	// When empty it defaults to the hex MD5 of the content, so identical
	// uploads converge on one document.
	FileID      string
	Filename    string
	ContentType string
	Content     []byte
	Metadata    map[string]string
}

// Result describes a completed ingestion.
type Result struct {
	FileID     string `json:"file_id"`
	Collection string `json:"collection"`
	ChunkCount int    `json:"chunk_count"`
	Stage      Stage  `json:"stage"`
}

// Config tunes pipeline behavior. Zero values take defaults.
type Config struct {
	BatchSize    int
	MaxInFlight  int
	MaxRetries   int
	RetryBackoff time.Duration
}

// Pipeline coordinates a chunker, an embedder, a vector store, and an
// event publisher into the document write path.
type Pipeline struct {
	chunker  *chunker.Chunker
	embedder embeddings.Embedder
	store    vector.Store
	events   eventstream.Publisher
	logger   *zap.Logger

	batchSize    int
	maxInFlight  int
	maxRetries   int
	retryBackoff time.Duration

	fileLocks *keyedMutex
}

// NewPipeline wires the ingestion pipeline. The event publisher may be nil,
// in which case no events are emitted.
func NewPipeline(
	ck *chunker.Chunker,
	embedder embeddings.Embedder,
	store vector.Store,
	events eventstream.Publisher,
	logger *zap.Logger,
	cfg Config,
) (*Pipeline, error) {
	if ck == nil {
		return nil, fmt.Errorf("chunker is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embeddings.DefaultBatchSize
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = embeddings.DefaultMaxInFlight
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}

	return &Pipeline{
		chunker:      ck,
		embedder:     embedder,
		store:        store,
		events:       events,
		logger:       logger,
		batchSize:    cfg.BatchSize,
		maxInFlight:  cfg.MaxInFlight,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		fileLocks:    newKeyedMutex(),
	}, nil
}

// FileID derives the default content-addressed identity of a document.
func FileID(content []byte) string {
	sum := md5.Sum(content)
	return hex.EncodeToString(sum[:])
}

// Ingest runs one document through the full pipeline. All chunks are
// embedded and buffered before any write reaches the store, and the store
// write replaces whatever the file ID previously held.
func (p *Pipeline) Ingest(ctx context.Context, collection string, doc Document) (*Result, error) {
	if collection == "" {
		return nil, stageFailure(StageReceived, ErrMissingCollection)
	}
	if len(doc.Content) == 0 {
		return nil, stageFailure(StageReceived, ErrEmptyDocument)
	}

	fileID := doc.FileID
	if fileID == "" {
		fileID = FileID(doc.Content)
	}

	log := p.logger.With(
		zap.String("collection", collection),
		zap.String("file_id", fileID),
	)
	log.Debug("ingesting document", zap.String("filename", doc.Filename))

	contentType := extract.DetectContentType(doc.ContentType, doc.Filename)
	text, err := extract.Text(doc.Content, contentType)
	if err != nil {
		return nil, stageFailure(StageExtracted, err)
	}

	spans := p.chunker.Chunk(text)
	if len(spans) == 0 {
		return nil, stageFailure(StageChunked, extract.ErrEmptyContent)
	}

	var vectors [][]float32
	err = p.withRetry(ctx, func() error {
		var embedErr error
		vectors, embedErr = embeddings.EmbedAll(ctx, p.embedder, spans, p.batchSize, p.maxInFlight)
		return embedErr
	}, isTransientEmbed)
	if err != nil {
		return nil, stageFailure(StageEmbedded, err)
	}

	chunks := make([]vector.Chunk, len(spans))
	for i, span := range spans {
		chunks[i] = vector.Chunk{
			FileID:    fileID,
			Index:     i,
			Text:      span,
			Embedding: vectors[i],
			Metadata:  chunkMetadata(doc, contentType, len(spans)),
		}
	}

	// Serialize writes per file so delete and upsert of the same document
	// never interleave across requests.
	lockKey := collection + "/" + fileID
	p.fileLocks.lock(lockKey)
	defer p.fileLocks.unlock(lockKey)

	err = p.withRetry(ctx, func() error {
		if err := p.store.EnsureCollection(ctx, collection, len(vectors[0])); err != nil {
			return err
		}
		if err := p.store.DeleteByFileID(ctx, collection, fileID); err != nil {
			return err
		}
		return p.store.Upsert(ctx, collection, chunks)
	}, isTransientStore)
	if err != nil {
		return nil, stageFailure(StageStored, err)
	}

	p.publish(ctx, eventstream.NewDocumentIngestedEvent(collection, fileID, contentType, len(chunks)))

	log.Info("document ingested", zap.Int("chunk_count", len(chunks)))

	return &Result{
		FileID:     fileID,
		Collection: collection,
		ChunkCount: len(chunks),
		Stage:      StageComplete,
	}, nil
}

// Delete removes every chunk of a document from the collection.
func (p *Pipeline) Delete(ctx context.Context, collection, fileID string) error {
	if collection == "" {
		return ErrMissingCollection
	}

	lockKey := collection + "/" + fileID
	p.fileLocks.lock(lockKey)
	defer p.fileLocks.unlock(lockKey)

	err := p.withRetry(ctx, func() error {
		return p.store.DeleteByFileID(ctx, collection, fileID)
	}, isTransientStore)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", fileID, err)
	}

	p.publish(ctx, eventstream.NewDocumentDeletedEvent(collection, fileID))

	p.logger.Info("document deleted",
		zap.String("collection", collection),
		zap.String("file_id", fileID),
	)

	return nil
}

func (p *Pipeline) publish(ctx context.Context, event *eventstream.DocumentEvent) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish document event",
			zap.String("event_type", event.EventType),
			zap.String("file_id", event.FileID),
			zap.Error(err),
		)
	}
}

// withRetry runs op, retrying with doubling backoff while the error is
// transient and attempts remain.
func (p *Pipeline) withRetry(ctx context.Context, op func() error, transient func(error) bool) error {
	backoff := p.retryBackoff
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || attempt >= p.maxRetries || !transient(err) {
			return err
		}

		p.logger.Debug("retrying after transient error",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
}

func isTransientEmbed(err error) bool {
	return errors.Is(err, embeddings.ErrProvider) && !errors.Is(err, embeddings.ErrProviderFatal)
}

func isTransientStore(err error) bool {
	return errors.Is(err, vector.ErrUnavailable)
}

func chunkMetadata(doc Document, contentType string, totalChunks int) map[string]string {
	meta := make(map[string]string, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		meta[k] = v
	}
	meta["total_chunks"] = strconv.Itoa(totalChunks)
	if doc.Filename != "" {
		meta["filename"] = doc.Filename
	}
	if contentType != "" {
		meta["content_type"] = contentType
	}
	return meta
}
