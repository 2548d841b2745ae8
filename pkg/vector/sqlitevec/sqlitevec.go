// Package sqlitevec provides a SQLite-backed vector store using sqlite-vec.
//
// Each collection maps to a pair of tables: a chunk mapping table carrying
// file_id, chunk_index, text and metadata, and a vec0 virtual table holding
// the embeddings. vec0 virtual tables use integer rowids, so the mapping
// table's rowid ties the two together. A registry table records each
// collection's dimensionality so schema mismatches are caught before writes.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/vector"
)

// Store implements vector.Store using SQLite with sqlite-vec.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Config holds configuration for the SQLite vec store.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string
}

// NewStore creates a new SQLite vector store backed by sqlite-vec.
func NewStore(c Config, logger *zap.Logger) (*Store, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Verify sqlite-vec is loaded
	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dimensions INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating collections registry: %w", err)
	}

	logger.Info("sqlite-vec vector store initialized",
		zap.String("db_path", c.DBPath),
		zap.String("vec_version", vecVersion),
	)

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// tableSuffix sanitizes a collection name into a SQL identifier fragment.
func tableSuffix(collection string) string {
	var b strings.Builder
	for _, r := range collection {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func chunksTable(collection string) string {
	return "chunks_" + tableSuffix(collection)
}

func vecTable(collection string) string {
	return "vec_" + tableSuffix(collection)
}

// dimensions returns the registered dimensionality of the collection, or
// (0, nil) when the collection does not exist.
func (s *Store) dimensions(ctx context.Context, collection string) (int, error) {
	var dims int
	err := s.db.QueryRowContext(ctx,
		`SELECT dimensions FROM collections WHERE name = ?`, collection,
	).Scan(&dims)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("looking up collection %q: %w", collection, err)
	}
	return dims, nil
}

// EnsureCollection registers the collection and creates its table pair.
// An existing collection with a different dimensionality is a schema
// mismatch.
func (s *Store) EnsureCollection(ctx context.Context, collection string, dims int) error {
	if dims <= 0 {
		return fmt.Errorf("collection %q: dimensions must be positive, got %d", collection, dims)
	}

	existing, err := s.dimensions(ctx, collection)
	if err != nil {
		return err
	}
	if existing != 0 {
		if existing != dims {
			return fmt.Errorf("collection %q has %d dimensions, got %d: %w",
				collection, existing, dims, vector.ErrSchemaMismatch)
		}
		return nil
	}

	createChunks := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			file_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL DEFAULT '{}',
			UNIQUE(file_id, chunk_index)
		)
	`, chunksTable(collection))
	if _, err := s.db.ExecContext(ctx, createChunks); err != nil {
		return fmt.Errorf("creating chunks table for %q: %w", collection, err)
	}

	// cosine distance so scores are comparable across drivers
	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d] distance_metric=cosine)`,
		vecTable(collection), dims,
	)
	if _, err := s.db.ExecContext(ctx, createVec); err != nil {
		return fmt.Errorf("creating vec0 table for %q: %w", collection, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO collections(name, dimensions) VALUES (?, ?)`, collection, dims,
	); err != nil {
		return fmt.Errorf("registering collection %q: %w", collection, err)
	}

	s.logger.Info("created collection",
		zap.String("collection", collection),
		zap.Int("dimensions", dims),
	)

	return nil
}

// Upsert stores chunks keyed by (file_id, chunk_index). The collection is
// created lazily from the first chunk's embedding length.
func (s *Store) Upsert(ctx context.Context, collection string, chunks []vector.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dims := len(chunks[0].Embedding)
	if err := s.EnsureCollection(ctx, collection, dims); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	chunksTbl := chunksTable(collection)
	vecTbl := vecTable(collection)

	for _, c := range chunks {
		if len(c.Embedding) != dims {
			return fmt.Errorf("chunk %s/%d has %d dimensions, collection %q expects %d: %w",
				c.FileID, c.Index, len(c.Embedding), collection, dims, vector.ErrSchemaMismatch)
		}

		embBlob := serializeFloat32(c.Embedding)

		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for chunk %s/%d: %w", c.FileID, c.Index, err)
		}

		// Check if the chunk already exists
		var existingRowID int64
		err = tx.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT rowid FROM %s WHERE file_id = ? AND chunk_index = ?`, chunksTbl),
			c.FileID, c.Index,
		).Scan(&existingRowID)

		switch err {
		case nil:
			// Chunk exists — update text/metadata and replace the embedding
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`UPDATE %s SET text = ?, metadata = ? WHERE rowid = ?`, chunksTbl),
				c.Text, string(metaJSON), existingRowID,
			); err != nil {
				return fmt.Errorf("updating chunk %s/%d: %w", c.FileID, c.Index, err)
			}

			// vec0 does not support UPDATE, replace via DELETE + INSERT
			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, vecTbl), existingRowID,
			); err != nil {
				return fmt.Errorf("deleting old embedding for chunk %s/%d: %w", c.FileID, c.Index, err)
			}

			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, vecTbl),
				existingRowID, embBlob,
			); err != nil {
				return fmt.Errorf("re-inserting embedding for chunk %s/%d: %w", c.FileID, c.Index, err)
			}
		case sql.ErrNoRows:
			// New chunk — insert into mapping table first to get the rowid
			result, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(file_id, chunk_index, text, metadata) VALUES (?, ?, ?, ?)`, chunksTbl),
				c.FileID, c.Index, c.Text, string(metaJSON),
			)
			if err != nil {
				return fmt.Errorf("inserting chunk %s/%d: %w", c.FileID, c.Index, err)
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for chunk %s/%d: %w", c.FileID, c.Index, err)
			}

			if _, err := tx.ExecContext(ctx,
				fmt.Sprintf(`INSERT INTO %s(rowid, embedding) VALUES (?, ?)`, vecTbl),
				rowID, embBlob,
			); err != nil {
				return fmt.Errorf("inserting embedding for chunk %s/%d: %w", c.FileID, c.Index, err)
			}
		default:
			return fmt.Errorf("checking for existing chunk %s/%d: %w", c.FileID, c.Index, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("upserted chunks to sqlite-vec",
		zap.String("collection", collection),
		zap.Int("count", len(chunks)),
	)

	return nil
}

// Search runs a KNN query via vec0 MATCH, joins back to the mapping table,
// applies the filter, and returns the topK hits in deterministic order.
func (s *Store) Search(ctx context.Context, collection string, embedding []float32, topK int, filter *vector.Filter) ([]vector.SearchHit, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	dims, err := s.dimensions(ctx, collection)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return nil, nil
	}
	if len(embedding) != dims {
		return nil, fmt.Errorf("query vector has %d dimensions, collection %q expects %d: %w",
			len(embedding), collection, dims, vector.ErrSchemaMismatch)
	}

	queryBlob := serializeFloat32(embedding)

	// vec0 KNN cannot pre-filter on joined columns, so when a filter is set
	// we over-fetch candidates and trim after filtering.
	knnK := topK
	if filter != nil {
		knnK = topK * 8
		if knnK < 64 {
			knnK = 64
		}
	}

	query := fmt.Sprintf(`
		SELECT
			c.file_id,
			c.chunk_index,
			c.text,
			c.metadata,
			ve.distance
		FROM %s ve
		INNER JOIN %s c ON c.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance
	`, vecTable(collection), chunksTable(collection))

	rows, err := s.db.QueryContext(ctx, query, queryBlob, knnK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var hits []vector.SearchHit
	for rows.Next() {
		var (
			fileID   string
			index    int
			text     string
			metaJSON string
			distance float64
		)
		if err := rows.Scan(&fileID, &index, &text, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}

		var metadata map[string]string
		if metaJSON != "" && metaJSON != "null" {
			if err := json.Unmarshal([]byte(metaJSON), &metadata); err != nil {
				return nil, fmt.Errorf("parsing metadata for chunk %s/%d: %w", fileID, index, err)
			}
		}

		hit := vector.SearchHit{
			Chunk: vector.Chunk{
				FileID:   fileID,
				Index:    index,
				Text:     text,
				Metadata: metadata,
			},
			// cosine distance = 1 - cosine similarity
			Score: float32(1.0 - distance),
		}

		if !filter.Matches(hit.Chunk) {
			continue
		}

		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	vector.SortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}

	s.logger.Debug("queried sqlite-vec",
		zap.String("collection", collection),
		zap.Int("results", len(hits)),
	)

	return hits, nil
}

// DeleteByFileID removes every chunk of the file inside one transaction, so
// readers never observe a partially deleted document.
func (s *Store) DeleteByFileID(ctx context.Context, collection, fileID string) error {
	dims, err := s.dimensions(ctx, collection)
	if err != nil {
		return err
	}
	if dims == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	chunksTbl := chunksTable(collection)
	vecTbl := vecTable(collection)

	rows, err := tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT rowid FROM %s WHERE file_id = ?`, chunksTbl), fileID,
	)
	if err != nil {
		return fmt.Errorf("querying rowids for deletion: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating rowids: %w", err)
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE rowid = ?`, vecTbl), rowID,
		); err != nil {
			return fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE file_id = ?`, chunksTbl), fileID,
	); err != nil {
		return fmt.Errorf("deleting chunks for file %s: %w", fileID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	s.logger.Debug("deleted file from sqlite-vec",
		zap.String("collection", collection),
		zap.String("file_id", fileID),
		zap.Int("chunks", len(rowIDs)),
	)

	return nil
}

// Count returns the number of chunks stored in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	dims, err := s.dimensions(ctx, collection)
	if err != nil {
		return 0, err
	}
	if dims == 0 {
		return 0, nil
	}

	var count int64
	err = s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, chunksTable(collection)),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting chunks in %q: %w", collection, err)
	}

	return count, nil
}

// ListFileIDs returns the distinct file ids in the collection, sorted.
func (s *Store) ListFileIDs(ctx context.Context, collection string) ([]string, error) {
	dims, err := s.dimensions(ctx, collection)
	if err != nil {
		return nil, err
	}
	if dims == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT DISTINCT file_id FROM %s ORDER BY file_id`, chunksTable(collection)),
	)
	if err != nil {
		return nil, fmt.Errorf("listing file ids in %q: %w", collection, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning file id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating file ids: %w", err)
	}

	return ids, nil
}

// Close releases resources held by the store.
func (s *Store) Close() error {
	return s.db.Close()
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

var _ vector.Store = (*Store)(nil)
