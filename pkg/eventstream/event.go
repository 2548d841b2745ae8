package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeDocumentIngested is emitted after a document's chunks are stored.
	EventTypeDocumentIngested = "quarry.document.ingested"

	// EventTypeDocumentDeleted is emitted after a document's chunks are removed.
	EventTypeDocumentDeleted = "quarry.document.deleted"
)

// DocumentEvent is a transport-neutral event payload for a document
// lifecycle change in a collection.
type DocumentEvent struct {
	SchemaVersion int       `json:"schema_version"`
	EventType     string    `json:"event_type"`
	EventID       string    `json:"event_id"`
	EmittedAt     time.Time `json:"emitted_at"`
	Collection    string    `json:"collection"`
	FileID        string    `json:"file_id"`
	ChunkCount    int       `json:"chunk_count,omitempty"`
	ContentType   string    `json:"content_type,omitempty"`
}

// NewDocumentIngestedEvent builds an ingestion event with a fresh event ID.
func NewDocumentIngestedEvent(collection, fileID, contentType string, chunkCount int) *DocumentEvent {
	return &DocumentEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDocumentIngested,
		EventID:       uuid.New().String(),
		EmittedAt:     time.Now().UTC(),
		Collection:    collection,
		FileID:        fileID,
		ChunkCount:    chunkCount,
		ContentType:   contentType,
	}
}

// NewDocumentDeletedEvent builds a deletion event with a fresh event ID.
func NewDocumentDeletedEvent(collection, fileID string) *DocumentEvent {
	return &DocumentEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeDocumentDeleted,
		EventID:       uuid.New().String(),
		EmittedAt:     time.Now().UTC(),
		Collection:    collection,
		FileID:        fileID,
	}
}
