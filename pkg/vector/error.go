package vector

import "errors"

var (
	// ErrNotFound is returned when a document is not found in the vector store.
	ErrNotFound = errors.New("document not found")

	// ErrSchemaMismatch is returned when a vector's dimensionality does not
	// match the collection it is written to. This is a configuration bug and
	// is never retried.
	ErrSchemaMismatch = errors.New("embedding dimensionality does not match collection schema")

	// ErrUnavailable is returned when the vector store cannot be reached.
	ErrUnavailable = errors.New("vector store unavailable")
)
