package extract

import "errors"

var (
	// ErrUnsupportedType is returned when no extractor handles the content type.
	ErrUnsupportedType = errors.New("unsupported content type")

	// ErrMalformedDocument is returned when a document cannot be parsed.
	ErrMalformedDocument = errors.New("malformed document")

	// ErrEmptyContent is returned when a document yields no text.
	ErrEmptyContent = errors.New("document contains no text")
)
