package embeddings

import "errors"

var (
	// ErrProvider is returned when the embedding provider fails transiently
	// (timeout, 5xx, malformed response). Callers may retry with backoff.
	ErrProvider = errors.New("embedding provider failed")

	// ErrProviderFatal is returned when the provider rejects the request for
	// a non-transient reason (bad credentials, quota exhausted, invalid
	// input). Never retried.
	ErrProviderFatal = errors.New("embedding provider rejected request")
)
