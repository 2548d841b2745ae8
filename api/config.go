// Package api provides the HTTP API server for ingesting, querying, and
// managing documents.
package api

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Collection is the collection used when a request does not name one.
	Collection string
}

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
