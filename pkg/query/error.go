package query

import "errors"

// ErrInvalidQuery is returned when a request fails validation before any
// backend work starts.
var ErrInvalidQuery = errors.New("invalid query")
