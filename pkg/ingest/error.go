package ingest

import (
	"errors"
	"fmt"
)

// ErrEmptyDocument indicates an ingest request carried no content bytes.
var ErrEmptyDocument = errors.New("document has no content")

// ErrMissingCollection indicates an ingest request without a target collection.
var ErrMissingCollection = errors.New("collection is required")

// StageError reports the pipeline stage at which ingestion failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingestion failed at stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageFailure(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
