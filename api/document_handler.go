package api

import (
	"errors"
	"io"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/extract"
	"github.com/quarryhq/quarry/pkg/ingest"
	"github.com/quarryhq/quarry/pkg/vector"
)

// handleHealth reports UP when the vector store answers, DOWN otherwise.
// A missing default collection is still healthy; nothing has been
// ingested yet.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	_, err := s.store.Count(c.Context(), s.config.Collection)
	if err != nil && !errors.Is(err, vector.ErrNotFound) {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "DOWN"})
	}

	return c.JSON(fiber.Map{"status": "UP"})
}

// handleListIDs returns the file IDs present in the collection.
func (s *Server) handleListIDs(c *fiber.Ctx) error {
	fileIDs, err := s.store.ListFileIDs(c.Context(), s.collection(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list file ids"})
	}

	return c.JSON(fiber.Map{
		"file_ids": fileIDs,
		"count":    len(fileIDs),
	})
}

// handleCount returns the number of stored chunks in the collection.
func (s *Server) handleCount(c *fiber.Ctx) error {
	count, err := s.store.Count(c.Context(), s.collection(c))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to count chunks"})
	}

	return c.JSON(fiber.Map{"count": count})
}

// handleStats returns document and chunk counts for the collection.
func (s *Server) handleStats(c *fiber.Ctx) error {
	ctx := c.Context()
	collection := s.collection(c)

	chunks, err := s.store.Count(ctx, collection)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to count chunks"})
	}

	fileIDs, err := s.store.ListFileIDs(ctx, collection)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to list file ids"})
	}

	return c.JSON(fiber.Map{
		"collection": collection,
		"documents":  len(fileIDs),
		"chunks":     chunks,
	})
}

// handleUpload ingests a document submitted as multipart form data. The
// form file field is "file"; an optional "file_id" field overrides the
// content-addressed default.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "multipart field 'file' is required"})
	}

	file, err := header.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "failed to open uploaded file"})
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "failed to read uploaded file"})
	}

	doc := ingest.Document{
		FileID:      c.FormValue("file_id"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Content:     content,
	}

	result, err := s.pipeline.Ingest(c.Context(), s.collection(c), doc)
	if err != nil {
		return s.ingestError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// handleDeleteDocument removes every chunk of a document.
func (s *Server) handleDeleteDocument(c *fiber.Ctx) error {
	fileID := c.Params("file_id")
	if fileID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "file_id parameter required"})
	}

	if err := s.pipeline.Delete(c.Context(), s.collection(c), fileID); err != nil {
		s.logger.Error("failed to delete document",
			zap.String("file_id", fileID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "failed to delete document"})
	}

	return c.JSON(fiber.Map{
		"file_id": fileID,
		"deleted": true,
	})
}

// ingestError maps pipeline failures onto HTTP statuses: malformed input
// is the client's fault, everything else is a server-side failure.
func (s *Server) ingestError(c *fiber.Ctx, err error) error {
	var stageErr *ingest.StageError
	status := fiber.StatusInternalServerError

	switch {
	case errors.Is(err, ingest.ErrEmptyDocument),
		errors.Is(err, extract.ErrUnsupportedType),
		errors.Is(err, extract.ErrEmptyContent),
		errors.Is(err, extract.ErrMalformedDocument):
		status = fiber.StatusBadRequest
	}

	body := ErrorResponse{Error: err.Error()}
	if errors.As(err, &stageErr) {
		s.logger.Warn("ingestion failed",
			zap.String("stage", string(stageErr.Stage)),
			zap.Error(stageErr.Err),
		)
	}

	return c.Status(status).JSON(body)
}
