package api

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/quarryhq/quarry/pkg/ingest"
	"github.com/quarryhq/quarry/pkg/query"
	"github.com/quarryhq/quarry/pkg/vector"
)

// Server is the HTTP API server for the quarry document system.
type Server struct {
	config   Config
	pipeline *ingest.Pipeline
	router   *query.Router
	store    vector.Store
	logger   *zap.Logger
	app      *fiber.App
}

// NewServer creates a new API server. The store is injected alongside the
// pipeline so read-only endpoints can serve without a write path.
func NewServer(
	config Config,
	pipeline *ingest.Pipeline,
	router *query.Router,
	store vector.Store,
	logger *zap.Logger,
) (*Server, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("ingest pipeline is required")
	}
	if router == nil {
		return nil, fmt.Errorf("query router is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Collection == "" {
		config.Collection = "documents"
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	s := &Server{
		config:   config,
		pipeline: pipeline,
		router:   router,
		store:    store,
		logger:   logger,
		app:      app,
	}

	app.Get("/health", s.handleHealth)
	app.Get("/ids", s.handleListIDs)
	app.Get("/count", s.handleCount)
	app.Get("/stats", s.handleStats)
	app.Get("/stats/:collection", s.handleStats)
	app.Post("/query", s.handleQuery)
	app.Post("/query/agentic", s.handleAgenticQuery)
	app.Post("/upload", s.handleUpload)
	app.Delete("/documents/:file_id", s.handleDeleteDocument)

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
		zap.String("collection", s.config.Collection),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// collection resolves the collection for a request. A path parameter wins
// over the ?collection= query parameter, which wins over the default.
func (s *Server) collection(c *fiber.Ctx) string {
	if name := c.Params("collection"); name != "" {
		return name
	}
	if name := c.Query("collection"); name != "" {
		return name
	}
	return s.config.Collection
}
