package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/quarryhq/quarry/pkg/agent"
	"github.com/quarryhq/quarry/pkg/query"
)

// handleQuery handles POST /query requests. The JSON body is a
// query.Request; mode defaults to semantic.
func (s *Server) handleQuery(c *fiber.Ctx) error {
	return s.routeQuery(c, "")
}

// handleAgenticQuery handles POST /query/agentic requests. The mode is
// forced to agentic regardless of the body.
func (s *Server) handleAgenticQuery(c *fiber.Ctx) error {
	return s.routeQuery(c, query.ModeAgentic)
}

func (s *Server) routeQuery(c *fiber.Ctx, forceMode query.Mode) error {
	var req query.Request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "invalid request body"})
	}

	if forceMode != "" {
		req.Mode = forceMode
	}
	if len(req.Collections) == 0 {
		req.Collections = []string{s.collection(c)}
	}

	resp, err := s.router.Route(c.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, query.ErrInvalidQuery), errors.Is(err, agent.ErrEmptyQuery):
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
		case errors.Is(err, agent.ErrExecution):
			return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{Error: err.Error()})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
		}
	}

	return c.JSON(resp)
}
