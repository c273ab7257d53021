package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/rnmt/internal/logger"
)

type Server struct {
	service  *TranslationService
	provider EngineProvider
}

func NewServer(provider EngineProvider) *Server {
	return &Server{
		service:  NewTranslationService(provider),
		provider: provider,
	}
}

// Service exposes the translation service for configuration.
func (s *Server) Service() *TranslationService { return s.service }

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/models", s.handleListModels)
	e.POST("/v1/translations", s.handleCreateTranslation)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(c *echo.Context) error {
	names, err := s.provider.ListModels()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	list := ModelList{Object: "list", Data: make([]ModelInfo, 0, len(names))}
	for _, name := range names {
		list.Data = append(list.Data, ModelInfo{ID: name, Object: "model", OwnedBy: "rnmt"})
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleCreateTranslation(c *echo.Context) error {
	req, err := decodeJSON[TranslationRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}

	ctx := c.Request().Context()
	resp, err := s.service.Translate(ctx, &req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			return writeBadRequest(c, err.Error())
		case errors.Is(err, ErrModelNotFound):
			return writeNotFound(c, err.Error())
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return writeError(c, http.StatusServiceUnavailable, "request_cancelled", err.Error(), "", "")
		}
		logger.FromContext(ctx).Error("translation failed", "model", req.Model, "error", err)
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	return c.JSON(http.StatusOK, resp)
}

// WithLogger stores log in every request context.
func WithLogger(log logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			req := c.Request()
			c.SetRequest(req.WithContext(logger.WithContext(req.Context(), log)))
			return next(c)
		}
	}
}
