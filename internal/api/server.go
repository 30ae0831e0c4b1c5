package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/kiln-llm/kiln/internal/inference"
	"github.com/kiln-llm/kiln/internal/logger"
)

// Server exposes the loaded engine over an OpenAI-compatible HTTP API. All
// generation requests funnel through the engine's turnstile, so handlers can
// run concurrently while the model itself serves one request at a time.
type Server struct {
	engine      *inference.Engine
	log         logger.Logger
	modelID     string
	fingerprint string
	clock       func() time.Time
}

// NewServer wraps an engine for serving. The system fingerprint identifies
// this process in responses; it is minted once per server.
func NewServer(engine *inference.Engine, log logger.Logger, modelID string) *Server {
	if modelID == "" {
		modelID = "kiln"
	}
	return &Server{
		engine:      engine,
		log:         log,
		modelID:     modelID,
		fingerprint: "fp_" + uuid.NewString(),
		clock:       time.Now,
	}
}

// Register installs middleware and routes on e. CORS is wide open, matching
// the expectation that local UIs talk to this server directly.
func (s *Server) Register(e *echo.Echo) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLogger())
	e.Use(middleware.CORS("*"))

	e.POST("/v1/chat/completions", s.handleChatCompletions)
	e.GET("/v1/models", s.handleListModels)
	e.GET("/healthz", s.handleHealth)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"object": "list",
		"data": []map[string]any{{
			"id":       s.modelID,
			"object":   "model",
			"created":  s.clock().Unix(),
			"owned_by": "local",
		}},
	})
}
