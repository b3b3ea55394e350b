package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/physical-mcp/engine/internal/perception"
)

type healthResponse struct {
	Cameras       map[string]perception.Health `json:"cameras"`
	Provider      string                       `json:"provider"`
	Model         string                       `json:"model"`
	ReasoningMode string                       `json:"reasoning_mode"`
	Stats         interface{}                  `json:"stats"`
}

// handleHealth serves GET /health: per-camera health plus
// provider/model/reasoning_mode (spec §4.11).
func (s *Server) handleHealth(c *gin.Context) {
	now := time.Now().UTC()
	provider, model := s.engine.ProviderInfo()

	c.JSON(http.StatusOK, healthResponse{
		Cameras:       s.engine.Health(now),
		Provider:      provider,
		Model:         model,
		ReasoningMode: s.engine.ReasoningMode(),
		Stats:         s.tracker.Snapshot(now),
	})
}
