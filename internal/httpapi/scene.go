package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleScene serves GET /scene: a JSON map camera_id -> SceneState
// (spec §4.11).
func (s *Server) handleScene(c *gin.Context) {
	c.JSON(http.StatusOK, s.sceneStore.All())
}
