package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/physical-mcp/engine/internal/core"
)

// authMiddleware enforces the bearer token spec §4.11 requires on
// mutating endpoints, the stream/frame endpoints and camera discovery when
// vision_api.auth_token is configured. With no token configured, every
// request passes.
func (s *Server) authMiddleware() gin.HandlerFunc {
	token := s.cfg.VisionAPI.AuthToken
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		if header == "Bearer "+token {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{
			Code:    string(core.KindUnauthorized),
			Message: "missing or invalid bearer token",
		})
	}
}
