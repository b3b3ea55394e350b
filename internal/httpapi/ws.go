package httpapi

import (
	"github.com/gin-gonic/gin"
)

// handleWS upgrades to a websocket connection pushing alert and scene
// updates to a dashboard client (internal/wshub, adapted from the
// teacher's internal/websocket.Hub). Not part of spec.md's named
// endpoint list; a push companion to the polling /alerts and /scene
// endpoints above.
func (s *Server) handleWS(c *gin.Context) {
	if s.hub == nil {
		c.Status(404)
		return
	}
	if err := s.hub.ServeWS(c.Writer, c.Request); err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
	}
}
