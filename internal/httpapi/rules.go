package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/rules"
)

// handleListRules serves GET /rules, optionally filtered by
// ?camera_id= and ?enabled= (spec §4.11/§4.7).
func (s *Server) handleListRules(c *gin.Context) {
	filter := rules.Filter{CameraID: c.Query("camera_id")}
	if raw := c.Query("enabled"); raw != "" {
		v := raw == "true"
		filter.Enabled = &v
	}
	c.JSON(http.StatusOK, s.rulesStore.List(filter))
}

type createRuleRequest struct {
	Name         string                   `json:"name" binding:"required"`
	Condition    string                   `json:"condition" binding:"required"`
	CameraID     string                   `json:"camera_id"`
	Priority     core.Priority            `json:"priority"`
	Enabled      *bool                    `json:"enabled"`
	CooldownSecs int                      `json:"cooldown_seconds"`
	Notification core.NotificationTarget  `json:"notification"`
	OwnerID      string                   `json:"owner_id"`
}

func (req createRuleRequest) toSpec() rules.Spec {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	priority := req.Priority
	if priority == "" {
		priority = core.PriorityMedium
	}
	return rules.Spec{
		Name:         req.Name,
		Condition:    req.Condition,
		CameraID:     req.CameraID,
		Priority:     priority,
		Enabled:      enabled,
		CooldownSecs: req.CooldownSecs,
		Notification: req.Notification,
		OwnerID:      req.OwnerID,
	}
}

// handleCreateRule serves POST /rules.
func (s *Server) handleCreateRule(c *gin.Context) {
	var req createRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	rule := s.rulesStore.Create(req.toSpec())
	c.JSON(http.StatusCreated, rule)
}

// handleDeleteRule serves DELETE /rules/{id}.
func (s *Server) handleDeleteRule(c *gin.Context) {
	if err := s.rulesStore.Delete(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleToggleRule serves PUT /rules/{id}/toggle.
func (s *Server) handleToggleRule(c *gin.Context) {
	rule, err := s.rulesStore.Toggle(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}
