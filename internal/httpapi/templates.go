package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/rules"
)

// ruleTemplate is a canned watch-rule starting point exposed at
// GET /templates, letting a client (dashboard or MCP tool) create a
// common rule without composing its condition text from scratch (spec
// §4.11 names the endpoint pair; the content of a template is left to
// the implementation).
type ruleTemplate struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Condition    string        `json:"condition"`
	Priority     core.Priority `json:"priority"`
	CooldownSecs int           `json:"cooldown_seconds"`
}

var ruleTemplates = []ruleTemplate{
	{ID: "person_detected", Name: "Person detected", Condition: "a person is visible in the frame", Priority: core.PriorityMedium, CooldownSecs: 60},
	{ID: "package_delivered", Name: "Package delivered", Condition: "a package or parcel has been left at the door", Priority: core.PriorityMedium, CooldownSecs: 1800},
	{ID: "vehicle_in_driveway", Name: "Vehicle in driveway", Condition: "a car or other vehicle is present in the driveway", Priority: core.PriorityLow, CooldownSecs: 300},
	{ID: "unusual_activity", Name: "Unusual activity at night", Condition: "there is movement or activity that looks out of place for a quiet night scene", Priority: core.PriorityHigh, CooldownSecs: 120},
	{ID: "pet_loose", Name: "Pet outside", Condition: "a dog or cat is visible unattended outdoors", Priority: core.PriorityLow, CooldownSecs: 600},
}

// handleListTemplates serves GET /templates.
func (s *Server) handleListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, ruleTemplates)
}

type createFromTemplateRequest struct {
	CameraID     string                  `json:"camera_id"`
	Notification core.NotificationTarget `json:"notification"`
	OwnerID      string                  `json:"owner_id"`
}

// handleCreateFromTemplate serves POST /templates/{id}/create: creates
// a WatchRule seeded from the named template, optionally scoped to a
// camera and routed to a notification target.
func (s *Server) handleCreateFromTemplate(c *gin.Context) {
	id := c.Param("id")
	var tmpl *ruleTemplate
	for i := range ruleTemplates {
		if ruleTemplates[i].ID == id {
			tmpl = &ruleTemplates[i]
			break
		}
	}
	if tmpl == nil {
		writeError(c, core.New(core.KindInvalidRequest, "unknown template id").WithCamera(id))
		return
	}

	var req createFromTemplateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	rule := s.rulesStore.Create(rules.Spec{
		Name:         tmpl.Name,
		Condition:    tmpl.Condition,
		CameraID:     req.CameraID,
		Priority:     tmpl.Priority,
		Enabled:      true,
		CooldownSecs: tmpl.CooldownSecs,
		Notification: req.Notification,
		OwnerID:      req.OwnerID,
	})
	c.JSON(http.StatusCreated, rule)
}
