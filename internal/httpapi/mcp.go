package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/perception"
	"github.com/physical-mcp/engine/internal/vlm"
)

// reportRuleEvaluationRequest mirrors an MCP client's
// report_rule_evaluation tool call: its verdicts for the candidate
// rules carried on a previously-enqueued camera_alert_pending_eval
// entry (spec §3 PendingAlert, §4.8 step 6).
type reportRuleEvaluationRequest struct {
	CameraID  string `json:"camera_id" binding:"required"`
	PendingID string `json:"pending_id" binding:"required"`
	Reports   []struct {
		RuleID     string  `json:"rule_id"`
		Triggered  bool    `json:"triggered"`
		Confidence float64 `json:"confidence"`
		Reasoning  string  `json:"reasoning"`
	} `json:"reports"`
}

// handleReportRuleEvaluation serves POST /mcp/report_rule_evaluation:
// the client-side (fallback mode) counterpart to a provider's
// evaluate_rules response, consuming one pending entry and emitting
// any watch_rule_triggered AlertEvents the reported verdicts earn.
func (s *Server) handleReportRuleEvaluation(c *gin.Context) {
	var req reportRuleEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	reports := make([]perception.RuleReport, 0, len(req.Reports))
	for _, r := range req.Reports {
		reports = append(reports, perception.RuleReport{
			RuleID:     r.RuleID,
			Triggered:  r.Triggered,
			Confidence: r.Confidence,
			Reasoning:  r.Reasoning,
		})
	}

	events, err := s.engine.ReportRuleEvaluation(req.CameraID, req.PendingID, reports)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": events})
}

// configureProviderRequest mirrors the configure_provider MCP tool:
// switching (or clearing) the active VLM provider at runtime (spec
// §4.8 "Runtime provider switch").
type configureProviderRequest struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
}

// handleConfigureProvider serves POST /mcp/configure_provider. An
// empty/omitted provider name downgrades to client-side mode.
func (s *Server) handleConfigureProvider(c *gin.Context) {
	var req configureProviderRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}

	var provider vlm.Provider
	if req.Provider != "" {
		p, err := vlm.New(req.Provider, vlm.Config{
			APIKey:      req.APIKey,
			Model:       req.Model,
			BaseURL:     req.BaseURL,
			CallTimeout: s.cfg.Reasoning.CallTimeout(),
		})
		if err != nil {
			writeError(c, core.Wrap(core.KindInvalidRequest, "constructing VLM provider", err))
			return
		}
		provider = p
	}

	result := s.engine.ConfigureProvider(provider)
	c.JSON(http.StatusOK, result)
}
