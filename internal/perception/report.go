package perception

import (
	"time"

	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/rules"
)

// RuleReport is one external (MCP client-side) judgment about whether a
// previously-enqueued camera_alert_pending_eval candidate rule held.
type RuleReport struct {
	RuleID     string
	Triggered  bool
	Confidence float64
	Reasoning  string
}

// ReportRuleEvaluation consumes a pending alert in client-side mode: an
// external MCP client has evaluated the candidate rules carried on a
// camera_alert_pending_eval AlertEvent and reports its verdicts back.
// The pending entry is removed and any verdicts meeting the trigger
// rule are turned into watch_rule_triggered AlertEvents and dispatched,
// exactly as analyzeServerSide does for a direct provider response
// (spec §4.8 step 6's counterpart on the reporting side).
func (e *Engine) ReportRuleEvaluation(cameraID, pendingID string, reports []RuleReport) ([]core.AlertEvent, error) {
	e.camerasMu.RLock()
	loop, ok := e.cameras[cameraID]
	e.camerasMu.RUnlock()
	if !ok {
		return nil, core.ErrCameraNotFound
	}

	pending, ok := loop.pending.remove(pendingID)
	if !ok {
		return nil, core.New(core.KindInvalidRequest, "no such pending evaluation for this camera")
	}

	byRuleID := make(map[string]core.WatchRule, len(pending.Candidates))
	for _, r := range pending.Candidates {
		byRuleID[r.ID] = r
	}

	inputs := make([]rules.EvalInput, 0, len(reports))
	for _, rep := range reports {
		r, ok := byRuleID[rep.RuleID]
		if !ok {
			continue
		}
		inputs = append(inputs, rules.EvalInput{
			Rule:       r,
			Triggered:  rep.Triggered,
			Confidence: rep.Confidence,
			Reasoning:  rep.Reasoning,
		})
	}

	now := time.Now().UTC()
	triggered := e.rulesStore.Evaluate(inputs, loop.camera.ID, loop.camera.Name, pending.Thumbnail, now)
	for _, event := range triggered {
		stored := e.alertLog.AppendCorrelated(event, e.log)
		rule, ok := byRuleID[stored.RuleID]
		if !ok {
			continue
		}
		e.dispatcher.Dispatch(stored, rule.Notification)
	}
	return triggered, nil
}
