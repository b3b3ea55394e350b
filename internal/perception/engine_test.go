package perception

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/physical-mcp/engine/internal/alertlog"
	"github.com/physical-mcp/engine/internal/config"
	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/notify"
	"github.com/physical-mcp/engine/internal/rules"
	"github.com/physical-mcp/engine/internal/scene"
	"github.com/physical-mcp/engine/internal/stats"
	"github.com/physical-mcp/engine/internal/vlm"
)

// recordingChannel captures every delivery it receives, standing in for
// a real notify.Channel in tests.
type recordingChannel struct {
	kind      core.ChannelKind
	delivered []core.AlertEvent
}

func (c *recordingChannel) Kind() core.ChannelKind { return c.kind }
func (c *recordingChannel) Deliver(ctx context.Context, event core.AlertEvent, target core.NotificationTarget) error {
	c.delivered = append(c.delivered, event)
	return nil
}

func newTestEngine(t *testing.T, provider vlm.Provider) (*Engine, *recordingChannel) {
	t.Helper()
	cfg := config.Default()
	rulesStore := rules.New()
	sceneStore := scene.NewStore()
	alertLog := alertlog.New(100, "")
	rec := &recordingChannel{kind: core.ChannelWebhook}
	dispatcher := notify.New([]notify.Channel{rec}, notify.Options{Workers: 1, QueueSize: 16}, zerolog.Nop())
	tracker := stats.NewTracker(stats.Budget{})

	e := New(cfg, rulesStore, sceneStore, alertLog, dispatcher, tracker, provider, zerolog.Nop())
	return e, rec
}

func waitForDelivery(t *testing.T, rec *recordingChannel, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.delivered) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d deliveries, got %d", n, len(rec.delivered))
}

func TestEngineReasoningModeReflectsProvider(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	assert.Equal(t, "client", e.ReasoningMode())

	e2, _ := newTestEngine(t, vlm.NewMock())
	assert.Equal(t, "server", e2.ReasoningMode())
}

func TestEngineEmitStartupWarningOnlyInClientMode(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.EmitStartupWarning()
	events := e.alertLog.Query(alertlog.Filter{EventType: "startup_warning"})
	require.Len(t, events, 1)

	e2, _ := newTestEngine(t, vlm.NewMock())
	e2.EmitStartupWarning()
	events2 := e2.alertLog.Query(alertlog.Filter{EventType: "startup_warning"})
	assert.Empty(t, events2)
}

func TestEngineConfigureProviderDowngradeEmitsRuntimeSwitchWarning(t *testing.T) {
	e, _ := newTestEngine(t, vlm.NewMock())
	result := e.ConfigureProvider(nil)
	assert.True(t, result.FallbackWarningEmitted)
	assert.Equal(t, "runtime_switch", result.FallbackWarningReason)
	assert.Equal(t, "client", e.ReasoningMode())

	events := e.alertLog.Query(alertlog.Filter{EventType: "startup_warning"})
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "runtime switch")
}

func TestEngineConfigureProviderUpgradeIsSilent(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	result := e.ConfigureProvider(vlm.NewMock())
	assert.False(t, result.FallbackWarningEmitted)
	assert.Equal(t, "server", e.ReasoningMode())
	assert.Empty(t, e.alertLog.Query(alertlog.Filter{}))
}

func newTestCameraLoop(cameraID string) *cameraLoop {
	return &cameraLoop{
		camera:  core.Camera{ID: cameraID, Name: "Front Door"},
		health:  newHealthTracker(),
		pending: newPendingQueue(),
	}
}

func TestEngineAnalyzeServerSideTriggersAndDispatches(t *testing.T) {
	mock := vlm.NewMock()
	mock.EvaluateFunc = func(ctx context.Context, imageBytes []byte, rs []vlm.RuleSpec, sceneContext string, prompt vlm.PromptSpec) ([]vlm.RuleEvaluation, error) {
		out := make([]vlm.RuleEvaluation, len(rs))
		for i, r := range rs {
			out[i] = vlm.RuleEvaluation{RuleID: r.RuleID, Triggered: true, Confidence: 0.95, Reasoning: "a person is visible"}
		}
		return out, nil
	}

	e, rec := newTestEngine(t, mock)
	rule := e.rulesStore.Create(rules.Spec{
		Name: "person", Condition: "a person is visible", CameraID: "cam1",
		Priority: core.PriorityHigh, Enabled: true,
		Notification: core.NotificationTarget{Channel: core.ChannelWebhook},
	})

	loop := newTestCameraLoop("cam1")
	frame := core.Frame{CameraID: "cam1", Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Sequence: 1, Timestamp: time.Now()}

	e.analyzeServerSide(context.Background(), loop, mock, frame, []core.WatchRule{rule}, "", time.Now())

	events := e.alertLog.Query(alertlog.Filter{EventType: "watch_rule_triggered"})
	require.Len(t, events, 1)
	assert.Equal(t, rule.ID, events[0].RuleID)

	waitForDelivery(t, rec, 1)
	assert.Equal(t, rule.ID, rec.delivered[0].RuleID)

	snap := loop.health.snapshot(time.Now())
	assert.Equal(t, StatusRunning, snap.Status)
}

func TestEngineAnalyzeServerSideProviderErrorEntersBackoff(t *testing.T) {
	mock := vlm.NewMock()
	mock.AnalyzeFunc = func(ctx context.Context, imageBytes []byte, priorContext string, prompt vlm.PromptSpec) (vlm.SceneAnalysis, error) {
		return vlm.SceneAnalysis{}, core.New(core.KindProviderError, "timeout")
	}

	e, _ := newTestEngine(t, mock)
	loop := newTestCameraLoop("cam1")
	frame := core.Frame{CameraID: "cam1", Data: []byte{0xFF, 0xD8, 0xFF, 0xD9}, Sequence: 1, Timestamp: time.Now()}
	now := time.Now()

	e.analyzeServerSide(context.Background(), loop, mock, frame, nil, "", now)

	events := e.alertLog.Query(alertlog.Filter{EventType: "provider_error"})
	require.Len(t, events, 1)

	snap := loop.health.snapshot(now)
	assert.Equal(t, StatusBackoff, snap.Status)
	assert.Equal(t, 1, snap.ConsecutiveErrors)
}

func TestEngineReportRuleEvaluationTriggersAndDispatches(t *testing.T) {
	e, rec := newTestEngine(t, nil)
	rule := e.rulesStore.Create(rules.Spec{
		Name: "person", Condition: "a person is visible", CameraID: "cam1",
		Priority: core.PriorityHigh, Enabled: true,
		Notification: core.NotificationTarget{Channel: core.ChannelWebhook},
	})

	loop := newTestCameraLoop("cam1")
	e.camerasMu.Lock()
	e.cameras["cam1"] = loop
	e.camerasMu.Unlock()

	pending := loop.pending.push(core.PendingAlert{CameraID: "cam1", Candidates: []core.WatchRule{rule}})

	events, err := e.ReportRuleEvaluation("cam1", pending.ID, []RuleReport{
		{RuleID: rule.ID, Triggered: true, Confidence: 0.9, Reasoning: "person detected"},
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, rule.ID, events[0].RuleID)

	waitForDelivery(t, rec, 1)
	assert.Empty(t, loop.pending.list())
}

func TestEngineReportRuleEvaluationUnknownPendingIsError(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	loop := newTestCameraLoop("cam1")
	e.camerasMu.Lock()
	e.cameras["cam1"] = loop
	e.camerasMu.Unlock()

	_, err := e.ReportRuleEvaluation("cam1", "pend_nonexistent", nil)
	assert.Error(t, err)
}

func TestEngineReportRuleEvaluationUnknownCameraIsError(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	_, err := e.ReportRuleEvaluation("missing", "pend_x", nil)
	assert.ErrorIs(t, err, core.ErrCameraNotFound)
}
