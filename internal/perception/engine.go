// Package perception implements the central per-camera control loop
// (C8) described in spec.md §4.8: it composes capture (C1/C2), change
// detection (C3), sampling (C4), scene state (C5), VLM invocation (C6),
// rule evaluation (C7), and alert/health bookkeeping into one
// independent loop per camera, in both server-side (VLM configured)
// and client-side (fallback, no VLM) mode.
//
// The per-camera-goroutine-plus-shared-stores shape is grounded on the
// teacher's internal/core/manager.go camera lifecycle (one managed
// resource per camera id, opened/closed independently), generalized
// from a single capture goroutine to this package's multi-stage
// pipeline.
package perception

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/physical-mcp/engine/internal/alertlog"
	"github.com/physical-mcp/engine/internal/capture"
	"github.com/physical-mcp/engine/internal/changedetect"
	"github.com/physical-mcp/engine/internal/config"
	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/notify"
	"github.com/physical-mcp/engine/internal/rules"
	"github.com/physical-mcp/engine/internal/sampler"
	"github.com/physical-mcp/engine/internal/scene"
	"github.com/physical-mcp/engine/internal/stats"
	"github.com/physical-mcp/engine/internal/vlm"
)

// tickPeriod is the base loop period (spec §4.8 step 8: "base period
// ~= min(1s, 1/FPS)").
const tickPeriod = 1 * time.Second

// maxConsecutiveStaleTicks bounds how long a camera may sit in
// "degraded" on frame staleness before the loop gives up and reports
// offline (spec §4.8: "->offline if frame source fails to reopen after
// N attempts" — capture.Source owns the actual reopen/backoff loop, so
// the perception loop approximates "N attempts" as this many
// consecutive stale reads at tick granularity).
const maxConsecutiveStaleTicks = 30

// backoffBase/backoffMax are the provider-error backoff bounds (spec
// §4.8: "start 5s, doubling, capped at 300s").
const (
	backoffBase = 5 * time.Second
	backoffMax  = 300 * time.Second
)

// Engine owns every camera's perception loop plus the shared stores
// they read and write.
type Engine struct {
	cfg        *config.Config
	rulesStore *rules.Store
	sceneStore *scene.Store
	alertLog   *alertlog.Log
	dispatcher *notify.Dispatcher
	tracker    *stats.Tracker
	thresholds changedetect.Thresholds
	samplerOpts sampler.Options
	log        zerolog.Logger

	providerMu   sync.RWMutex
	provider     vlm.Provider
	providerName string

	camerasMu sync.RWMutex
	cameras   map[string]*cameraLoop
}

// cameraLoop is one camera's independent goroutine plus its private
// working state.
type cameraLoop struct {
	camera  core.Camera
	source  *capture.Source
	buf     *capture.Buffer
	sampler *sampler.Sampler
	health  *healthTracker
	pending *pendingQueue

	lastAnalyzed   core.Frame
	haveAnalyzed   bool
	staleTicks     int

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Engine. provider may be nil, meaning client-side
// (fallback) mode; callers typically pass the result of vlm.New when
// cfg.Reasoning.ServerSideEnabled(), and nil otherwise.
func New(cfg *config.Config, rulesStore *rules.Store, sceneStore *scene.Store, alertLog *alertlog.Log, dispatcher *notify.Dispatcher, tracker *stats.Tracker, provider vlm.Provider, log zerolog.Logger) *Engine {
	e := &Engine{
		cfg:        cfg,
		rulesStore: rulesStore,
		sceneStore: sceneStore,
		alertLog:   alertLog,
		dispatcher: dispatcher,
		tracker:    tracker,
		thresholds: changedetect.Thresholds{
			Minor:    cfg.Perception.MinorThreshold,
			Moderate: cfg.Perception.ModerateThreshold,
			Major:    cfg.Perception.MajorThreshold,
		},
		samplerOpts: sampler.Options{
			CooldownSeconds:  cfg.Perception.CooldownSeconds,
			DebounceSeconds:  cfg.Perception.DebounceSeconds,
			HeartbeatSeconds: cfg.Perception.HeartbeatSeconds,
		},
		log:      log,
		provider: provider,
		cameras:  make(map[string]*cameraLoop),
	}
	if provider != nil {
		e.providerName = provider.ProviderName()
		tracker.SetProvider(provider.ProviderName(), provider.ModelName())
	}
	return e
}

// EmitStartupWarning appends the fallback-mode startup_warning AlertEvent
// spec §4.8 requires when no VLM provider is configured at start.
func (e *Engine) EmitStartupWarning() {
	e.providerMu.RLock()
	hasProvider := e.provider != nil
	e.providerMu.RUnlock()
	if hasProvider {
		return
	}
	e.alertLog.AppendCorrelated(core.AlertEvent{
		EventType: core.EventStartupWarning,
		Message:   "no VLM provider configured at startup; running in client-side (fallback) mode. Configure reasoning.provider to enable server-side analysis.",
	}, e.log)
}

// ReasoningMode reports the current mode for /health (spec §4.11).
func (e *Engine) ReasoningMode() string {
	e.providerMu.RLock()
	defer e.providerMu.RUnlock()
	if e.provider == nil {
		return "client"
	}
	return "server"
}

// ProviderInfo returns the active provider/model name, empty in
// client-side mode.
func (e *Engine) ProviderInfo() (provider, model string) {
	e.providerMu.RLock()
	defer e.providerMu.RUnlock()
	if e.provider == nil {
		return "", ""
	}
	return e.provider.ProviderName(), e.provider.ModelName()
}

// ConfigureProviderResult is configure_provider's response payload
// (spec §4.8).
type ConfigureProviderResult struct {
	FallbackWarningEmitted bool   `json:"fallback_warning_emitted"`
	FallbackWarningReason  string `json:"fallback_warning_reason"`
}

// ConfigureProvider switches the active provider at runtime. Passing a
// nil provider downgrades to client-side mode and emits a
// startup_warning documenting the runtime switch (spec §4.8).
func (e *Engine) ConfigureProvider(provider vlm.Provider) ConfigureProviderResult {
	e.providerMu.Lock()
	wasServerSide := e.provider != nil
	e.provider = provider
	e.providerMu.Unlock()

	if provider == nil {
		if wasServerSide {
			e.alertLog.AppendCorrelated(core.AlertEvent{
				EventType: core.EventStartupWarning,
				Message:   "VLM provider deconfigured via runtime switch; falling back to client-side (fallback) mode.",
			}, e.log)
			return ConfigureProviderResult{FallbackWarningEmitted: true, FallbackWarningReason: "runtime_switch"}
		}
		return ConfigureProviderResult{}
	}

	e.tracker.SetProvider(provider.ProviderName(), provider.ModelName())
	return ConfigureProviderResult{}
}

// AddCamera registers and starts capture + a perception loop for cam.
func (e *Engine) AddCamera(ctx context.Context, cam core.Camera) error {
	captureOpts := capture.DefaultOptions()
	if e.cfg.Perception.OpenTimeoutSeconds > 0 {
		captureOpts.OpenTimeout = time.Duration(e.cfg.Perception.OpenTimeoutSeconds) * time.Second
	}
	if e.cfg.Perception.StalenessSeconds > 0 {
		captureOpts.StalenessWindow = time.Duration(e.cfg.Perception.StalenessSeconds) * time.Second
	}
	if e.cfg.Perception.DefaultFPS > 0 {
		captureOpts.FPS = e.cfg.Perception.DefaultFPS
	}
	if cam.FPS > 0 {
		captureOpts.FPS = cam.FPS
	}

	buf := capture.NewBuffer(e.cfg.Perception.FrameBufferCapacity)
	src := capture.NewSource(cam, buf, captureOpts, e.log)

	loop := &cameraLoop{
		camera:  cam,
		source:  src,
		buf:     buf,
		sampler: sampler.New(e.samplerOpts),
		health:  newHealthTracker(),
		pending: newPendingQueue(),
	}

	if err := src.Open(ctx); err != nil {
		if kind, ok := core.KindOf(err); ok && (kind == core.KindCameraNotAvailable || kind == core.KindCameraOpenTimeout) {
			loop.health.markOffline()
		}
		e.camerasMu.Lock()
		e.cameras[cam.ID] = loop
		e.camerasMu.Unlock()
		return err
	}

	e.camerasMu.Lock()
	e.cameras[cam.ID] = loop
	e.camerasMu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	loop.cancel = cancel
	loop.done = make(chan struct{})
	go e.runLoop(runCtx, loop)
	return nil
}

// RemoveCamera stops and unregisters a camera's loop.
func (e *Engine) RemoveCamera(cameraID string) {
	e.camerasMu.Lock()
	loop, ok := e.cameras[cameraID]
	delete(e.cameras, cameraID)
	e.camerasMu.Unlock()
	if !ok {
		return
	}
	if loop.cancel != nil {
		loop.cancel()
	}
	_ = loop.source.Close()
	if loop.done != nil {
		<-loop.done
	}
}

// Close stops every camera loop. Intended for graceful shutdown (spec
// §5): perception loops are cancelled after their current tick.
func (e *Engine) Close() {
	e.camerasMu.RLock()
	ids := make([]string, 0, len(e.cameras))
	for id := range e.cameras {
		ids = append(ids, id)
	}
	e.camerasMu.RUnlock()
	for _, id := range ids {
		e.RemoveCamera(id)
	}
}

// Health returns a snapshot of every registered camera's health,
// flagging cameras referenced only by a rule (never configured) as
// unreachable per spec §9's open question.
func (e *Engine) Health(now time.Time) map[string]Health {
	e.camerasMu.RLock()
	defer e.camerasMu.RUnlock()
	out := make(map[string]Health, len(e.cameras))
	for id, loop := range e.cameras {
		out[id] = loop.health.snapshot(now)
	}
	for _, r := range e.rulesStore.List(rules.Filter{}) {
		if r.CameraID == "" {
			continue
		}
		if _, ok := out[r.CameraID]; !ok {
			out[r.CameraID] = Health{Status: StatusOffline, Unreachable: true}
		}
	}
	return out
}

// ListCameras returns every registered camera's current core.Camera,
// sorted by id.
func (e *Engine) ListCameras() []core.Camera {
	e.camerasMu.RLock()
	defer e.camerasMu.RUnlock()
	out := make([]core.Camera, 0, len(e.cameras))
	for _, loop := range e.cameras {
		out = append(out, loop.camera)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Camera returns the registered camera loop's current core.Camera, if any.
func (e *Engine) Camera(cameraID string) (core.Camera, bool) {
	e.camerasMu.RLock()
	defer e.camerasMu.RUnlock()
	loop, ok := e.cameras[cameraID]
	if !ok {
		return core.Camera{}, false
	}
	return loop.camera, true
}

// Buffer exposes a camera's frame buffer, used by the HTTP surface for
// /frame and /stream.
func (e *Engine) Buffer(cameraID string) (*capture.Buffer, bool) {
	e.camerasMu.RLock()
	defer e.camerasMu.RUnlock()
	loop, ok := e.cameras[cameraID]
	if !ok {
		return nil, false
	}
	return loop.buf, true
}

// PendingAlerts lists a camera's queued client-side evaluation requests.
func (e *Engine) PendingAlerts(cameraID string) ([]core.PendingAlert, bool) {
	e.camerasMu.RLock()
	defer e.camerasMu.RUnlock()
	loop, ok := e.cameras[cameraID]
	if !ok {
		return nil, false
	}
	return loop.pending.list(), true
}

func (e *Engine) runLoop(ctx context.Context, loop *cameraLoop) {
	defer close(loop.done)
	ticker := time.NewTicker(tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx, loop)
		}
	}
}

// tick runs spec §4.8's 8-step sequence once for one camera.
func (e *Engine) tick(ctx context.Context, loop *cameraLoop) {
	now := time.Now().UTC()

	// Rules hot-reload: checked on each tick per spec §4.7, ahead of
	// rule selection so a just-edited file is visible to this tick.
	if _, err := e.rulesStore.MaybeReload(); err != nil {
		e.log.Warn().Err(err).Msg("rules hot-reload failed")
	}

	// Step 1: capture.
	frame, err := loop.source.GrabFrame()
	if err != nil {
		loop.staleTicks++
		if kind, ok := core.KindOf(err); ok && kind == core.KindCameraDisconnected {
			loop.health.markStale()
		}
		if loop.staleTicks >= maxConsecutiveStaleTicks {
			loop.health.markOffline()
		}
		return
	}
	loop.staleTicks = 0
	loop.health.markFrame(now)

	// Step 2: detect change vs. last *analyzed* frame.
	var change core.ChangeResult
	if loop.haveAnalyzed {
		change = changedetect.Compare(loop.lastAnalyzed, frame, e.thresholds)
	} else {
		change = core.ChangeResult{Level: core.ChangeMajor, Description: "first frame"}
	}

	// Step 3: active rules for this camera.
	activeRules := e.rulesStore.ActiveFor(loop.camera.ID, now)

	// Step 4: gate.
	decision := loop.sampler.Gate(loop.camera.ID, change, len(activeRules) > 0, e.tracker.Exceeded(now), now)
	if !decision.Analyze {
		// Step 5: skip.
		return
	}

	e.providerMu.RLock()
	provider := e.provider
	e.providerMu.RUnlock()

	// A provider in backoff is not called again before backoff_until;
	// the tick is treated like a skip so the next tick's change
	// comparison still runs against the last successfully analyzed
	// frame (spec §4.8 scenario 4's call-interval sequence).
	if provider != nil && loop.health.inBackoff(now) {
		return
	}

	loop.lastAnalyzed = frame
	loop.haveAnalyzed = true
	thumbnail := thumbnailOf(frame)

	if provider == nil {
		// Step 6: client-side mode.
		e.enqueuePending(loop, frame, activeRules, thumbnail, now)
		return
	}

	// Step 7: server-side mode.
	e.analyzeServerSide(ctx, loop, provider, frame, activeRules, thumbnail, now)
}

func (e *Engine) enqueuePending(loop *cameraLoop, frame core.Frame, activeRules []core.WatchRule, thumbnail string, now time.Time) {
	pending := loop.pending.push(core.PendingAlert{
		CameraID:   loop.camera.ID,
		Thumbnail:  thumbnail,
		Candidates: activeRules,
		CreatedAt:  now,
	})
	e.alertLog.AppendCorrelated(core.AlertEvent{
		EventType:  core.EventCameraAlertPendingEval,
		CameraID:   loop.camera.ID,
		CameraName: loop.camera.Name,
		Message:    fmt.Sprintf("pending evaluation %s queued with %d candidate rule(s)", pending.ID, len(activeRules)),
		Timestamp:  now,
		Thumbnail:  thumbnail,
	}, e.log)
}

func (e *Engine) analyzeServerSide(ctx context.Context, loop *cameraLoop, provider vlm.Provider, frame core.Frame, activeRules []core.WatchRule, thumbnail string, now time.Time) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.Reasoning.CallTimeout())
	defer cancel()

	priorContext := e.sceneStore.ContextString(loop.camera.ID)
	analysis, err := provider.AnalyzeScene(callCtx, frame.Data, priorContext, vlm.PromptSpec{})
	if err != nil {
		e.onProviderError(loop, err, now)
		return
	}
	e.tracker.RecordCall(now)

	e.sceneStore.Apply(loop.camera.ID, scene.Analysis{
		Summary:     analysis.Summary,
		Objects:     analysis.Objects,
		PeopleCount: analysis.PeopleCount,
		Changes:     analysis.Changes,
	}, "", now)

	if len(activeRules) == 0 {
		loop.health.markSuccess(now)
		return
	}

	specs := make([]vlm.RuleSpec, len(activeRules))
	for i, r := range activeRules {
		specs[i] = vlm.RuleSpec{RuleID: r.ID, Condition: r.Condition}
	}

	evals, err := provider.EvaluateRules(callCtx, frame.Data, specs, e.sceneStore.ContextString(loop.camera.ID), vlm.PromptSpec{})
	if err != nil {
		e.onProviderError(loop, err, now)
		return
	}
	e.tracker.RecordCall(now)
	loop.health.markSuccess(now)

	byRuleID := make(map[string]core.WatchRule, len(activeRules))
	for _, r := range activeRules {
		byRuleID[r.ID] = r
	}
	inputs := make([]rules.EvalInput, 0, len(evals))
	for _, ev := range evals {
		r, ok := byRuleID[ev.RuleID]
		if !ok {
			continue
		}
		inputs = append(inputs, rules.EvalInput{
			Rule:       r,
			Triggered:  ev.Triggered,
			Confidence: ev.Confidence,
			Reasoning:  ev.Reasoning,
		})
	}

	triggered := e.rulesStore.Evaluate(inputs, loop.camera.ID, loop.camera.Name, thumbnail, now)
	for _, event := range triggered {
		stored := e.alertLog.AppendCorrelated(event, e.log)
		rule, ok := byRuleID[stored.RuleID]
		if !ok {
			continue
		}
		e.dispatcher.Dispatch(stored, rule.Notification)
	}
}

func (e *Engine) onProviderError(loop *cameraLoop, err error, now time.Time) {
	backoff := loop.health.markError(now, backoffBase, backoffMax)
	e.alertLog.AppendCorrelated(core.AlertEvent{
		EventType:  core.EventProviderError,
		CameraID:   loop.camera.ID,
		CameraName: loop.camera.Name,
		Message:    err.Error(),
		Timestamp:  now,
	}, e.log)
	e.log.Warn().Err(err).Str("camera_id", loop.camera.ID).Dur("backoff", backoff).Msg("vlm provider call failed")
}

func thumbnailOf(frame core.Frame) string {
	return encodeThumbnail(frame.Data)
}
