// Package rules implements the watch-rule CRUD store and evaluation
// semantics (C7) described in spec.md §4.7: rule lifecycle, the
// cooldown filter applied at selection time (not after evaluation —
// the correctness fix spec.md calls out explicitly), YAML persistence,
// and ModTime-poll hot-reload checked on each perception-loop tick.
package rules

import (
	"crypto/rand"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/physical-mcp/engine/internal/core"
)

// Spec is the input to create a new WatchRule; zero-value CooldownSecs
// is treated as the caller's responsibility (no implicit default here).
type Spec struct {
	Name         string
	Condition    string
	CameraID     string
	Priority     core.Priority
	Enabled      bool
	CooldownSecs int
	Notification core.NotificationTarget
	OwnerID      string
}

// Filter narrows List results; zero-value fields mean "don't filter on
// this".
type Filter struct {
	CameraID string
	Enabled  *bool
}

// Store holds WatchRules in memory, guarded by a mutex, with optional
// YAML persistence to a file.
type Store struct {
	mu    sync.RWMutex
	rules map[string]*core.WatchRule

	path         string
	lastModTime  time.Time
	confidenceFloor float64
}

// New creates an empty in-memory Store (no persistence path).
func New() *Store {
	return &Store{rules: make(map[string]*core.WatchRule), confidenceFloor: 0.75}
}

// NewWithPath creates a Store backed by a YAML file at path, loading it
// immediately if present.
func NewWithPath(path string, confidenceFloor float64) (*Store, error) {
	s := &Store{rules: make(map[string]*core.WatchRule), path: path, confidenceFloor: confidenceFloor}
	if confidenceFloor <= 0 {
		s.confidenceFloor = 0.75
	}
	if path == "" {
		return s, nil
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

func newRuleID() string {
	return "r_" + randomSuffix()
}

func randomSuffix() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}

// Create assigns an id and created_at, stores, and returns the rule.
func (s *Store) Create(spec Spec) core.WatchRule {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &core.WatchRule{
		ID:           newRuleID(),
		Name:         spec.Name,
		Condition:    spec.Condition,
		CameraID:     spec.CameraID,
		Priority:     spec.Priority,
		Enabled:      spec.Enabled,
		CooldownSecs: spec.CooldownSecs,
		Notification: spec.Notification,
		OwnerID:      spec.OwnerID,
		CreatedAt:    time.Now().UTC(),
	}
	s.rules[r.ID] = r
	return *r
}

// List returns rules matching filter, sorted by id for determinism.
func (s *Store) List(filter Filter) []core.WatchRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.WatchRule, 0, len(s.rules))
	for _, r := range s.rules {
		if filter.CameraID != "" && !r.MatchesCamera(filter.CameraID) {
			continue
		}
		if filter.Enabled != nil && r.Enabled != *filter.Enabled {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the rule by id.
func (s *Store) Get(id string) (core.WatchRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[id]
	if !ok {
		return core.WatchRule{}, core.ErrRuleNotFound
	}
	return *r, nil
}

// Delete removes a rule by id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rules[id]; !ok {
		return core.ErrRuleNotFound
	}
	delete(s.rules, id)
	return nil
}

// Toggle flips a rule's enabled flag and returns the updated rule.
func (s *Store) Toggle(id string) (core.WatchRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[id]
	if !ok {
		return core.WatchRule{}, core.ErrRuleNotFound
	}
	r.Enabled = !r.Enabled
	return *r, nil
}

// ActiveFor returns enabled rules targeting cameraID (or targeting any
// camera) that are not currently in cooldown. This filter MUST be
// applied here, at selection time, not after evaluation — a rule that
// just triggered must not be re-evaluated in the same pass, and a rule
// in cooldown must never reach the VLM at all (spec §4.7/§9).
func (s *Store) ActiveFor(cameraID string, now time.Time) []core.WatchRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.WatchRule, 0)
	for _, r := range s.rules {
		if !r.Enabled {
			continue
		}
		if !r.MatchesCamera(cameraID) {
			continue
		}
		if r.InCooldown(now) {
			continue
		}
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// EvalInput pairs a VLM's RuleEvaluation with the WatchRule it judged.
type EvalInput struct {
	Rule       core.WatchRule
	Triggered  bool
	Confidence float64
	Reasoning  string
}

// Evaluate applies the trigger rule (triggered && confidence >= floor)
// to each input, updates matching rules' last_triggered/trigger_count,
// and returns one AlertEvent per actual trigger. cameraName and
// thumbnail are carried through onto the emitted events.
func (s *Store) Evaluate(inputs []EvalInput, cameraID, cameraName, thumbnail string, now time.Time) []core.AlertEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var events []core.AlertEvent
	for _, in := range inputs {
		if !in.Triggered || in.Confidence < s.confidenceFloor {
			continue
		}
		r, ok := s.rules[in.Rule.ID]
		if !ok {
			continue
		}
		triggeredAt := now
		r.LastTriggered = &triggeredAt
		r.TriggerCount++

		events = append(events, core.AlertEvent{
			EventID:    "evt_" + randomSuffix(),
			EventType:  core.EventWatchRuleTriggered,
			CameraID:   cameraID,
			CameraName: cameraName,
			RuleID:     r.ID,
			RuleName:   r.Name,
			Priority:   r.Priority,
			Message:    in.Reasoning,
			Reasoning:  in.Reasoning,
			Confidence: in.Confidence,
			Timestamp:  now.UTC(),
			Thumbnail:  thumbnail,
		})
	}
	return events
}

// ConfidenceFloor returns the configured trigger threshold.
func (s *Store) ConfidenceFloor() float64 {
	return s.confidenceFloor
}
