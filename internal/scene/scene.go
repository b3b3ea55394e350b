// Package scene maintains per-camera SceneState (C5) as described in
// spec.md §4.5: the running summary/object-list/people-count the VLM
// last reported, a bounded change log, and a compact context string fed
// back into later VLM prompts.
package scene

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/physical-mcp/engine/internal/core"
)

// Analysis is the subset of a VLM scene analysis that updates state.
// Zero-value fields (empty summary, nil Objects, nil PeopleCount) mean
// "missing" and leave the existing value in place, per spec §4.5.
type Analysis struct {
	Summary     string
	Objects     []string
	PeopleCount *int
	Changes     string
}

// Broadcaster pushes a scene update to any live dashboard clients.
// Satisfied by *wshub.Hub; kept as a local interface so this package
// doesn't need to import wshub.
type Broadcaster interface {
	BroadcastScene(data interface{})
}

// Store holds one SceneState per camera, guarded by a single mutex —
// scene updates are infrequent relative to frame capture, so per-camera
// locking would add complexity without a measurable benefit.
type Store struct {
	mu          sync.RWMutex
	scenes      map[string]*core.SceneState
	broadcaster Broadcaster
}

// NewStore creates an empty scene store.
func NewStore() *Store {
	return &Store{scenes: make(map[string]*core.SceneState)}
}

// SetBroadcaster wires a dashboard fan-out hub; every Apply pushes the
// updated state through it.
func (s *Store) SetBroadcaster(b Broadcaster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.broadcaster = b
}

// Get returns a copy of the camera's current scene state, creating an
// empty one if none exists yet.
func (s *Store) Get(cameraID string) core.SceneState {
	s.mu.RLock()
	st, ok := s.scenes[cameraID]
	s.mu.RUnlock()
	if !ok {
		return core.SceneState{CameraID: cameraID}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneState(st)
}

// Apply merges a, a VLM analysis, into the camera's scene state
// following spec §4.5: fields present in a replace the prior value,
// missing fields are left alone, and a change_log entry is appended
// using the VLM's reported change description, falling back to the
// cheap change detector's description when the VLM didn't report one.
func (s *Store) Apply(cameraID string, a Analysis, detectorDescription string, now time.Time) core.SceneState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scenes[cameraID]
	if !ok {
		st = &core.SceneState{CameraID: cameraID}
		s.scenes[cameraID] = st
	}

	if a.Summary != "" {
		st.Summary = a.Summary
	}
	if a.Objects != nil {
		st.Objects = a.Objects
	}
	if a.PeopleCount != nil {
		st.PeopleCount = a.PeopleCount
	}

	desc := a.Changes
	if desc == "" {
		desc = detectorDescription
	}
	st.LastChangeDesc = desc
	st.ChangeLog = append(st.ChangeLog, core.ChangeLogEntry{Timestamp: now, Description: desc})
	if len(st.ChangeLog) > core.MaxChangeLogEntries {
		st.ChangeLog = st.ChangeLog[len(st.ChangeLog)-core.MaxChangeLogEntries:]
	}

	st.UpdateCount++
	st.LastUpdated = now

	out := cloneState(st)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastScene(out)
	}
	return out
}

// All returns a copy of every camera's current scene state, keyed by
// camera id (spec §4.11: `GET /scene` -> JSON map camera_id -> SceneState).
func (s *Store) All() map[string]core.SceneState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]core.SceneState, len(s.scenes))
	for id, st := range s.scenes {
		out[id] = cloneState(st)
	}
	return out
}

// ContextString builds the compact prompt context spec §4.5 describes:
// current summary, people count, top objects, and up to 5 most recent
// change_log entries.
func (s *Store) ContextString(cameraID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.scenes[cameraID]
	if !ok || st.UpdateCount == 0 {
		return "no prior scene data for this camera"
	}

	var b strings.Builder
	if st.Summary != "" {
		fmt.Fprintf(&b, "summary: %s\n", st.Summary)
	}
	if st.PeopleCount != nil {
		fmt.Fprintf(&b, "people_count: %d\n", *st.PeopleCount)
	}
	if len(st.Objects) > 0 {
		fmt.Fprintf(&b, "objects: %s\n", strings.Join(st.Objects, ", "))
	}

	n := len(st.ChangeLog)
	start := 0
	if n > 5 {
		start = n - 5
	}
	if start < n {
		b.WriteString("recent changes:\n")
		for _, entry := range st.ChangeLog[start:] {
			fmt.Fprintf(&b, "- %s: %s\n", entry.Timestamp.Format(time.RFC3339), entry.Description)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func cloneState(st *core.SceneState) core.SceneState {
	out := *st
	if st.Objects != nil {
		out.Objects = append([]string(nil), st.Objects...)
	}
	if st.PeopleCount != nil {
		pc := *st.PeopleCount
		out.PeopleCount = &pc
	}
	out.ChangeLog = append([]core.ChangeLogEntry(nil), st.ChangeLog...)
	return out
}
