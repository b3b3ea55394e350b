package rules

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/physical-mcp/engine/internal/core"
)

// ruleDoc is the YAML-on-disk shape (spec §6: id, name, condition,
// camera_id, priority, notification, cooldown_seconds, enabled,
// created_at, last_triggered, trigger_count, custom_message?, owner_id?).
type ruleDoc struct {
	ID           string                   `yaml:"id"`
	Name         string                   `yaml:"name"`
	Condition    string                   `yaml:"condition"`
	CameraID     string                   `yaml:"camera_id,omitempty"`
	Priority     core.Priority            `yaml:"priority"`
	Notification core.NotificationTarget  `yaml:"notification"`
	CooldownSecs int                      `yaml:"cooldown_seconds"`
	Enabled      bool                     `yaml:"enabled"`
	CreatedAt    time.Time                `yaml:"created_at"`
	LastTriggered *time.Time              `yaml:"last_triggered,omitempty"`
	TriggerCount int                      `yaml:"trigger_count"`
	CustomMessage string                  `yaml:"custom_message,omitempty"`
	OwnerID      string                   `yaml:"owner_id,omitempty"`
}

type rulesDocument struct {
	Rules []ruleDoc `yaml:"rules"`
}

func toDoc(r *core.WatchRule) ruleDoc {
	return ruleDoc{
		ID: r.ID, Name: r.Name, Condition: r.Condition, CameraID: r.CameraID,
		Priority: r.Priority, Notification: r.Notification, CooldownSecs: r.CooldownSecs,
		Enabled: r.Enabled, CreatedAt: r.CreatedAt, LastTriggered: r.LastTriggered,
		TriggerCount: r.TriggerCount, CustomMessage: r.Notification.CustomMessage, OwnerID: r.OwnerID,
	}
}

func fromDoc(d ruleDoc) *core.WatchRule {
	notif := d.Notification
	if d.CustomMessage != "" {
		notif.CustomMessage = d.CustomMessage
	}
	return &core.WatchRule{
		ID: d.ID, Name: d.Name, Condition: d.Condition, CameraID: d.CameraID,
		Priority: d.Priority, Enabled: d.Enabled, CooldownSecs: d.CooldownSecs,
		Notification: notif, OwnerID: d.OwnerID, CreatedAt: d.CreatedAt,
		LastTriggered: d.LastTriggered, TriggerCount: d.TriggerCount,
	}
}

// Load reads the store's YAML file from disk, replacing the in-memory
// rule set wholesale. A missing file is not an error: the store simply
// stays empty.
func (s *Store) Load() error {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return core.Wrap(core.KindConfigInvalid, "reading rules file", err)
	}

	var doc rulesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return core.Wrap(core.KindConfigInvalid, "parsing rules YAML", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = make(map[string]*core.WatchRule, len(doc.Rules))
	for _, d := range doc.Rules {
		s.rules[d.ID] = fromDoc(d)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.lastModTime = info.ModTime()
	}
	return nil
}

// Save writes the current rule set to the store's YAML file.
func (s *Store) Save() error {
	s.mu.RLock()
	doc := rulesDocument{Rules: make([]ruleDoc, 0, len(s.rules))}
	for _, r := range s.rules {
		doc.Rules = append(doc.Rules, toDoc(r))
	}
	s.mu.RUnlock()

	out, err := yaml.Marshal(doc)
	if err != nil {
		return core.Wrap(core.KindConfigInvalid, "encoding rules YAML", err)
	}
	if err := os.WriteFile(s.path, out, 0o644); err != nil {
		return core.Wrap(core.KindConfigInvalid, "writing rules file", err)
	}
	if info, err := os.Stat(s.path); err == nil {
		s.mu.Lock()
		s.lastModTime = info.ModTime()
		s.mu.Unlock()
	}
	return nil
}

// MaybeReload checks the rules file's modification time and, if it has
// changed since the last load/save, reloads it and atomically swaps in
// the new rule set — preserving last_triggered/trigger_count for any
// rule id that still exists, so an in-flight cooldown survives a reload
// of unrelated rules (spec §4.7). Intended to be called once per
// perception-loop tick (spec's 5-second hot-reload window); it is a
// no-op if no path was configured.
func (s *Store) MaybeReload() (bool, error) {
	if s.path == "" {
		return false, nil
	}

	info, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, core.Wrap(core.KindConfigInvalid, "statting rules file", err)
	}

	s.mu.RLock()
	unchanged := !info.ModTime().After(s.lastModTime)
	s.mu.RUnlock()
	if unchanged {
		return false, nil
	}

	raw, err := os.ReadFile(s.path)
	if err != nil {
		return false, core.Wrap(core.KindConfigInvalid, "reading rules file", err)
	}
	var doc rulesDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return false, core.Wrap(core.KindConfigInvalid, "parsing rules YAML", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := make(map[string]*core.WatchRule, len(doc.Rules))
	for _, d := range doc.Rules {
		r := fromDoc(d)
		if prior, ok := s.rules[d.ID]; ok {
			r.LastTriggered = prior.LastTriggered
			r.TriggerCount = prior.TriggerCount
		}
		fresh[d.ID] = r
	}
	s.rules = fresh
	s.lastModTime = info.ModTime()
	return true, nil
}
