package scene

import (
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"time"
)

// Values is an opaque key/value payload attached to a session.
type Values map[string]any

// Get returns the raw value stored under key.
func (v Values) Get(key string) (any, bool) {
	if v == nil {
		return nil, false
	}
	val, ok := v[key]
	return val, ok
}

// String returns the value under key when it is a string.
func (v Values) String(key string) (string, bool) {
	val, ok := v.Get(key)
	if !ok {
		return "", false
	}
	s, ok := val.(string)
	return s, ok
}

// Bool returns the value under key when it is a bool.
func (v Values) Bool(key string) (bool, bool) {
	val, ok := v.Get(key)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// Int64 returns the value under key as int64. Numbers decoded from JSON
// (float64, json.Number) are accepted when they hold an integral value.
func (v Values) Int64(key string) (int64, bool) {
	val, ok := v.Get(key)
	if !ok {
		return 0, false
	}
	switch n := val.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) || n >= 1<<63 || n < -(1<<63) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// Clone returns a shallow copy; nil stays nil.
func (v Values) Clone() Values {
	if v == nil {
		return nil
	}
	return maps.Clone(v)
}

// State is the per-session scene state persisted by a Store.
type State struct {
	// Scene is the active scene name; empty means no active scene.
	Scene string `json:"scene,omitempty"`
	// Step is the wizard cursor. It is zero for simple scenes.
	Step int `json:"step,omitempty"`
	// Payload is scene-local data, dropped when the scene is left.
	Payload Values `json:"payload,omitempty"`
	// Data is session-wide data that survives scene changes.
	Data Values `json:"data,omitempty"`
	// TouchedAt is the last time the session was active inside a scene.
	TouchedAt time.Time `json:"touched_at"`
}

// Active reports whether a scene is currently entered.
func (s State) Active() bool {
	return s.Scene != ""
}

// Touched reports whether the session was ever seen by a stage.
func (s State) Touched() bool {
	return !s.TouchedAt.IsZero()
}

// Expired reports whether the active scene has been idle longer than ttl.
// A non-positive ttl never expires.
func (s State) Expired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 || !s.Active() || s.TouchedAt.IsZero() {
		return false
	}
	return now.Sub(s.TouchedAt) > ttl
}

// Clone returns a copy that does not share payload maps with s.
func (s State) Clone() State {
	out := s
	out.Payload = s.Payload.Clone()
	out.Data = s.Data.Clone()
	return out
}

// clearScene drops the scene name, cursor and scene payload in one step.
func (s *State) clearScene() {
	s.Scene, s.Step, s.Payload = "", 0, nil
}
