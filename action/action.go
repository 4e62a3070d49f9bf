// Package action normalises the events emitted by the rendering engine into
// a single descriptor shape.
//
// The engine has emitted actions under several conventions over time: the
// action object itself, or the action wrapped under "action", "stat.action",
// "data.action" or "event.action". Extraction walks an ordered list of
// shapes, one level at a time, until it reaches an object that looks like an
// action. New wrapper conventions are added by appending to Shapes.
package action

import (
	"strconv"
	"strings"
)

// Field names recognised on an action object.
const (
	FieldURL      = "url"
	FieldHref     = "href"
	FieldPath     = "path"
	FieldRoute    = "route"
	FieldLogID    = "log_id"
	FieldPayload  = "payload"
	FieldSetState = "set_state"
)

// Semantic URL markers substituted by ResolveTargetURL.
const (
	MarkerGoHome     = "#go_home"
	MarkerOpenLesson = "#open_lesson"
)

// maxDepth bounds unwrapping of pathological self-similar events.
const maxDepth = 16

// Shape unwraps one wrapper convention. It returns the wrapped value and
// true when m uses that convention.
type Shape struct {
	Name   string
	Unwrap func(m map[string]any) (any, bool)
}

// Shapes lists the wrapper conventions in priority order.
var Shapes = []Shape{
	{Name: "action", Unwrap: field("action")},
	{Name: "stat.action", Unwrap: nested("stat", "action")},
	{Name: "data.action", Unwrap: nested("data", "action")},
	{Name: "event.action", Unwrap: nested("event", "action")},
}

func field(name string) func(map[string]any) (any, bool) {
	return func(m map[string]any) (any, bool) {
		v := m[name]
		return v, Truthy(v)
	}
}

func nested(outer, inner string) func(map[string]any) (any, bool) {
	return func(m map[string]any) (any, bool) {
		o, ok := m[outer].(map[string]any)
		if !ok {
			return nil, false
		}
		v := o[inner]
		return v, Truthy(v)
	}
}

// StateChange asks a state container to switch to a given state. It is
// always absolute: "set to", never "toggle".
type StateChange struct {
	Target string
	State  any
}

// Default state-change values used when an action leaves them out.
const (
	DefaultTarget = "lesson_card_state"
	DefaultState  = "brand"
)

// Descriptor is the normalised form of an engine action.
type Descriptor struct {
	// Raw is the action object as found in the event.
	Raw map[string]any
	// Wrapping lists the shapes unwrapped to reach Raw, outermost first.
	Wrapping []string

	LogID   string
	Payload any
	// SetState is the explicit state-change request carried by the action
	// itself or by its payload.
	SetState *StateChange
}

// PayloadMap returns the payload when it is an object.
func (d *Descriptor) PayloadMap() map[string]any {
	m, _ := d.Payload.(map[string]any)
	return m
}

// Extract finds the action object inside event and normalises it. It
// reports false when no known shape yields an action; that is a no-op, not
// an error.
func Extract(event any) (*Descriptor, bool) {
	var wrapping []string
	v := event
	for depth := 0; depth < maxDepth; depth++ {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		if isActionLike(m) {
			d := describe(m)
			d.Wrapping = wrapping
			return d, true
		}
		next, name, ok := unwrap(m)
		if !ok {
			return nil, false
		}
		wrapping = append(wrapping, name)
		v = next
	}
	return nil, false
}

// FromEvent builds a descriptor from an event that Extract could not
// normalise, using its "action" object when it has one and the event
// itself otherwise. URL resolution still scans the nested stat, data and
// event objects of such events.
func FromEvent(event any) (*Descriptor, bool) {
	m, ok := event.(map[string]any)
	if !ok {
		return nil, false
	}
	if inner, ok := m["action"].(map[string]any); ok {
		return describe(inner), true
	}
	return describe(m), true
}

func unwrap(m map[string]any) (any, string, bool) {
	for _, s := range Shapes {
		if v, ok := s.Unwrap(m); ok {
			return v, s.Name, true
		}
	}
	return nil, "", false
}

func isActionLike(m map[string]any) bool {
	for _, f := range []string{FieldURL, FieldHref, FieldLogID, FieldPayload, FieldSetState} {
		if Truthy(m[f]) {
			return true
		}
	}
	return false
}

func describe(m map[string]any) *Descriptor {
	d := &Descriptor{
		Raw:     m,
		LogID:   stringOf(m[FieldLogID]),
		Payload: m[FieldPayload],
	}
	// The action's own set_state wins whenever it is set, even when it is
	// not an object; the payload copy is consulted only when it is unset.
	raw := m[FieldSetState]
	if !Truthy(raw) {
		raw = d.PayloadMap()[FieldSetState]
	}
	if sc, ok := raw.(map[string]any); ok {
		c := ParseStateChange(sc)
		d.SetState = &c
	}
	return d
}

// ParseStateChange reads a set_state object. The target comes from "id" or
// "component_id"; the state from the first present of "state_id", "stateId"
// and "state".
func ParseStateChange(m map[string]any) StateChange {
	return StateChange{
		Target: firstString(m, DefaultTarget, "id", "component_id"),
		State:  firstPresent(m, DefaultState, "state_id", "stateId", "state"),
	}
}

// ParseLegacyStateChange reads the payload of a legacy
// "lesson_card_set_state" action.
func ParseLegacyStateChange(payload map[string]any) StateChange {
	return StateChange{
		Target: firstString(payload, DefaultTarget, "id"),
		State:  firstPresent(payload, DefaultState, "state_id", "stateId"),
	}
}

// ResolveTargetURL finds the navigation target of an action-like value. It
// looks at the value itself, then at its payload, stat, data and event
// objects, accepting a plain string or a url, url.url, href, path or route
// string field. The result is trimmed, semantic markers are substituted and
// a leading "/" is ensured.
func ResolveTargetURL(v any) (string, bool) {
	u, ok := pickURL(v)
	if !ok {
		if m, isMap := v.(map[string]any); isMap {
			for _, k := range []string{FieldPayload, "stat", "data", "event"} {
				if u, ok = pickURL(m[k]); ok {
					break
				}
			}
		}
	}
	if !ok {
		return "", false
	}

	u = strings.TrimSpace(u)
	switch u {
	case "":
		return "", false
	case MarkerGoHome:
		return "/home", true
	case MarkerOpenLesson:
		return "/lesson", true
	}
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return u, true
}

// pickURL reports false for empty strings so that the caller moves on to
// the next candidate object.
func pickURL(v any) (string, bool) {
	switch o := v.(type) {
	case string:
		return o, o != ""
	case map[string]any:
		if s, ok := o[FieldURL].(string); ok {
			return s, s != ""
		}
		if inner, ok := o[FieldURL].(map[string]any); ok {
			if s, ok := inner[FieldURL].(string); ok {
				return s, s != ""
			}
		}
		for _, k := range []string{FieldHref, FieldPath, FieldRoute} {
			if s, ok := o[k].(string); ok {
				return s, s != ""
			}
		}
	}
	return "", false
}

// Truthy follows the engine's scripting semantics: empty strings, zero,
// false and null are false; any object or list is true.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return true
}

// stringOf renders identifiers that may arrive as strings or numbers.
func stringOf(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return ""
}

// FirstString returns the first truthy field of m among keys, as a string.
func FirstString(m map[string]any, keys ...string) string {
	return firstString(m, "", keys...)
}

func firstString(m map[string]any, def string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; Truthy(v) {
			if s := stringOf(v); s != "" {
				return s
			}
		}
	}
	return def
}

func firstPresent(m map[string]any, def any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return def
}
