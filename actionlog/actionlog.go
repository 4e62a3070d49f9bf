// Package actionlog reports user actions to the backend's analytics
// endpoint. Delivery is fire-and-forget from the navigator's point of view:
// the sinks return errors, the caller only logs them.
package actionlog

import (
	"context"
	"time"

	"github.com/hazyhaar/viewnav/action"
)

// DefaultEvent names an action that carries no log_id.
const DefaultEvent = "click"

// Entry is one logged action.
type Entry struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	TS      int64  `json:"ts"`
}

// FromDescriptor builds the entry for an extracted action at now. Missing
// or falsy fields default to DefaultEvent and an empty object.
func FromDescriptor(d *action.Descriptor, now time.Time) Entry {
	e := Entry{Event: DefaultEvent, Payload: map[string]any{}, TS: now.UnixMilli()}
	if d == nil {
		return e
	}
	if d.LogID != "" {
		e.Event = d.LogID
	}
	if action.Truthy(d.Payload) {
		e.Payload = d.Payload
	}
	return e
}

// Sink delivers entries.
type Sink interface {
	Log(ctx context.Context, e Entry) error
}

// Func delivers entries via a Go function call.
type Func func(ctx context.Context, e Entry) error

// Log implements Sink.
func (f Func) Log(ctx context.Context, e Entry) error {
	if f == nil {
		return nil
	}
	return f(ctx, e)
}

// Discard drops every entry.
var Discard Sink = Func(nil)
