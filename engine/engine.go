// Package engine defines the contract between the navigator and the
// declarative UI rendering engine.
//
// The navigator mounts one document into a target container, pushes later
// documents through SetData and receives user interaction as raw event maps.
// Engines that expose a native state API additionally implement StateSetter;
// the reconciler probes for it with a type assertion.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/viewnav/document"
)

// DefaultTarget is the id of the container the SPA shell renders into.
const DefaultTarget = "root"

var (
	// ErrNotMounted is returned by SetData and SetState before Mount.
	ErrNotMounted = errors.New("engine: not mounted")
	// ErrNoEngine is returned when the engine runtime cannot be found in the
	// host page.
	ErrNoEngine = errors.New("engine: renderer runtime not available")
)

// Event is a raw callback payload as emitted by the engine. Its shape is
// heterogeneous; package action normalizes it.
type Event = map[string]any

// MountOptions configures the first render.
type MountOptions struct {
	Target   string
	Document document.Node
	OnError  func(err error)
	OnAction func(evt Event)
	OnStat   func(evt Event)
}

// Renderer is a mounted rendering engine instance.
type Renderer interface {
	Mount(ctx context.Context, opts MountOptions) error
	SetData(ctx context.Context, doc document.Node) error
}

// StateSetter is implemented by engines with a native state API.
type StateSetter interface {
	SetState(ctx context.Context, target string, state any) error
}

// Guard wraps an event callback so a panic inside it is logged instead of
// unwinding into the engine's dispatch loop.
func Guard(logger *slog.Logger, fn func(Event)) func(Event) {
	if fn == nil {
		return func(Event) {}
	}
	return func(evt Event) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("engine: callback panic", "panic", fmt.Sprint(r))
			}
		}()
		fn(evt)
	}
}
