// Package memory is an in-process rendering engine. It keeps the last
// rendered document and records every call, which makes it the engine of
// choice for tests and headless CLI runs.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/engine"
)

// Call is one recorded engine invocation.
type Call struct {
	Op       string // "mount", "set_data" or "set_state"
	Target   string
	Document document.Node
	State    any
}

// Renderer records mounts and data pushes. It has no native state API; use
// Stateful for that.
type Renderer struct {
	mu      sync.Mutex
	mounted bool
	opts    engine.MountOptions
	current document.Node
	calls   []Call
	logger  *slog.Logger
}

// New creates an unmounted Renderer.
func New(logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{logger: logger}
}

// Mount implements engine.Renderer.
func (r *Renderer) Mount(ctx context.Context, opts engine.MountOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if opts.Target == "" {
		opts.Target = engine.DefaultTarget
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	opts.OnAction = engine.Guard(r.logger, opts.OnAction)
	opts.OnStat = engine.Guard(r.logger, opts.OnStat)
	r.opts = opts
	r.mounted = true
	r.current = document.Clone(opts.Document)
	r.calls = append(r.calls, Call{Op: "mount", Target: opts.Target, Document: r.current})
	return nil
}

// SetData implements engine.Renderer.
func (r *Renderer) SetData(ctx context.Context, doc document.Node) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mounted {
		return engine.ErrNotMounted
	}
	r.current = document.Clone(doc)
	r.calls = append(r.calls, Call{Op: "set_data", Target: r.opts.Target, Document: r.current})
	return nil
}

// Current returns a copy of the document on screen.
func (r *Renderer) Current() document.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	return document.Clone(r.current)
}

// Calls returns the recorded invocations in order.
func (r *Renderer) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// Mounted reports whether Mount has been called.
func (r *Renderer) Mounted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mounted
}

// Emit delivers evt to the OnAction callback registered at mount time, the
// way a user click would.
func (r *Renderer) Emit(evt engine.Event) error {
	r.mu.Lock()
	mounted, fn := r.mounted, r.opts.OnAction
	r.mu.Unlock()
	if !mounted {
		return engine.ErrNotMounted
	}
	fn(evt)
	return nil
}

// EmitStat delivers evt to the OnStat callback.
func (r *Renderer) EmitStat(evt engine.Event) error {
	r.mu.Lock()
	mounted, fn := r.mounted, r.opts.OnStat
	r.mu.Unlock()
	if !mounted {
		return engine.ErrNotMounted
	}
	fn(evt)
	return nil
}

// Stateful is a Renderer with a native state API. State changes are
// recorded but not reflected in the document.
type Stateful struct {
	*Renderer

	mu     sync.Mutex
	states map[string]any
	fail   error
}

// NewStateful creates an unmounted Stateful renderer.
func NewStateful(logger *slog.Logger) *Stateful {
	return &Stateful{Renderer: New(logger), states: make(map[string]any)}
}

// FailWith makes subsequent SetState calls return err. Pass nil to reset.
func (s *Stateful) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// SetState implements engine.StateSetter.
func (s *Stateful) SetState(ctx context.Context, target string, state any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.Mounted() {
		return engine.ErrNotMounted
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return fmt.Errorf("memory: set state %s: %w", target, s.fail)
	}
	s.states[target] = state
	s.Renderer.mu.Lock()
	s.Renderer.calls = append(s.Renderer.calls, Call{Op: "set_state", Target: target, State: state})
	s.Renderer.mu.Unlock()
	return nil
}

// State returns the last state set for target.
func (s *Stateful) State(target string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.states[target]
	return v, ok
}
