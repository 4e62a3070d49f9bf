// Package reconcile switches a state container of the rendered document to
// a new state.
//
// When the engine exposes a native state API it is used directly. Otherwise,
// or when the native call fails, the reconciler rewrites the retained
// document: it clones it, sets the state on the first matching state node,
// bumps the node's revision and pushes the clone back to the engine. The
// clone is committed only if no other render replaced the document in the
// meantime.
package reconcile

import (
	"context"
	"log/slog"

	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/engine"
)

// DocumentStore holds the document currently on screen.
type DocumentStore interface {
	// Snapshot returns the current document and its version.
	Snapshot() (document.Node, uint64)

	// Commit replaces the document at version with next and calls push
	// while no other render can run. It reports false, without calling
	// push, when the document changed since version.
	Commit(ctx context.Context, version uint64, next document.Node, push func(context.Context, document.Node) error) (bool, error)
}

// Reconciler applies state changes to one renderer.
type Reconciler struct {
	renderer engine.Renderer
	store    DocumentStore
	logger   *slog.Logger
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// New creates a Reconciler.
func New(renderer engine.Renderer, store DocumentStore, opts ...Option) *Reconciler {
	r := &Reconciler{renderer: renderer, store: store, logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Apply sets target to state. It reports whether a change was made; a
// document without a matching state node, or one replaced by a newer render
// while the change was prepared, is left untouched and yields false.
func (r *Reconciler) Apply(ctx context.Context, target string, state any) bool {
	if target == "" {
		target = document.DefaultStateTarget
	}

	if ss, ok := r.renderer.(engine.StateSetter); ok {
		err := ss.SetState(ctx, target, state)
		if err == nil {
			r.logger.DebugContext(ctx, "reconcile: native state", "target", target, "state", state)
			return true
		}
		r.logger.DebugContext(ctx, "reconcile: native state failed, rewriting document",
			"target", target, "error", err)
	}

	cur, version := r.store.Snapshot()
	if cur == nil {
		return false
	}
	next := document.Clone(cur)
	node, ok := document.Find(next, document.IsState(target))
	if !ok {
		r.logger.DebugContext(ctx, "reconcile: no state node", "target", target)
		return false
	}
	document.SetState(node, state)

	ok, err := r.store.Commit(ctx, version, next, r.renderer.SetData)
	if err != nil {
		r.logger.WarnContext(ctx, "reconcile: push document", "target", target, "error", err)
	}
	if !ok {
		r.logger.DebugContext(ctx, "reconcile: document superseded", "target", target)
		return false
	}
	r.logger.DebugContext(ctx, "reconcile: document rewritten",
		"target", target, "state", state, "rev", document.Revision(node))
	return true
}
