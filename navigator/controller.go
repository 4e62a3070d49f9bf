// Package navigator ties routing, caching, action handling and rendering
// together into a single-page navigation session.
//
// A Controller owns the document on screen, the renderer handle, the
// prefetch cache and the session history. Load never fails on fetch errors:
// it falls back to the static home page for home views and to a placeholder
// card otherwise. Each load is tagged with a sequence number; a load whose
// fetch completes after a newer one started is dropped instead of rendered.
package navigator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/viewnav/action"
	"github.com/hazyhaar/viewnav/actionlog"
	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/engine"
	"github.com/hazyhaar/viewnav/history"
	"github.com/hazyhaar/viewnav/idgen"
	"github.com/hazyhaar/viewnav/kit"
	"github.com/hazyhaar/viewnav/planner"
	"github.com/hazyhaar/viewnav/prefetch"
	"github.com/hazyhaar/viewnav/reconcile"
	"github.com/hazyhaar/viewnav/route"
)

// Controller is one navigation session.
type Controller struct {
	renderer   engine.Renderer
	cache      *prefetch.Cache
	history    *history.Stack
	sink       actionlog.Sink
	reconciler *reconcile.Reconciler
	logger     *slog.Logger
	target     string
	staticHome string
	now        func() time.Time
	newID      idgen.Generator

	mu       sync.Mutex
	doc      document.Node
	version  uint64 // bumped on every document swap
	mounted  bool
	seq      uint64
	current  string
	eventCtx context.Context

	// renderMu serialises renderer calls so the sequence check and the
	// render it guards are atomic.
	renderMu sync.Mutex
	bg       sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithSink sets where actions are logged. Default: actionlog.Discard.
func WithSink(s actionlog.Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithHistory sets the session history. Default: a fresh stack.
func WithHistory(h *history.Stack) Option {
	return func(c *Controller) { c.history = h }
}

// WithTarget sets the mount container id. Default: engine.DefaultTarget.
func WithTarget(id string) Option {
	return func(c *Controller) { c.target = id }
}

// WithStaticHome sets the resource loaded when the home view fails.
// Default: route.StaticHomeResource.
func WithStaticHome(path string) Option {
	return func(c *Controller) {
		if path != "" {
			c.staticHome = path
		}
	}
}

// WithClock sets the time source for action log timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator sets the navigation id generator. Default: idgen.NavigationID.
func WithIDGenerator(g idgen.Generator) Option {
	return func(c *Controller) { c.newID = g }
}

// New creates a Controller rendering through renderer and loading documents
// through cache.
func New(renderer engine.Renderer, cache *prefetch.Cache, opts ...Option) *Controller {
	c := &Controller{
		renderer:   renderer,
		cache:      cache,
		history:    history.NewStack(),
		sink:       actionlog.Discard,
		logger:     slog.Default(),
		target:     engine.DefaultTarget,
		staticHome: route.StaticHomeResource,
		now:        time.Now,
		newID:      idgen.NavigationID,
		eventCtx:   context.Background(),
	}
	for _, o := range opts {
		o(c)
	}
	c.reconciler = reconcile.New(renderer, c, reconcile.WithLogger(c.logger))
	return c
}

// Current returns the document on screen. Callers must not mutate it.
func (c *Controller) Current() document.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc
}

// Snapshot returns the document on screen and its version.
func (c *Controller) Snapshot() (document.Node, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc, c.version
}

// Commit swaps in next and pushes it if the document on screen is still at
// version. Loads and commits share the render lock, so a document derived
// from an older page never lands on top of a newer one.
func (c *Controller) Commit(ctx context.Context, version uint64, next document.Node, push func(context.Context, document.Node) error) (bool, error) {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if version != c.version {
		c.mu.Unlock()
		return false, nil
	}
	c.doc = next
	c.version++
	c.mu.Unlock()

	return true, push(ctx, next)
}

// ViewPath returns the view path of the last load.
func (c *Controller) ViewPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// History returns the session history.
func (c *Controller) History() *history.Stack { return c.history }

// Cache returns the prefetch cache.
func (c *Controller) Cache() *prefetch.Cache { return c.cache }

// Start boots the session at viewPath, defaulting to the home view. The
// start path replaces the current history entry.
func (c *Controller) Start(ctx context.Context, viewPath string) error {
	if viewPath == "" {
		viewPath = route.HomeView
	}
	c.history.Replace(viewPath)
	return c.Load(ctx, viewPath)
}

// Go navigates to viewPath: it records a history entry, drops the cache
// when leaving sequential content and loads the view.
func (c *Controller) Go(ctx context.Context, viewPath string) error {
	c.history.Push(viewPath)
	if !route.IsSequential(viewPath) {
		c.cache.Clear()
	}
	return c.Load(ctx, viewPath)
}

// Back reloads the previous history entry. It reports false at the oldest
// entry.
func (c *Controller) Back(ctx context.Context) (bool, error) {
	p, ok := c.history.Back()
	if !ok {
		return false, nil
	}
	return true, c.Load(ctx, p)
}

// Forward reloads the next history entry. It reports false at the newest
// entry.
func (c *Controller) Forward(ctx context.Context) (bool, error) {
	p, ok := c.history.Forward()
	if !ok {
		return false, nil
	}
	return true, c.Load(ctx, p)
}

// Load fetches and renders viewPath. Fetch failures end in a fallback
// render; the only error returned is ctx's.
func (c *Controller) Load(ctx context.Context, viewPath string) error {
	seq := c.begin(viewPath)
	ctx = kit.WithNavigationID(ctx, c.newID())
	log := c.logger.With("view", viewPath, "navigation_id", kit.GetNavigationID(ctx))

	resource := route.Resolve(viewPath)
	doc, err := c.cache.Get(ctx, resource)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		log.WarnContext(ctx, "navigator: load failed", "resource", resource, "error", err)
		c.renderFallback(ctx, seq, viewPath)
		return nil
	}

	if !c.render(ctx, seq, doc) {
		log.DebugContext(ctx, "navigator: stale load dropped", "resource", resource)
		return nil
	}
	log.InfoContext(ctx, "navigator: rendered", "resource", resource)

	if next, ok := route.NextStep(viewPath); ok {
		nextResource := route.Resolve(next)
		pctx := context.WithoutCancel(ctx)
		c.spawn(func() { c.cache.Preload(pctx, nextResource) })
	}
	return nil
}

func (c *Controller) renderFallback(ctx context.Context, seq uint64, viewPath string) {
	if route.IsHomeView(viewPath) {
		doc, err := c.cache.Get(ctx, c.staticHome)
		if err == nil {
			c.render(ctx, seq, doc)
			return
		}
		c.logger.WarnContext(ctx, "navigator: static home failed", "resource", c.staticHome, "error", err)
	}
	c.render(ctx, seq, document.Placeholder(document.DefaultPlaceholderText))
}

func (c *Controller) begin(viewPath string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.current = viewPath
	return c.seq
}

// render shows doc if seq is still the latest load. It reports whether the
// document was rendered.
func (c *Controller) render(ctx context.Context, seq uint64, doc document.Node) bool {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		return false
	}
	c.doc = doc
	c.version++
	mounted := c.mounted
	if !mounted {
		c.eventCtx = context.WithoutCancel(ctx)
	}
	c.mu.Unlock()

	var err error
	if mounted {
		err = c.renderer.SetData(ctx, doc)
	} else {
		err = c.renderer.Mount(ctx, engine.MountOptions{
			Target:   c.target,
			Document: doc,
			OnError:  c.onEngineError,
			OnAction: c.onEngineEvent,
			OnStat:   c.onEngineEvent,
		})
		if err == nil {
			c.mu.Lock()
			c.mounted = true
			c.mu.Unlock()
		}
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "navigator: render failed", "mounted", mounted, "error", err)
	}
	return true
}

func (c *Controller) onEngineError(err error) {
	c.logger.Warn("navigator: engine error", "error", err)
}

// onEngineEvent runs on the engine's dispatch goroutine; handling is moved
// off it so a navigation can call back into the engine.
func (c *Controller) onEngineEvent(evt engine.Event) {
	c.mu.Lock()
	ctx := c.eventCtx
	c.mu.Unlock()
	c.spawn(func() { c.HandleEvent(ctx, evt) })
}

// HandleEvent normalises a raw engine event, logs it and acts on it. It
// reports whether the event led to a navigation or a state change.
func (c *Controller) HandleEvent(ctx context.Context, event any) (handled bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorContext(ctx, "navigator: event handler panic", "panic", r)
			handled = false
		}
	}()

	d, ok := action.Extract(event)
	if !ok {
		if d, ok = action.FromEvent(event); !ok {
			return false
		}
	}
	c.logAction(ctx, d)

	dec := planner.Plan(d)
	c.logger.DebugContext(ctx, "navigator: action", "log_id", d.LogID, "decision", dec.Kind, "rule", dec.Rule)

	switch dec.Kind {
	case planner.SetState:
		c.reconciler.Apply(ctx, dec.Change.Target, dec.Change.State)
		return true
	case planner.Navigate:
		if err := c.Go(ctx, dec.ViewPath); err != nil {
			c.logger.WarnContext(ctx, "navigator: navigation aborted", "view", dec.ViewPath, "error", err)
		}
		return true
	}
	return false
}

func (c *Controller) logAction(ctx context.Context, d *action.Descriptor) {
	entry := actionlog.FromDescriptor(d, c.now())
	lctx := context.WithoutCancel(ctx)
	c.spawn(func() {
		if err := c.sink.Log(lctx, entry); err != nil {
			c.logger.DebugContext(lctx, "navigator: action log failed", "event", entry.Event, "error", err)
		}
	})
}

func (c *Controller) spawn(fn func()) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn()
	}()
}

// Wait blocks until background work has finished: preloads, action log
// posts, engine event handling and image prewarms.
func (c *Controller) Wait() {
	c.bg.Wait()
	c.cache.Wait()
}
