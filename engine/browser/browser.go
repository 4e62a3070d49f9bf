// Package browser drives the real rendering engine inside headless Chrome.
//
// It loads the SPA shell page, then calls the engine's JavaScript API
// (window.Ya.DivKit) through Rod's Page.Eval. Engine callbacks travel back
// through a CDP runtime binding and are dispatched to the MountOptions
// callbacks on a listener goroutine.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/engine"
)

const bindingName = "__viewnav_binding"

// StealthLevel controls how Chrome is launched.
type StealthLevel int

const (
	LevelNone     StealthLevel = 0 // plain Rod page
	LevelHeadless StealthLevel = 1 // headless + stealth
	LevelHeadful  StealthLevel = 2 // headful + stealth, needs a DISPLAY
)

// ParseStealth maps the config spelling to a level. Unknown values map to
// LevelHeadless.
func ParseStealth(s string) StealthLevel {
	switch s {
	case "none":
		return LevelNone
	case "headful":
		return LevelHeadful
	default:
		return LevelHeadless
	}
}

// Config configures the browser renderer.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// ShellURL is the SPA shell page hosting the engine bundle.
	ShellURL string

	// Stealth sets the launch mode. Default: LevelHeadless.
	Stealth StealthLevel

	// NavTimeout bounds shell navigation. Default: 30s.
	NavTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Renderer implements engine.Renderer and engine.StateSetter on a Chrome tab.
type Renderer struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
	mounted bool
	opts    engine.MountOptions
	stop    context.CancelFunc
}

// New creates a Renderer. Call Start before Mount.
func New(cfg Config) *Renderer {
	cfg.defaults()
	return &Renderer{cfg: cfg}
}

// Start launches Chrome (or connects to a remote instance), opens the shell
// page and installs the callback binding.
func (r *Renderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page != nil {
		return nil
	}
	if r.cfg.ShellURL == "" {
		return fmt.Errorf("browser: shell URL is required")
	}

	b, err := r.launch()
	if err != nil {
		return err
	}
	r.browser = b

	page, err := r.openPage(ctx, b)
	if err != nil {
		r.cleanupLocked()
		return err
	}
	r.page = page

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		r.cleanupLocked()
		return fmt.Errorf("browser: add binding: %w", err)
	}

	lctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.stop = cancel
	go r.listen(lctx, page)

	r.cfg.Logger.Info("browser: shell loaded", "url", r.cfg.ShellURL, "stealth", r.cfg.Stealth)
	return nil
}

func (r *Renderer) launch() (*rod.Browser, error) {
	log := r.cfg.Logger
	var wsURL string

	if r.cfg.RemoteURL != "" {
		wsURL = r.cfg.RemoteURL
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(r.cfg.Stealth != LevelHeadful)
		l = l.Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		r.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (r *Renderer) openPage(ctx context.Context, b *rod.Browser) (*rod.Page, error) {
	var page *rod.Page
	var err error
	if r.cfg.Stealth >= LevelHeadless {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, r.cfg.NavTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(r.cfg.ShellURL); err != nil {
		page.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", r.cfg.ShellURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		r.cfg.Logger.Warn("browser: wait load timeout", "url", r.cfg.ShellURL, "error", err)
	}
	return page, nil
}

// callback is the envelope the page sends through the binding.
type callback struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

func (r *Renderer) listen(ctx context.Context, page *rod.Page) {
	wait := page.Context(ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		r.dispatch(e.Payload)
	})
	wait()
}

func (r *Renderer) dispatch(raw string) {
	var cb callback
	if err := json.Unmarshal([]byte(raw), &cb); err != nil {
		r.cfg.Logger.Debug("browser: bad binding payload", "error", err)
		return
	}

	r.mu.Lock()
	opts, mounted := r.opts, r.mounted
	r.mu.Unlock()
	if !mounted {
		return
	}

	switch cb.Kind {
	case "error":
		if opts.OnError != nil {
			opts.OnError(fmt.Errorf("browser: engine: %s", string(cb.Payload)))
		}
	case "action", "stat":
		var evt engine.Event
		if err := json.Unmarshal(cb.Payload, &evt); err != nil {
			r.cfg.Logger.Debug("browser: non-object event", "kind", cb.Kind, "error", err)
			return
		}
		if cb.Kind == "action" {
			opts.OnAction(evt)
		} else {
			opts.OnStat(evt)
		}
	}
}

const mountJS = `(target, json, binding) => {
	const dk = window.Ya && window.Ya.DivKit;
	const mount = document.getElementById(target);
	if (!dk || !mount) return false;
	const send = (kind, payload) => window[binding](JSON.stringify({kind, payload}));
	window.__viewnav = dk.render({
		id: 'viewnav',
		target: mount,
		json,
		onError: (e) => send('error', String((e && e.error) || e)),
		onAction: (a) => send('action', a),
		onStat: (s) => send('stat', s),
	});
	return true;
}`

const setDataJS = `(json) => {
	const inst = window.__viewnav;
	if (!inst || typeof inst.setData !== 'function') return false;
	inst.setData(json);
	return true;
}`

// The engine has shipped several setState signatures; try each in turn.
const setStateJS = `(id, next) => {
	const inst = window.__viewnav;
	if (!inst || typeof inst.setState !== 'function') return false;
	try { inst.setState({ id, state_id: next }); return true; } catch (_) {}
	try { inst.setState({ id, stateId: next }); return true; } catch (_) {}
	try { inst.setState(id, next); return true; } catch (_) {}
	return false;
}`

// Mount implements engine.Renderer.
func (r *Renderer) Mount(ctx context.Context, opts engine.MountOptions) error {
	if opts.Target == "" {
		opts.Target = engine.DefaultTarget
	}
	opts.OnAction = engine.Guard(r.cfg.Logger, opts.OnAction)
	opts.OnStat = engine.Guard(r.cfg.Logger, opts.OnStat)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page == nil {
		return engine.ErrNotMounted
	}
	r.opts = opts

	ok, err := r.evalBool(ctx, mountJS, opts.Target, opts.Document, bindingName)
	if err != nil {
		return fmt.Errorf("browser: mount: %w", err)
	}
	if !ok {
		return engine.ErrNoEngine
	}
	r.mounted = true
	return nil
}

// SetData implements engine.Renderer.
func (r *Renderer) SetData(ctx context.Context, doc document.Node) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mounted {
		return engine.ErrNotMounted
	}
	ok, err := r.evalBool(ctx, setDataJS, doc)
	if err != nil {
		return fmt.Errorf("browser: set data: %w", err)
	}
	if !ok {
		return engine.ErrNoEngine
	}
	return nil
}

// ErrNoNativeState is returned when the engine instance lacks a working
// setState. Callers fall back to rewriting the document.
var ErrNoNativeState = errors.New("browser: engine has no native setState")

// SetState implements engine.StateSetter.
func (r *Renderer) SetState(ctx context.Context, target string, state any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mounted {
		return engine.ErrNotMounted
	}
	ok, err := r.evalBool(ctx, setStateJS, target, state)
	if err != nil {
		return fmt.Errorf("browser: set state: %w", err)
	}
	if !ok {
		return ErrNoNativeState
	}
	return nil
}

func (r *Renderer) evalBool(ctx context.Context, js string, args ...any) (bool, error) {
	res, err := r.page.Context(ctx).Eval(js, args...)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// HTML returns the rendered markup of the shell page.
func (r *Renderer) HTML(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page == nil {
		return "", engine.ErrNotMounted
	}
	res, err := r.page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return "", fmt.Errorf("browser: get DOM: %w", err)
	}
	return res.Value.Str(), nil
}

// Close shuts the tab and Chrome down.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleanupLocked()
}

func (r *Renderer) cleanupLocked() error {
	if r.stop != nil {
		r.stop()
		r.stop = nil
	}
	var firstErr error
	if r.page != nil {
		if err := r.page.Close(); err != nil {
			firstErr = err
		}
		r.page = nil
	}
	if r.browser != nil {
		if err := r.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.browser = nil
	}
	if r.lnch != nil {
		r.lnch.Kill()
		r.lnch = nil
	}
	r.mounted = false
	return firstErr
}
