package prefetch

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/hazyhaar/viewnav/horosafe"
)

// HTTPWarmer prewarms images by GETting them with a bounded number of
// workers. Relative URLs are resolved against the backend base URL. Absolute
// URLs pointing at private addresses are skipped unless they target the
// backend itself.
type HTTPWarmer struct {
	base    *url.URL
	client  *http.Client
	workers int
	logger  *slog.Logger
}

// WarmerOption configures an HTTPWarmer.
type WarmerOption func(*HTTPWarmer)

// WithWarmerWorkers bounds concurrent image requests. Default: 4.
func WithWarmerWorkers(n int) WarmerOption {
	return func(w *HTTPWarmer) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithWarmerTimeout bounds each image request. Default: 5s.
func WithWarmerTimeout(d time.Duration) WarmerOption {
	return func(w *HTTPWarmer) {
		if d > 0 {
			w.client = &http.Client{Timeout: d}
		}
	}
}

// WithWarmerLogger sets a custom logger.
func WithWarmerLogger(l *slog.Logger) WarmerOption {
	return func(w *HTTPWarmer) { w.logger = l }
}

// NewHTTPWarmer creates a warmer resolving relative image URLs against base.
func NewHTTPWarmer(base string, opts ...WarmerOption) *HTTPWarmer {
	w := &HTTPWarmer{
		client:  &http.Client{Timeout: 5 * time.Second},
		workers: 4,
		logger:  slog.Default(),
	}
	if u, err := url.Parse(base); err == nil {
		w.base = u
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Warm fetches every URL and discards the bodies. It returns when all
// requests are done; errors are logged at debug level and dropped.
func (w *HTTPWarmer) Warm(ctx context.Context, urls []string) {
	sem := make(chan struct{}, w.workers)
	var wg sync.WaitGroup
	for _, raw := range urls {
		target, ok := w.resolve(raw)
		if !ok {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			w.get(ctx, target)
		}()
	}
	wg.Wait()
}

func (w *HTTPWarmer) resolve(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	var trusted []string
	if w.base != nil {
		u = w.base.ResolveReference(u)
		trusted = append(trusted, w.base.Host)
	}
	if err := horosafe.ValidateURL(u.String(), trusted...); err != nil {
		w.logger.Debug("prefetch: image skipped", "url", raw, "error", err)
		return "", false
	}
	return u.String(), true
}

func (w *HTTPWarmer) get(ctx context.Context, target string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return
	}
	req.Header.Set("Accept", "image/*")
	resp, err := w.client.Do(req)
	if err != nil {
		w.logger.DebugContext(ctx, "prefetch: image warm failed", "url", target, "error", err)
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 16<<20))
}
