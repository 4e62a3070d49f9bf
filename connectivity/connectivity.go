// Package connectivity fetches backend resources for the navigator.
//
// A Handler maps a resource path ("/lesson/5?i=0") to the raw response
// body. The HTTP transport is the production Handler; DirHandler serves a
// local pages directory. Cross-cutting behaviour (timeout, retry, circuit
// breaking, fallback, recovery, logging) is layered with middlewares that
// keep the Handler signature:
//
//	h := connectivity.Chain(
//	    connectivity.Recovery(logger),
//	    connectivity.Timeout(10*time.Second),
//	    connectivity.WithRetry(1, 200*time.Millisecond, logger),
//	    connectivity.WithCircuitBreaker(cb, "backend"),
//	)(connectivity.HTTPTransport("http://127.0.0.1:5050"))
//
//	fetch := connectivity.FetchDocument(h)
//	doc, err := fetch(ctx, "/home")
package connectivity

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hazyhaar/viewnav/document"
	"github.com/hazyhaar/viewnav/horosafe"
)

// Handler fetches the resource at path and returns its body.
type Handler func(ctx context.Context, path string) ([]byte, error)

// maxResponseBody caps the amount of data read for a single document (10 MiB).
const maxResponseBody int64 = 10 << 20

type httpTransport struct {
	base    string
	client  *http.Client
	ua      string
	maxBody int64
	logger  *slog.Logger
}

// HTTPOption configures HTTPTransport.
type HTTPOption func(*httpTransport)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *httpTransport) { t.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) HTTPOption {
	return func(t *httpTransport) { t.ua = ua }
}

// WithMaxBody caps response bodies. Default: 10 MiB.
func WithMaxBody(n int64) HTTPOption {
	return func(t *httpTransport) { t.maxBody = n }
}

// WithHTTPLogger sets a custom logger.
func WithHTTPLogger(l *slog.Logger) HTTPOption {
	return func(t *httpTransport) { t.logger = l }
}

// HTTPTransport returns a Handler that GETs base+path and accepts any 2xx
// response. Other statuses yield *ErrStatus.
func HTTPTransport(base string, opts ...HTTPOption) Handler {
	t := &httpTransport{
		base:    strings.TrimRight(base, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
		ua:      "viewnav/1.0",
		maxBody: maxResponseBody,
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t.get
}

func (t *httpTransport) get(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.base+path, nil)
	if err != nil {
		return nil, fmt.Errorf("connectivity: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.ua)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connectivity: get %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ErrStatus{Path: path, Code: resp.StatusCode}
	}

	body, err := horosafe.LimitedReadAll(resp.Body, t.maxBody)
	if err != nil {
		return nil, fmt.Errorf("connectivity: read %s: %w", path, err)
	}

	t.logger.DebugContext(ctx, "connectivity: fetched",
		"path", path, "status", resp.StatusCode, "size", len(body))
	return body, nil
}

// FetchDocument adapts h into a document fetch: the body must decode as JSON.
func FetchDocument(h Handler) func(ctx context.Context, path string) (document.Node, error) {
	return func(ctx context.Context, path string) (document.Node, error) {
		body, err := h(ctx, path)
		if err != nil {
			return nil, err
		}
		doc, err := document.Decode(body)
		if err != nil {
			return nil, fmt.Errorf("connectivity: %s: %w", path, err)
		}
		return doc, nil
	}
}
