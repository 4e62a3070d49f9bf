package shield

import "net/http"

// HeaderConfig defines the security headers applied to every response.
// Empty fields are not sent.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// DefaultHeaders returns the header set for the SPA shell. Scripts and
// styles may come from https origins (the rendering engine bundle is usually
// on a CDN) and lesson images from anywhere over https.
func DefaultHeaders() HeaderConfig {
	return HeaderConfig{
		CSP:                 "default-src 'self'; script-src 'self' https:; style-src 'self' 'unsafe-inline' https:; img-src 'self' data: https:; connect-src 'self'; frame-ancestors 'none'",
		XFrameOptions:       "DENY",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(), microphone=(), geolocation=()",
	}
}

func (c HeaderConfig) set(h http.Header) {
	for name, v := range map[string]string{
		"Content-Security-Policy": c.CSP,
		"X-Frame-Options":         c.XFrameOptions,
		"X-Content-Type-Options":  c.XContentTypeOptions,
		"Referrer-Policy":         c.ReferrerPolicy,
		"Permissions-Policy":      c.PermissionsPolicy,
	} {
		if v != "" {
			h.Set(name, v)
		}
	}
}

// SecurityHeaders returns middleware that sets cfg's headers on every
// response.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg.set(w.Header())
			next.ServeHTTP(w, r)
		})
	}
}

// HeadToGet routes HEAD requests to the GET handlers; net/http drops the
// body of HEAD responses.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
