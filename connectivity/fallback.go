package connectivity

import (
	"context"
	"log/slog"
)

// WithFallback serves a fetch from local when the primary handler fails,
// typically a DirHandler over a checked-out pages directory so the client
// keeps working while the backend is down. Context cancellation is not
// retried locally: the caller gave up.
func WithFallback(local Handler, logger *slog.Logger) HandlerMiddleware {
	return func(next Handler) Handler {
		if local == nil {
			return next
		}
		return func(ctx context.Context, path string) ([]byte, error) {
			body, err := next(ctx, path)
			if err == nil {
				return body, nil
			}
			if ctx.Err() != nil {
				return nil, err
			}

			if logger != nil {
				logger.WarnContext(ctx, "connectivity: remote failed, serving local copy",
					"path", path,
					"remote_error", err)
			}

			body, lerr := local(ctx, path)
			if lerr != nil {
				// The remote error is the one worth reporting.
				return nil, err
			}
			return body, nil
		}
	}
}
