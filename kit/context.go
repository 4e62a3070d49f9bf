package kit

import "context"

type contextKey string

const (
	NavigationIDKey contextKey = "kit_navigation_id"
	TransportKey    contextKey = "kit_transport" // "cli", "mcp", "browser"
	RequestIDKey    contextKey = "kit_request_id"
)

// WithNavigationID tags ctx with the id of the navigation it belongs to.
func WithNavigationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, NavigationIDKey, id)
}
func GetNavigationID(ctx context.Context) string {
	v, _ := ctx.Value(NavigationIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "cli"
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}
