// Package kit holds the small cross-cutting pieces shared by the chirp
// transports: typed context keys and the endpoint/MCP adapters.
package kit

import "context"

// Endpoint is a transport-agnostic operation: decode happens in the
// transport adapter, the endpoint sees only the typed request.
type Endpoint func(ctx context.Context, req any) (any, error)

type contextKey string

const (
	RequestIDKey contextKey = "kit_request_id"
	TransportKey contextKey = "kit_transport" // "http", "mcp"
	UserIDKey    contextKey = "kit_user_id"
)

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, TransportKey, t)
}
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(TransportKey).(string); ok {
		return v
	}
	return "http"
}

func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, UserIDKey, id)
}
func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(UserIDKey).(string)
	return v
}
