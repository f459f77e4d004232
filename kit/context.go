package kit

import "context"

type contextKey string

const (
	AccountIDKey  contextKey = "kit_account_id"
	DeviceIDKey   contextKey = "kit_device_id"
	DocumentKey   contextKey = "kit_document"
	SessionIDKey  contextKey = "kit_session_id"
	TransportKey  contextKey = "kit_transport" // "http", "ws", "mcp"
	RequestIDKey  contextKey = "kit_request_id"
	TraceIDKey    contextKey = "kit_trace_id"
	RemoteAddrKey contextKey = "kit_remote_addr"
	TierKey       contextKey = "kit_tier"
)

func WithAccountID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, AccountIDKey, id)
}
func GetAccountID(ctx context.Context) string {
	v, _ := ctx.Value(AccountIDKey).(string)
	return v
}

func WithDeviceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DeviceIDKey, id)
}
func GetDeviceID(ctx context.Context) string {
	v, _ := ctx.Value(DeviceIDKey).(string)
	return v
}

// WithDocument attaches the normalized document identity the request is
// operating on.
func WithDocument(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, DocumentKey, identity)
}
func GetDocument(ctx context.Context) string {
	v, _ := ctx.Value(DocumentKey).(string)
	return v
}

func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}
func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(SessionIDKey).(string)
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

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(RequestIDKey).(string)
	return v
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, TraceIDKey, id)
}
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}

func WithRemoteAddr(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, RemoteAddrKey, addr)
}
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(RemoteAddrKey).(string)
	return v
}

func WithTier(ctx context.Context, tier string) context.Context {
	return context.WithValue(ctx, TierKey, tier)
}
func GetTier(ctx context.Context) string {
	v, _ := ctx.Value(TierKey).(string)
	return v
}
