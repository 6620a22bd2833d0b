package clients

import "context"

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// ClientUIDKey is the context key for the caller identity (X-Client-UID header)
const ClientUIDKey contextKey = "client-uid"

// WithClientUID adds a client uid to the context.
// DoRequest forwards it as the X-Client-UID header.
func WithClientUID(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, ClientUIDKey, uid)
}

// GetClientUID retrieves the client uid from context
func GetClientUID(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(ClientUIDKey).(string)
	return uid, ok && uid != ""
}
