package middleware

import "context"

type contextKey int

const (
	ctxUserID contextKey = iota
	ctxRole
	ctxStore
	ctxReqID
)

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func UserIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxUserID) }

func RoleFromContext(ctx context.Context) string { return stringValue(ctx, ctxRole) }

// StoreFromContext returns the store domain from a seller token.
func StoreFromContext(ctx context.Context) string { return stringValue(ctx, ctxStore) }

func RequestIDFromContext(ctx context.Context) string { return stringValue(ctx, ctxReqID) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withString(ctx, ctxUserID, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withString(ctx, ctxRole, role)
}

func WithStore(ctx context.Context, store string) context.Context {
	return withString(ctx, ctxStore, store)
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withString(ctx, ctxReqID, requestID)
}
