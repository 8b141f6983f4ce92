package core

import "context"

type contextKey string

const ctxKeyRequester contextKey = "audit_requester"

// Requester identifies the client that started a run. It is stored on the
// audit record.
type Requester struct {
	IPAddress string
	UserAgent string
}

// ContextWithRequester adds the requester to ctx for audit logging.
func ContextWithRequester(ctx context.Context, r Requester) context.Context {
	return context.WithValue(ctx, ctxKeyRequester, r)
}

// RequesterFromContext returns the requester stored in ctx, or the zero
// Requester for runs started outside HTTP (CLI, poller).
func RequesterFromContext(ctx context.Context) Requester {
	if r, ok := ctx.Value(ctxKeyRequester).(Requester); ok {
		return r
	}
	return Requester{}
}
