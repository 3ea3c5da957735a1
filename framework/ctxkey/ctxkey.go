package ctxkey

import "context"

type contextKey string

func (c contextKey) String() string {
	return "cqrskit " + string(c)
}

var (
	contextKeyCorrelationID = contextKey("correlation-id")
	contextKeyCausationID   = contextKey("causation-id")
)

// WithCorrelationID returns a context carrying id, the command router
// copies it into the metadata of every event it publishes.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyCorrelationID, id)
}

// CorrelationID gets the correlation id from the context. If none is
// present the empty string is returned.
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyCorrelationID).(string)
	return id
}

// WithCausationID returns a context carrying the id of the event which
// caused the work being done, event handlers issuing commands set it.
func WithCausationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyCausationID, id)
}

// CausationID gets the causation id from the context, or the empty
// string.
func CausationID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyCausationID).(string)
	return id
}
