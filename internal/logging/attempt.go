package logging

import (
	"context"
	"log/slog"
)

// AttemptKey is the attribute key of the location attempt a record belongs to.
const AttemptKey = "attemptID"

// ContextProvider returns process-wide attributes such as the site name.
// It runs for every record, so it must not take a lock that is held while logging.
type ContextProvider func() []slog.Attr

type attemptCtxKey struct{}

// WithAttempt returns a copy of ctx that tags records logged with it with
// attemptID.
func WithAttempt(ctx context.Context, attemptID string) context.Context {
	return context.WithValue(ctx, attemptCtxKey{}, attemptID)
}

// AttemptFrom returns the attempt ID stored by WithAttempt.
func AttemptFrom(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(attemptCtxKey{}).(string)
	return id, ok && id != ""
}

// attemptHandler adds the attempt ID carried by the record's context and the
// provider's attributes before passing the record on.
type attemptHandler struct {
	next     slog.Handler
	provider ContextProvider
}

func (h *attemptHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *attemptHandler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := AttemptFrom(ctx); ok {
		r.AddAttrs(slog.String(AttemptKey, id))
	}
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	return h.next.Handle(ctx, r)
}

func (h *attemptHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &attemptHandler{next: h.next.WithAttrs(attrs), provider: h.provider}
}

func (h *attemptHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &attemptHandler{next: h.next.WithGroup(name), provider: h.provider}
}
