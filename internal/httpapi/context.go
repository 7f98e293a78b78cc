package httpapi

import (
	"context"
)

// serverBaseCtx is cancelled on shutdown so in-flight work stops with the process.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		serverBaseCtx = context.Background()
		return
	}
	serverBaseCtx = ctx
}

// joinContexts returns a context derived from a that is also cancelled when
// b is done. The returned cancel func must be called when the handler ends.
func joinContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() { cancel(context.Cause(b)) })
	return ctx, func() {
		stop()
		cancel(context.Canceled)
	}
}

// clientGone reports whether the caller or the server went away.
func clientGone(ctx context.Context) bool {
	return ctx.Err() != nil || serverBaseCtx.Err() != nil
}
