// Package generation turns incremental model output into blocking results.
package generation

import (
	"context"
	"errors"

	"modelapi/internal/engine"
	"modelapi/internal/stopsignal"
)

// Drain consumes p and returns the last value it produced, or fallback when it
// produced nothing. A stop requested through the stop signal ends the drain
// early without error; any other cancellation of ctx is returned as ctx's error.
func Drain[T any](ctx context.Context, p engine.Producer[T], fallback T) (T, error) {
	defer p.Close()
	last := fallback
	for {
		v, ok, err := p.Next(ctx)
		if err != nil {
			if stopsignal.Stopped(ctx) {
				return last, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil && isContextErr(err) {
				return last, ctxErr
			}
			return last, err
		}
		if !ok {
			if stopsignal.Stopped(ctx) {
				return last, nil
			}
			if err := ctx.Err(); err != nil {
				return last, err
			}
			return last, nil
		}
		last = v
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
