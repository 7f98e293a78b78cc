package httpapi

import (
	"context"
	"time"
)

// gate bounds how many compute requests run at once. A nil gate admits everything.
type gate struct {
	slots chan struct{}
	wait  time.Duration
}

func newGate(max int, wait time.Duration) *gate {
	if max <= 0 {
		return nil
	}
	return &gate{slots: make(chan struct{}, max), wait: wait}
}

// acquire reserves a slot, waiting up to g.wait. The returned release func
// must be deferred.
func (g *gate) acquire(ctx context.Context) (func(), error) {
	if g == nil {
		return func() {}, nil
	}
	t := time.NewTimer(g.wait)
	defer t.Stop()
	select {
	case g.slots <- struct{}{}:
		admissionSlots.Inc()
		return func() {
			<-g.slots
			admissionSlots.Dec()
		}, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	case <-t.C:
		return func() {}, tooBusyError{wait: g.wait}
	}
}
