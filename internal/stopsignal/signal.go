// Package stopsignal implements the process-wide "stop generating" broadcast.
//
// Every generation or scoring call obtains its context from Begin. A Stop that
// happens while calls are running cancels all of them; a Stop that happens
// while nothing is running is consumed by the next Begin so it cannot abort an
// unrelated request.
package stopsignal

import (
	"context"
	"errors"
	"sync"
)

// ErrStopped is the cancellation cause of contexts aborted by Stop.
var ErrStopped = errors.New("generation stopped")

// Signal is a broadcast stop flag. The zero value is ready to use.
type Signal struct {
	mu       sync.Mutex
	ch       chan struct{}
	fired    bool
	inflight int
	stops    uint64
}

// New returns a Signal.
func New() *Signal { return &Signal{} }

// Stop fires the signal. It always succeeds, whether or not anything is running.
func (s *Signal) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	if s.ch == nil {
		s.ch = make(chan struct{})
	}
	if !s.fired {
		close(s.ch)
		s.fired = true
	}
}

// Begin registers a new call and returns a context that is cancelled with
// cause ErrStopped when Stop is called before the returned release func runs.
// Parent cancellation propagates as usual. release must always be called.
func (s *Signal) Begin(parent context.Context) (context.Context, func()) {
	s.mu.Lock()
	if s.ch == nil || s.fired {
		// a stop fired before this call began belongs to earlier calls
		s.ch = make(chan struct{})
		s.fired = false
	}
	ch := s.ch
	s.inflight++
	s.mu.Unlock()

	ctx, cancel := context.WithCancelCause(parent)
	done := make(chan struct{})
	go func() {
		select {
		case <-ch:
			cancel(ErrStopped)
		case <-done:
		case <-ctx.Done():
		}
	}()

	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(done)
			cancel(context.Canceled)
			s.mu.Lock()
			s.inflight--
			s.mu.Unlock()
		})
	}
}

// Stopped reports whether ctx was aborted by Stop.
func Stopped(ctx context.Context) bool {
	return errors.Is(context.Cause(ctx), ErrStopped)
}

// Inflight returns the number of calls currently registered with Begin.
func (s *Signal) Inflight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight
}

// Stops returns how many times Stop was called.
func (s *Signal) Stops() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
