package engine

import (
	"context"
	"sync"
)

// Producer is a finite, single-use sequence of partial results. Each value
// supersedes the previous one.
type Producer[T any] interface {
	// Next returns the next value. ok is false once the sequence is exhausted;
	// a producer must stop early and report !ok or ctx's error when ctx is done.
	Next(ctx context.Context) (v T, ok bool, err error)
	// Close releases resources. It is safe to call more than once.
	Close() error
}

// SliceProducer yields the given values in order.
func SliceProducer[T any](values ...T) Producer[T] {
	return &sliceProducer[T]{values: values}
}

type sliceProducer[T any] struct {
	values []T
	i      int
}

func (p *sliceProducer[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if p.i >= len(p.values) {
		return zero, false, nil
	}
	v := p.values[p.i]
	p.i++
	return v, true, nil
}

func (p *sliceProducer[T]) Close() error { return nil }

// MapProducer applies fn to every value of src.
func MapProducer[S, T any](src Producer[S], fn func(S) T) Producer[T] {
	return &mapProducer[S, T]{src: src, fn: fn}
}

type mapProducer[S, T any] struct {
	src Producer[S]
	fn  func(S) T
}

func (p *mapProducer[S, T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	v, ok, err := p.src.Next(ctx)
	if err != nil || !ok {
		return zero, ok, err
	}
	return p.fn(v), true, nil
}

func (p *mapProducer[S, T]) Close() error { return p.src.Close() }

// ChanProducer adapts a callback-driven generator. The returned emit func
// forwards a value and blocks until the consumer takes it or ctx is done; it
// returns false when the consumer is gone. finish must be called exactly once
// when the generator returns.
func ChanProducer[T any](ctx context.Context) (p Producer[T], emit func(T) bool, finish func(error)) {
	cp := &chanProducer[T]{
		values: make(chan T),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	emit = func(v T) bool {
		select {
		case cp.values <- v:
			return true
		case <-cp.closed:
			return false
		case <-ctx.Done():
			return false
		}
	}
	finish = func(err error) {
		cp.err = err
		close(cp.done)
	}
	return cp, emit, finish
}

type chanProducer[T any] struct {
	values    chan T
	done      chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	err       error
}

func (p *chanProducer[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	select {
	case v := <-p.values:
		return v, true, nil
	case <-p.done:
		return zero, false, p.err
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (p *chanProducer[T]) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}
