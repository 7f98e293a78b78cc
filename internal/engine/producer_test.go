package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSliceProducer(t *testing.T) {
	p := SliceProducer("a", "ab", "abc")
	ctx := context.Background()
	var got []string
	for {
		v, ok, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		got = append(got, v)
	}
	if len(got) != 3 || got[2] != "abc" {
		t.Fatalf("unexpected values: %v", got)
	}
}

func TestMapProducer(t *testing.T) {
	p := MapProducer(SliceProducer(1, 2), func(i int) int { return i * 10 })
	v, ok, _ := p.Next(context.Background())
	if !ok || v != 10 {
		t.Fatalf("got %v %v", v, ok)
	}
}

func TestChanProducer_DeliversThenFinishes(t *testing.T) {
	ctx := context.Background()
	p, emit, finish := ChanProducer[string](ctx)
	go func() {
		emit("x")
		emit("xy")
		finish(nil)
	}()
	var last string
	for {
		v, ok, err := p.Next(ctx)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if !ok {
			break
		}
		last = v
	}
	if last != "xy" {
		t.Fatalf("last=%q", last)
	}
}

func TestChanProducer_FinishError(t *testing.T) {
	ctx := context.Background()
	p, _, finish := ChanProducer[int](ctx)
	boom := errors.New("boom")
	go finish(boom)
	if _, ok, err := p.Next(ctx); ok || !errors.Is(err, boom) {
		t.Fatalf("expected boom, got ok=%v err=%v", ok, err)
	}
}

func TestChanProducer_CloseUnblocksEmit(t *testing.T) {
	ctx := context.Background()
	p, emit, _ := ChanProducer[int](ctx)
	res := make(chan bool, 1)
	go func() { res <- emit(1) }()
	_ = p.Close()
	select {
	case ok := <-res:
		if ok {
			t.Fatal("emit reported delivery after close")
		}
	case <-time.After(time.Second):
		t.Fatal("emit still blocked after Close")
	}
}

func TestScore(t *testing.T) {
	r := Score([]float64{0, -1.5, -0.5})
	if r.Logit != -2 || r.Len != 3 {
		t.Fatalf("unexpected score: %+v", r)
	}
}
