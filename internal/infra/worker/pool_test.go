//go:build !integration

package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestPool_RunsAndDrains(t *testing.T) {
	p := NewPool(2, 8, nil)
	p.Start(context.Background())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := p.Submit(func(context.Context) error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}
	p.Stop()
	if got := ran.Load(); got != 5 {
		t.Fatalf("Stop should drain queued tasks, ran %d of 5", got)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrStopped) {
		t.Fatalf("expected ErrStopped after Stop, got %v", err)
	}
	p.Stop()
}

func TestPool_QueueFull(t *testing.T) {
	p := NewPool(1, 1, nil)
	// not started: the single slot fills and the next submit is rejected
	if err := p.Submit(func(context.Context) error { return nil }); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if err := p.Submit(func(context.Context) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	p.Start(context.Background())
	p.Stop()
}

func TestPool_SurvivesPanicAndError(t *testing.T) {
	p := NewPool(1, 4, nil)
	p.Start(context.Background())
	var after atomic.Bool
	_ = p.Submit(func(context.Context) error { panic("boom") })
	_ = p.Submit(func(context.Context) error { return errors.New("bad") })
	_ = p.Submit(func(context.Context) error { after.Store(true); return nil })
	p.Stop()
	if !after.Load() {
		t.Fatal("worker should keep running after a panic or an error")
	}
}
