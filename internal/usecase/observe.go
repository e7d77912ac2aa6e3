package usecase

import (
	"context"
	"sync"
)

// watchers holds per-task observer callbacks. Callbacks run on the
// publishing goroutine, outside the lock.
type watchers[S any] struct {
	mu    sync.Mutex
	next  int
	byKey map[string]map[int]func(S)
}

func newWatchers[S any]() *watchers[S] {
	return &watchers[S]{byKey: make(map[string]map[int]func(S))}
}

func (w *watchers[S]) add(key string, fn func(S)) func() {
	w.mu.Lock()
	id := w.next
	w.next++
	if w.byKey[key] == nil {
		w.byKey[key] = make(map[int]func(S))
	}
	w.byKey[key][id] = fn
	w.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.byKey[key], id)
			if len(w.byKey[key]) == 0 {
				delete(w.byKey, key)
			}
			w.mu.Unlock()
		})
	}
}

func (w *watchers[S]) publish(key string, s S) {
	w.mu.Lock()
	fns := make([]func(S), 0, len(w.byKey[key]))
	for _, fn := range w.byKey[key] {
		fns = append(fns, fn)
	}
	w.mu.Unlock()
	for _, fn := range fns {
		fn(s)
	}
}

// runTable tracks the in-flight run per key. A newer run cancels the older
// one and takes over; the older run's token goes stale. Not safe for
// concurrent use: callers hold their own lock.
type runTable struct {
	next uint64
	live map[string]runSlot
}

type runSlot struct {
	token  uint64
	cancel context.CancelFunc
}

func newRunTable() runTable { return runTable{live: make(map[string]runSlot)} }

func (r *runTable) begin(ctx context.Context, key string) (context.Context, uint64) {
	if prev, ok := r.live[key]; ok {
		prev.cancel()
	}
	r.next++
	runCtx, cancel := context.WithCancel(ctx)
	r.live[key] = runSlot{token: r.next, cancel: cancel}
	return runCtx, r.next
}

func (r *runTable) current(key string, token uint64) bool {
	slot, ok := r.live[key]
	return ok && slot.token == token
}

func (r *runTable) inFlight(key string) bool {
	_, ok := r.live[key]
	return ok
}

// end releases the slot if token still owns it.
func (r *runTable) end(key string, token uint64) {
	if slot, ok := r.live[key]; ok && slot.token == token {
		slot.cancel()
		delete(r.live, key)
	}
}
