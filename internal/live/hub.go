// Package live turns store mutations into re-evaluated query results.
package live

import (
	"context"
	"sync"
)

type Collection string

const (
	Tasks         Collection = "tasks"
	Conversations Collection = "conversations"
)

// Hub fans mutation signals out to subscribers of a collection. Signals are
// coalesced: a slow subscriber sees at most one pending signal.
type Hub struct {
	mu     sync.Mutex
	nextID int
	subs   map[Collection]map[int]chan struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[Collection]map[int]chan struct{})}
}

// Subscribe returns a signal channel for c and a function that releases it.
func (h *Hub) Subscribe(c Collection) (<-chan struct{}, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan struct{}, 1)
	if h.subs[c] == nil {
		h.subs[c] = make(map[int]chan struct{})
	}
	h.subs[c][id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[c], id)
			h.mu.Unlock()
		})
	}
}

// Notify signals every subscriber of c without blocking.
func (h *Hub) Notify(c Collection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[c] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns how many subscribers c has.
func (h *Hub) Subscribers(c Collection) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[c])
}

// Query is the re-evaluated part of a live query.
type Query[T any] func(ctx context.Context) (T, error)

// Watch is a running live query. C holds only the latest result; older
// unread results are replaced.
type Watch[T any] struct {
	C      <-chan T
	cancel context.CancelFunc
	done   chan struct{}
}

// Cancel stops the watch and waits for the evaluation goroutine to exit.
func (w *Watch[T]) Cancel() {
	w.cancel()
	<-w.done
}

// Start evaluates q once immediately and again after every signal. Errors are
// reported through onErr and skip the emission. Closing signals or cancelling
// ctx ends the watch; release is called on exit.
func Start[T any](ctx context.Context, signals <-chan struct{}, release func(), q Query[T], onErr func(error)) *Watch[T] {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan T, 1)
	w := &Watch[T]{C: out, cancel: cancel, done: make(chan struct{})}

	emit := func() {
		v, err := q(ctx)
		if err != nil {
			if onErr != nil && ctx.Err() == nil {
				onErr(err)
			}
			return
		}
		for {
			select {
			case out <- v:
				return
			default:
			}
			select {
			case <-out:
			default:
			}
		}
	}

	go func() {
		defer close(w.done)
		defer close(out)
		if release != nil {
			defer release()
		}
		emit()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
				emit()
			}
		}
	}()
	return w
}
