package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"ai-answering-machine/internal/domain/ports/adapter"
)

// eventStream writes server-sent events.
type eventStream struct {
	w http.ResponseWriter
	f http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &eventStream{w: w, f: f}, true
}

func (s *eventStream) send(event string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// latest is a one-slot mailbox: an unread value is replaced by a newer one.
type latest[T any] struct {
	c chan T
}

func newLatest[T any]() *latest[T] { return &latest[T]{c: make(chan T, 1)} }

func (l *latest[T]) put(v T) {
	for {
		select {
		case l.c <- v:
			return
		default:
		}
		select {
		case <-l.c:
		default:
		}
	}
}

// NoticeBroker fans generation notices out to every open notice stream.
type NoticeBroker struct {
	mu   sync.Mutex
	next int
	subs map[int]chan adapter.Notice
}

var _ adapter.Notifier = (*NoticeBroker)(nil)

func NewNoticeBroker() *NoticeBroker {
	return &NoticeBroker{subs: make(map[int]chan adapter.Notice)}
}

// Notify never blocks; a subscriber that is not keeping up misses the notice.
func (b *NoticeBroker) Notify(_ context.Context, n adapter.Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- n:
		default:
		}
	}
}

func (b *NoticeBroker) subscribe() (<-chan adapter.Notice, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan adapter.Notice, 8)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}
