package transport

import (
	"context"
	"log/slog"

	"github.com/tinysip/b2bua/internal/sipmsg"
)

// Handler is the seam between the transport fabric and SIP semantics: a
// worker does nothing but dequeue and hand off to one of these
// (SPEC_FULL.md §4.6 — the dialog core's Engine implements it).
type Handler interface {
	Handle(env sipmsg.Envelope)
}

// Worker is one of the fixed MAX_THREADS worker goroutines (C6): it blocks
// on its own bounded queue and hands each envelope to Handler in turn,
// recovering from any panic so one bad datagram can't take the whole pool
// down (SPEC_FULL.md §7).
type Worker struct {
	id      int
	queue   chan sipmsg.Envelope
	handler Handler
}

// NewWorker creates a worker with a queue of the given capacity
// (QUEUE_CAPACITY) backed by handler.
func NewWorker(id int, capacity int, handler Handler) *Worker {
	return &Worker{id: id, queue: make(chan sipmsg.Envelope, capacity), handler: handler}
}

// Queue returns the worker's inbound queue as a send-only channel, for the
// dispatcher to feed.
func (w *Worker) Queue() chan<- sipmsg.Envelope {
	return w.queue
}

// Run dequeues and handles envelopes until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-w.queue:
			w.safeHandle(env)
		}
	}
}

func (w *Worker) safeHandle(env sipmsg.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("worker: recovered from panic handling datagram", "worker", w.id, "panic", r)
		}
	}()
	w.handler.Handle(env)
}
