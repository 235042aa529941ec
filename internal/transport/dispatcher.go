package transport

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/tinysip/b2bua/internal/sipmsg"
)

// pollInterval is how long a single ReadFromUDP call is allowed to block
// before returning a timeout, which the dispatch loop treats as "nothing
// available yet" (the Go rendering of a non-blocking recv-then-sleep
// poll, SPEC_FULL.md §4.5).
const pollInterval = 5 * time.Millisecond

// backoffOnError is the longer pause after a genuine (non-timeout) receive
// error, to avoid a tight error loop.
const backoffOnError = 100 * time.Millisecond

// Dispatcher is the single-threaded, non-blocking UDP receive loop (C5): it
// owns the one listening socket and fans datagrams out to a fixed set of
// worker queues by round robin, with no affinity to Call-ID or source
// address (SPEC_FULL.md §4.5, §9 open question 3).
type Dispatcher struct {
	conn       *net.UDPConn
	bufferSize int
	queues     []chan<- sipmsg.Envelope
	next       int
}

// NewDispatcher builds a dispatcher reading from conn and feeding queues in
// round-robin order. bufferSize is the maximum accepted datagram size
// (SPEC_FULL.md §6, BUFFER_SIZE); anything larger is dropped and logged, not
// truncated.
func NewDispatcher(conn *net.UDPConn, bufferSize int, queues []chan<- sipmsg.Envelope) *Dispatcher {
	return &Dispatcher{conn: conn, bufferSize: bufferSize, queues: queues}
}

// Run polls the socket until ctx is cancelled. Each read blocks at most
// pollInterval, and a non-timeout receive error pauses the loop for
// backoffOnError, so cancellation is observed within one of those intervals.
func (d *Dispatcher) Run(ctx context.Context) {
	buf := make([]byte, d.bufferSize+1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = d.conn.SetReadDeadline(time.Now().Add(pollInterval))
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			slog.Warn("dispatcher: receive error", "error", err)
			time.Sleep(backoffOnError)
			continue
		}
		if n == 0 {
			continue
		}
		if n > d.bufferSize {
			slog.Warn("dispatcher: oversize datagram dropped", "bytes", n, "source", addr.String())
			continue
		}

		payload := make([]byte, n)
		copy(payload, buf[:n])
		d.dispatch(sipmsg.Envelope{Buffer: payload, Source: addr})
	}
}

// dispatch hands env to the next worker queue in round-robin order,
// dropping it (and logging) if that worker is backed up — the queue send is
// never allowed to block the single dispatch loop (SPEC_FULL.md §4.5,
// QUEUE_CAPACITY).
func (d *Dispatcher) dispatch(env sipmsg.Envelope) {
	if len(d.queues) == 0 {
		return
	}
	q := d.queues[d.next]
	d.next = (d.next + 1) % len(d.queues)

	select {
	case q <- env:
	default:
		slog.Warn("dispatcher: worker queue full, dropping datagram", "source", env.Source.String())
	}
}
