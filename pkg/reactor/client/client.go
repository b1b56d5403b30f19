// Package client implements the per-connection state a Dispatch reactor owns:
// an incremental parser feeding off the socket, and a sequence-ordered queue
// of response bytes waiting to be flushed back out in the order their
// requests arrived, regardless of the order the Worker pool finishes them.
package client

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/yourusername/reactorhttp/pkg/reactor/message"
	"github.com/yourusername/reactorhttp/pkg/reactor/parser"
)

// ChunkSize bounds how many bytes a single Flush call will write, so one
// busy connection can't starve the reactor that owns it. It is also the size
// of each read HandleRead makes; HandleRead keeps reading until the socket
// has nothing more ready.
const ChunkSize = 4096

// NotifyFunc is how a Client tells its owning Dispatch "I have data ready to
// write, and you might be blocked in epoll_wait not knowing it", the case
// that happens whenever a Worker finishes a task on a thread that isn't the
// Dispatch's own.
type NotifyFunc func(fd int)

// Client is not safe for unrestricted concurrent use. Two field groups are
// cross-thread: outgoing, written, emittedSequence and wrhup, guarded by mu,
// because Workers deliver results to AddOutgoing from arbitrary goroutines;
// and the atomic pending counter. Every other field (parser, nextSequence,
// closing) is touched only by the
// single Dispatch goroutine that owns this Client's fd, by design, and so
// carries no lock.
type Client struct {
	fd     int
	id     uuid.UUID
	parser *parser.Parser
	notify NotifyFunc

	// Dispatch-thread-only.
	nextSequence uint64
	closing      bool

	// Guarded by mu.
	mu              sync.Mutex
	outgoing        map[uint64][]byte
	written         int
	emittedSequence uint64
	wrhup           bool

	// Cross-thread, atomic: incremented when a request is dispatched to a
	// Worker, decremented unconditionally when that Worker's result reaches
	// AddOutgoing, even if the result is discarded because wrhup is set.
	// That unconditional decrement is what lets Quiescence hold even for a
	// connection that got torn down mid-flight.
	pending atomic.Int64
}

// New wraps an accepted, non-blocking socket fd. notify is called (possibly
// from a Worker goroutine) whenever new data becomes available to write.
func New(fd int, id uuid.UUID, notify NotifyFunc) *Client {
	return &Client{
		fd:       fd,
		id:       id,
		parser:   parser.New(),
		notify:   notify,
		outgoing: make(map[uint64][]byte),
	}
}

func (c *Client) FD() int       { return c.fd }
func (c *Client) ID() uuid.UUID { return c.id }

// NextSequence assigns and returns the sequence number for the next request
// read off this connection. Dispatch-thread-only.
func (c *Client) NextSequence() uint64 {
	seq := c.nextSequence
	c.nextSequence++
	return seq
}

// SetClosing marks this connection for teardown once its in-flight work
// drains. Dispatch-thread-only.
func (c *Client) SetClosing()     { c.closing = true }
func (c *Client) IsClosing() bool { return c.closing }

// HadParseError reports whether this connection's parser has hit malformed
// input. Dispatch-thread-only; used to drive the parse-error metric right
// after a HandleRead call.
func (c *Client) HadParseError() bool { return c.parser.IsError() }

// IncrementPending records that one more request from this connection has
// been handed to a Worker and has not yet reported a result.
func (c *Client) IncrementPending() {
	c.pending.Add(1)
}

// HandleRead drains everything currently available on the socket into the
// parser, in ChunkSize pieces, stopping on EAGAIN (nothing more to read
// right now), EOF (hup), or a real error. It returns every request the
// parser committed along the way.
//
// If the parser's error flag came up during this read, HandleRead queues a
// bare 400 status line at the connection's current write cursor and marks
// the connection closing: a malformed request poisons the parser's framing
// for everything after it, so there's no safe way to keep reading this
// connection.
func (c *Client) HandleRead() (requests []message.Request, hup bool, err error) {
	buf := make([]byte, ChunkSize)
	for {
		n, rerr := unix.Read(c.fd, buf)
		if n > 0 {
			c.parser.Process(buf[:n])
		}
		if rerr == unix.EAGAIN || rerr == unix.EWOULDBLOCK {
			break
		}
		if rerr != nil {
			return c.parser.TakeRequests(), false, rerr
		}
		if n == 0 {
			hup = true
			break
		}
		if n < len(buf) {
			// Short read with no error: the socket had less than a full
			// buffer ready. Edge-triggered epoll only re-arms on new data,
			// so there's nothing else to drain this pass.
			break
		}
	}

	requests = c.parser.TakeRequests()
	if c.parser.IsError() {
		c.queueBadRequest()
		c.closing = true
	}
	return requests, hup, nil
}

// queueBadRequest writes the fixed 400 status line into whatever sequence
// slot the write queue is currently waiting to flush, so it goes out next
// regardless of how many earlier requests are still being worked on. The
// connection is being abandoned either way once this flushes.
func (c *Client) queueBadRequest() {
	c.mu.Lock()
	if !c.wrhup {
		c.outgoing[c.emittedSequence] = message.BadRequestStatusLine()
	}
	c.mu.Unlock()
}

// AddOutgoing is the one method Workers call from their own goroutines. A
// connection already marked wrhup discards the result instead of queuing
// it, but pending is always decremented: Quiescence depends on that holding
// even for work that completes after the connection gave up.
func (c *Client) AddOutgoing(sequence uint64, body []byte) {
	c.mu.Lock()
	discarded := c.wrhup
	if !discarded {
		c.outgoing[sequence] = body
	}
	c.mu.Unlock()

	c.pending.Add(-1)

	if !discarded {
		c.notify(c.fd)
	}
}

// QueueImmediate queues bytes at a sequence slot without touching pending:
// it's for responses Dispatch itself synthesizes (a 404 for an unregistered
// route) rather than results that came back from a Worker. Dispatch-thread
// callers only; it still takes the outgoing lock since AddOutgoing can run
// concurrently with it from a Worker goroutine.
func (c *Client) QueueImmediate(sequence uint64, body []byte) {
	c.mu.Lock()
	if !c.wrhup {
		c.outgoing[sequence] = body
	}
	c.mu.Unlock()
}

// FlushResult tells the caller what to do next after a Flush call: keep
// retrying right away, wait for another epoll edge, or leave it be.
type FlushResult int

const (
	// FlushDone means there was nothing writable at the head of the queue:
	// either the queue is genuinely empty, or the next sequence in line
	// hasn't arrived from a Worker yet. Either way there's no more
	// productive write to attempt until something new is queued.
	FlushDone FlushResult = iota
	// FlushPending means ChunkSize bytes were written without the socket
	// ever refusing a byte: there is more queued, and the socket is still
	// writable. Edge-triggered epoll will not re-deliver EPOLLOUT for a
	// socket that never became write-blocked, so the caller must re-arm
	// this fd for another immediate attempt itself.
	FlushPending
	// FlushBlocked means the write hit EAGAIN/EWOULDBLOCK (or a short
	// write) and must wait for the next EPOLLOUT edge before retrying.
	FlushBlocked
	// FlushContended means the outgoing lock was held by a concurrent
	// AddOutgoing/QueueImmediate call. The caller should retry shortly.
	FlushContended
)

// Flush writes up to ChunkSize bytes from the front of the ordered write
// queue. It serves both roles the original single-shot write path played:
// the normal EPOLLOUT-driven write, and the shutdown drain's best-effort
// final attempt, which polls without waiting for another epoll edge.
//
// Flush never blocks waiting for the outgoing lock: a Worker only ever
// holds it briefly to deliver a result, so on contention Flush returns
// FlushContended immediately rather than stalling the reactor goroutine.
func (c *Client) Flush() (FlushResult, error) {
	if !c.mu.TryLock() {
		return FlushContended, nil
	}
	defer c.mu.Unlock()

	budget := ChunkSize
	for budget > 0 {
		data, ok := c.outgoing[c.emittedSequence]
		if !ok {
			return c.flushDoneLocked(), nil
		}
		remaining := data[c.written:]
		if len(remaining) == 0 {
			delete(c.outgoing, c.emittedSequence)
			c.emittedSequence++
			c.written = 0
			continue
		}

		chunk := remaining
		if len(chunk) > budget {
			chunk = chunk[:budget]
		}
		n, err := unix.Write(c.fd, chunk)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return FlushBlocked, nil
			}
			return FlushBlocked, err
		}
		c.written += n
		budget -= n
		if n < len(chunk) {
			return FlushBlocked, nil
		}
	}

	return FlushPending, nil
}

// flushDoneLocked resets the write cursor and the sequence counter back to
// baseline once the queue is truly empty and nothing is still in flight, so
// the next request's sequence is again the one the cursor waits for. Called
// with mu held, from the Dispatch goroutine (which owns nextSequence).
func (c *Client) flushDoneLocked() FlushResult {
	if len(c.outgoing) == 0 && c.pending.Load() == 0 {
		c.emittedSequence = 0
		c.nextSequence = 0
		c.written = 0
	}
	return FlushDone
}

// IsPending reports whether this connection has any work in flight: a
// Worker still holding a request, a response still queued to write, or a
// parser mid-request. Quiescence requires all three to be false at once.
func (c *Client) IsPending() bool {
	if c.pending.Load() != 0 {
		return true
	}
	c.mu.Lock()
	empty := len(c.outgoing) == 0
	c.mu.Unlock()
	return !(empty && c.parser.IsFresh())
}

// InitiateShutdown marks the connection so any result that arrives for it
// from here on is discarded rather than queued. It does not touch bytes
// already queued: Dispatch's shutdown drain still gets a chance to flush
// those via Flush before Close.
func (c *Client) InitiateShutdown() {
	c.mu.Lock()
	c.wrhup = true
	c.mu.Unlock()
	c.closing = true
}

// Close releases the underlying socket. Safe to call once, after Dispatch
// has removed this Client from its fd map and epoll interest set.
func (c *Client) Close() error {
	return unix.Close(c.fd)
}
