// Package dispatch implements the epoll-driven reactor: one goroutine per
// Dispatch owns an epoll instance, the Clients registered on it, and drives
// their reads, writes, and request hand-off to the shared Worker pool.
package dispatch

import (
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/yourusername/reactorhttp/pkg/cmap"
	"github.com/yourusername/reactorhttp/pkg/reactor/client"
	"github.com/yourusername/reactorhttp/pkg/reactor/message"
	"github.com/yourusername/reactorhttp/pkg/reactor/metrics"
	"github.com/yourusername/reactorhttp/pkg/reactor/worker"
)

const (
	maxEvents    = 1000
	epollTimeout = 1000 // milliseconds; bounds how late a status log or a
	// shutdown drain check can run, without busy-spinning an idle reactor.
	statusInterval = 5 * time.Second

	epollFlags = unix.EPOLLIN | unix.EPOLLOUT | unix.EPOLLRDHUP | unix.EPOLLHUP | unix.EPOLLET
)

// Dispatch owns one epoll instance and every Client registered on it. Its
// Run method is the reactor loop and must be called from exactly one
// goroutine; everything else about Dispatch assumes that goroutine is the
// only one ever touching the clients map or epoll fd.
type Dispatch struct {
	id      string
	epollFD int
	wakeFD  int // eventfd: lets a Worker goroutine interrupt epoll_wait

	newClients <-chan int
	registry   *message.Registry
	pool       *worker.Pool
	metrics    *metrics.Metrics

	clients   map[int]*client.Client
	wantWrite *cmap.Set[int]

	stopping atomic.Bool
	done     chan struct{}
}

// New creates the epoll instance and wakeup eventfd for a reactor. id is a
// short label used only in log lines to tell reactors apart.
func New(id string, newClients <-chan int, registry *message.Registry, pool *worker.Pool, m *metrics.Metrics) (*Dispatch, error) {
	epollFD, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, err
	}

	wakeFD, err := unix.Eventfd(0, unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epollFD)
		return nil, err
	}

	if err := unix.EpollCtl(epollFD, unix.EPOLL_CTL_ADD, wakeFD, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}); err != nil {
		unix.Close(wakeFD)
		unix.Close(epollFD)
		return nil, err
	}

	return &Dispatch{
		id:         id,
		epollFD:    epollFD,
		wakeFD:     wakeFD,
		newClients: newClients,
		registry:   registry,
		pool:       pool,
		metrics:    m,
		clients:    make(map[int]*client.Client),
		wantWrite:  cmap.NewSet[int](),
		done:       make(chan struct{}),
	}, nil
}

// RequestStop tells this Dispatch to stop reading new requests off its
// existing connections and to stop registering newly accepted ones. It does
// not interrupt work already handed to the Worker pool: Run keeps flushing
// and closing connections as they individually drain, and returns once none
// are left.
func (d *Dispatch) RequestStop() {
	d.stopping.Store(true)
}

// Done returns a channel closed once Run has returned.
func (d *Dispatch) Done() <-chan struct{} {
	return d.done
}

// Run is the reactor loop. It blocks until RequestStop has been called and
// every client it owns has drained, then returns.
func (d *Dispatch) Run() {
	defer func() {
		unix.Close(d.wakeFD)
		unix.Close(d.epollFD)
		close(d.done)
	}()

	events := make([]unix.EpollEvent, maxEvents)
	lastStatus := time.Now()

	for {
		n, err := unix.EpollWait(d.epollFD, events, epollTimeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			log.Printf("dispatch %s: epoll_wait: %v", d.id, err)
			continue
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == d.wakeFD {
				d.drainWake()
				continue
			}
			d.handleEvent(fd, events[i].Events)
		}

		d.acceptNewClients()

		if d.stopping.Load() {
			d.sweepQuiescent()
		}

		if time.Since(lastStatus) >= statusInterval {
			d.logStatus()
			lastStatus = time.Now()
		}

		if d.stopping.Load() && len(d.clients) == 0 {
			return
		}
	}
}

func (d *Dispatch) acceptNewClients() {
	if d.stopping.Load() {
		return
	}
	for {
		select {
		case fd, ok := <-d.newClients:
			if !ok {
				return
			}
			d.registerClient(fd)
		default:
			return
		}
	}
}

func (d *Dispatch) registerClient(fd int) {
	ev := &unix.EpollEvent{Events: epollFlags, Fd: int32(fd)}
	if err := unix.EpollCtl(d.epollFD, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		log.Printf("dispatch %s: epoll_ctl add fd %d: %v", d.id, fd, err)
		unix.Close(fd)
		return
	}

	c := client.New(fd, uuid.New(), d.notifyWantWrite)
	d.clients[fd] = c
	d.metrics.ConnectionsAccepted.Inc()
	d.metrics.ActiveClients.Inc()
}

// notifyWantWrite is, besides RequestStop and Done, the only Dispatch method
// called from a goroutine other than the one running Run: a Worker calls it (via Client.notify)
// right after delivering a result, to make sure this reactor doesn't stay
// blocked in epoll_wait not knowing there's something new to write.
func (d *Dispatch) notifyWantWrite(fd int) {
	d.wantWrite.Add(fd)
	var buf [8]byte
	buf[7] = 1
	_, _ = unix.Write(d.wakeFD, buf[:])
}

func (d *Dispatch) drainWake() {
	var buf [8]byte
	_, _ = unix.Read(d.wakeFD, buf[:])

	for _, fd := range d.wantWrite.Take() {
		if c, ok := d.clients[fd]; ok {
			d.flushAndMaybeClose(c)
		}
	}
}

func (d *Dispatch) handleEvent(fd int, events uint32) {
	c, ok := d.clients[fd]
	if !ok {
		return
	}

	if events&unix.EPOLLIN != 0 && !d.stopping.Load() {
		requests, hup, err := c.HandleRead()
		if c.HadParseError() {
			// HandleRead has queued the bare 400; dispatching the requests
			// would overwrite that slot or leave results no one writes.
			d.metrics.ParseErrors.Inc()
		} else {
			for i := range requests {
				d.dispatchRequest(c, &requests[i])
			}
		}
		if hup || err != nil {
			c.SetClosing()
		}
	}

	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		c.SetClosing()
	}

	d.flushAndMaybeClose(c)
}

// dispatchRequest assigns this connection's next sequence number, looks up
// a handler by exact method+endpoint match, and either submits a Task to
// the shared Worker pool or, if nothing is registered for this route,
// synthesizes the 404 itself: there's no handler to invoke, so there's no
// reason to round-trip through a Worker for it.
func (d *Dispatch) dispatchRequest(c *client.Client, req *message.Request) {
	req.Sequence = c.NextSequence()
	d.metrics.RequestsDispatched.Inc()

	handler := d.registry.Lookup(req.Method, req.Endpoint)
	if handler == nil {
		d.metrics.NotFoundResponses.Inc()
		c.QueueImmediate(req.Sequence, message.NotFoundResponse())
		return
	}

	c.IncrementPending()
	d.pool.Submit(worker.Task{Request: *req, Handler: handler, Sink: c})
}

// flushAndMaybeClose drains as much of c's write queue as Flush's own
// ChunkSize budget allows, then decides whether to re-arm, wait, or close.
//
// FlushPending and FlushContended both mean there's more useful work to do
// on this fd right now that no future epoll edge is going to announce: a
// budget-exhausted write leaves the socket still writable under
// edge-triggered epoll, and a contended lock clears on its own almost
// immediately. Both get the same treatment as a Worker's own notify: added
// back to wantWrite and woken via the eventfd, so the reactor loop picks
// this fd up again on its very next iteration instead of waiting up to
// epollTimeout for a status/shutdown check to notice.
func (d *Dispatch) flushAndMaybeClose(c *client.Client) {
	result, err := c.Flush()
	if err != nil {
		c.SetClosing()
	}

	switch result {
	case client.FlushPending, client.FlushContended:
		d.notifyWantWrite(c.FD())
	}

	if c.IsClosing() && !c.IsPending() {
		d.closeClient(c)
	}
}

// sweepQuiescent closes any client that has gone quiet while in drain mode,
// even if it never produced another epoll event to trigger the check in
// handleEvent. A half-open keep-alive peer that simply stops sending would
// otherwise never be noticed again once this Dispatch stops reading.
func (d *Dispatch) sweepQuiescent() {
	for _, c := range d.clients {
		if !c.IsPending() {
			c.SetClosing()
			d.closeClient(c)
		}
	}
}

func (d *Dispatch) closeClient(c *client.Client) {
	_ = unix.EpollCtl(d.epollFD, unix.EPOLL_CTL_DEL, c.FD(), nil)
	_ = c.Close()
	delete(d.clients, c.FD())
	d.metrics.ActiveClients.Dec()
}

func (d *Dispatch) logStatus() {
	log.Printf("dispatch %s: %d clients, epoll fd %d, %d worker slots", d.id, len(d.clients), d.epollFD, d.pool.Size())
}
