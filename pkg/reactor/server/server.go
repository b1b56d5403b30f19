// Package server wires together the listening socket, the Dispatch
// reactors, and the shared Worker pool into the process entry point's one
// public surface: register handlers, then Run.
package server

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/yourusername/reactorhttp/pkg/reactor/dispatch"
	"github.com/yourusername/reactorhttp/pkg/reactor/message"
	"github.com/yourusername/reactorhttp/pkg/reactor/metrics"
	"github.com/yourusername/reactorhttp/pkg/reactor/socket"
	"github.com/yourusername/reactorhttp/pkg/reactor/worker"
)

// Server owns the listening socket, the Dispatch reactors, and the handler
// registry they all share read-only once Run starts.
type Server struct {
	cfg      Config
	registry *message.Registry
	metrics  *metrics.Metrics
}

// New returns a Server configured per cfg, with any unset field defaulted.
func New(cfg Config) *Server {
	return &Server{
		cfg:      cfg.withDefaults(),
		registry: message.NewRegistry(),
		metrics:  metrics.New(),
	}
}

// Handle registers a handler for an exact method+endpoint pair. Call this
// before Run; the registry is read-only once reactors start.
func (s *Server) Handle(method message.Method, endpoint string, h message.Handler) {
	s.registry.Register(method, endpoint, h)
}

// Run binds the listening socket, starts the Dispatch reactors and the
// accept loop, and blocks until SIGINT (or the given context) asks it to
// stop, at which point it runs the full graceful shutdown sequence before
// returning.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT)
	defer stop()

	listenFD, err := socket.Listen(s.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}

	pool := worker.NewPool(s.cfg.Workers)
	newClients := make(chan int, 128)

	dispatches := make([]*dispatch.Dispatch, s.cfg.Dispatches)
	for i := range dispatches {
		d, err := dispatch.New(strconv.Itoa(i), newClients, s.registry, pool, s.metrics)
		if err != nil {
			unix.Close(listenFD)
			return fmt.Errorf("create dispatch %d: %w", i, err)
		}
		dispatches[i] = d
		go d.Run()
	}

	acceptDone := make(chan struct{})
	go s.acceptLoop(listenFD, newClients, acceptDone)

	log.Printf("server: listening on port %d with %d dispatches and %d workers", s.cfg.Port, s.cfg.Dispatches, s.cfg.Workers)

	<-ctx.Done()
	log.Printf("server: shutdown signal received, draining")

	return s.shutdown(listenFD, acceptDone, dispatches, pool)
}

// acceptLoop blocks in accept(2) on its own goroutine, handing each
// accepted connection's fd to whichever Dispatch picks it up off the shared
// channel. It returns once the listening socket is closed out from under
// it, which is how shutdown signals it to stop.
func (s *Server) acceptLoop(listenFD int, newClients chan<- int, done chan<- struct{}) {
	defer close(done)
	defer close(newClients)

	for {
		connFD, _, err := unix.Accept(listenFD)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			if isRetryableAcceptError(err) {
				log.Printf("server: retryable accept error: %v", err)
				continue
			}
			// EBADF/EINVAL here means the listener was closed out from
			// under us as part of shutdown; anything else is unexpected
			// but equally fatal to this loop.
			return
		}

		if err := socket.SetNonblocking(connFD); err != nil {
			log.Printf("server: set nonblocking on accepted fd: %v", err)
			unix.Close(connFD)
			continue
		}

		newClients <- connFD
	}
}

// isRetryableAcceptError classifies the handful of accept(2) failures that
// mean "try again", as opposed to ones that mean the listener itself is
// gone: a transient resource shortage or an already-reset peer shouldn't
// bring down the accept loop.
func isRetryableAcceptError(err error) bool {
	switch err {
	case unix.ECONNABORTED, unix.EMFILE, unix.ENFILE, unix.ENOBUFS, unix.ENOMEM:
		return true
	default:
		return false
	}
}

// shutdown runs the multi-phase graceful teardown: stop accepting new
// connections, tell every Dispatch to stop reading new requests off
// existing ones, wait for each to drain and exit, then confirm the shared
// worker pool has nothing left running.
func (s *Server) shutdown(listenFD int, acceptDone <-chan struct{}, dispatches []*dispatch.Dispatch, pool *worker.Pool) error {
	start := time.Now()

	// close(2) alone does not wake a thread blocked in accept(2) on Linux;
	// shutdown(2) does, making accept fail with EINVAL.
	_ = unix.Shutdown(listenFD, unix.SHUT_RDWR)
	unix.Close(listenFD)
	<-acceptDone

	for _, d := range dispatches {
		d.RequestStop()
	}

	var g errgroup.Group
	for _, d := range dispatches {
		d := d
		g.Go(func() error {
			<-d.Done()
			return nil
		})
	}
	_ = g.Wait()

	pool.Wait()

	elapsed := time.Since(start)
	s.metrics.ShutdownSeconds.Set(elapsed.Seconds())
	log.Printf("server: shutdown complete in %s", elapsed)
	return nil
}
