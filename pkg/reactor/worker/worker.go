// Package worker implements the bounded pool of handler-invoking workers.
// Each worker lazily spawns its own goroutine the first time it's given a
// task, and tears itself back down the moment its private queue runs dry.
// An idle worker costs nothing but the slot in the pool.
package worker

import (
	"errors"
	"log"
	"runtime/debug"
	"sync"

	"github.com/yourusername/reactorhttp/pkg/reactor/message"
)

// ResponseSink is the narrow interface a Task's destination must satisfy.
// client.Client implements it; tests use hand-rolled fakes instead of a
// mocking framework.
type ResponseSink interface {
	AddOutgoing(sequence uint64, body []byte)
}

// Task is one unit of work: a parsed request, the handler chosen for it,
// and where its serialized result goes once the handler returns.
type Task struct {
	Request message.Request
	Handler message.Handler
	Sink    ResponseSink
}

// worker owns one private FIFO. deadOrDying starts true: a worker with no
// goroutine behind it is indistinguishable from one whose goroutine just
// decided to exit, so a single flag covers both "never started" and "about
// to stop".
type worker struct {
	mu          sync.Mutex
	queue       []Task
	deadOrDying bool
	wg          sync.WaitGroup
}

func newWorker() *worker {
	return &worker{deadOrDying: true}
}

// add either wakes this worker up with a fresh goroutine (if it was dead or
// dying) or appends to its queue for the running goroutine to pick up next.
func (w *worker) add(task Task) {
	w.mu.Lock()
	if w.deadOrDying {
		w.deadOrDying = false
		w.wg.Add(1)
		go w.run(task)
	} else {
		w.queue = append(w.queue, task)
	}
	w.mu.Unlock()
}

func (w *worker) run(task Task) {
	defer w.wg.Done()
	for {
		invoke(task)

		w.mu.Lock()
		if len(w.queue) == 0 {
			w.deadOrDying = true
			w.mu.Unlock()
			return
		}
		task = w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
	}
}

// invoke runs one task's handler, recovers any panic into a 500, maps a
// *message.HandlerError to its carried status, and ships the serialized
// result to the task's sink. Nothing here can propagate an error back to
// the caller: a broken handler must not take down the worker that ran it.
func invoke(task Task) {
	resp, err := callHandler(task)
	if err != nil {
		var handlerErr *message.HandlerError
		if errors.As(err, &handlerErr) {
			resp = message.Response{
				Status:      handlerErr.Status,
				ContentType: message.ContentTypePlain,
				Body:        []byte(handlerErr.Msg),
			}
		} else {
			log.Printf("worker: handler returned unexpected error: %v", err)
			resp = message.Response{
				Status:      message.StatusInternalServerError,
				ContentType: message.ContentTypePlain,
				Body:        []byte("internal error"),
			}
		}
	}
	task.Sink.AddOutgoing(task.Request.Sequence, resp.Serialize())
}

func callHandler(task Task) (resp message.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("worker: recovered panic in handler: %v\n%s", r, debug.Stack())
			resp = message.Response{}
			err = message.NewHandlerError(message.StatusInternalServerError, "internal error")
		}
	}()
	return task.Handler(&task.Request)
}
