package dispatch

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sys/unix"

	"github.com/yourusername/reactorhttp/pkg/reactor/client"
	"github.com/yourusername/reactorhttp/pkg/reactor/message"
	"github.com/yourusername/reactorhttp/pkg/reactor/metrics"
	"github.com/yourusername/reactorhttp/pkg/reactor/worker"
)

func socketpair(t *testing.T) (dispatchSide, peerSide int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		t.Fatalf("nonblock: %v", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		t.Fatalf("nonblock: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func readWithTimeout(t *testing.T, fd int, timeout time.Duration) []byte {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var out []byte
	buf := make([]byte, 4096)
	for time.Now().Before(deadline) {
		n, err := unix.Read(fd, buf)
		if n > 0 {
			out = append(out, buf[:n]...)
		}
		if err == unix.EAGAIN {
			if len(out) > 0 {
				return out
			}
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if n == 0 {
			return out
		}
	}
	t.Fatal("timed out waiting for data")
	return nil
}

func newTestDispatch(t *testing.T, reg *message.Registry) (*Dispatch, chan int) {
	t.Helper()
	newClients := make(chan int, 8)
	pool := worker.NewPool(2)
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	d, err := New("test", newClients, reg, pool, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	go d.Run()
	t.Cleanup(func() {
		d.RequestStop()
		select {
		case <-d.Done():
		case <-time.After(2 * time.Second):
			t.Error("dispatch did not shut down in time")
		}
	})
	return d, newClients
}

func TestDispatchEchoesRegisteredRoute(t *testing.T) {
	reg := message.NewRegistry()
	reg.Register(message.MethodGET, "/echo", func(req *message.Request) (message.Response, error) {
		return message.Response{Status: message.StatusOK, ContentType: message.ContentTypePlain, Body: []byte("pong")}, nil
	})

	_, newClients := newTestDispatch(t, reg)
	dispatchFD, peer := socketpair(t)
	newClients <- dispatchFD

	if _, err := unix.Write(peer, []byte("GET /echo HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := readWithTimeout(t, peer, time.Second)
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/plain; charset=US-ASCII\r\nContent-Length: 4\r\n\r\npong"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDispatchSynthesizes404ForUnknownRoute(t *testing.T) {
	reg := message.NewRegistry()
	_, newClients := newTestDispatch(t, reg)
	dispatchFD, peer := socketpair(t)
	newClients <- dispatchFD

	if _, err := unix.Write(peer, []byte("GET /nope HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	got := readWithTimeout(t, peer, time.Second)
	want := "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// TestDispatchPreservesOrderDespiteWorkerReordering is the Ordering
// invariant: a slow first request and a fast second request must still be
// written back in arrival order.
func TestDispatchPreservesOrderDespiteWorkerReordering(t *testing.T) {
	release := make(chan struct{})
	reg := message.NewRegistry()
	reg.Register(message.MethodGET, "/slow", func(req *message.Request) (message.Response, error) {
		<-release
		return message.Response{Status: message.StatusOK, ContentType: message.ContentTypePlain, Body: []byte("slow")}, nil
	})
	reg.Register(message.MethodGET, "/fast", func(req *message.Request) (message.Response, error) {
		return message.Response{Status: message.StatusOK, ContentType: message.ContentTypePlain, Body: []byte("fast")}, nil
	})

	_, newClients := newTestDispatch(t, reg)
	dispatchFD, peer := socketpair(t)
	newClients <- dispatchFD

	pipelined := "GET /slow HTTP/1.1\r\n\r\nGET /fast HTTP/1.1\r\n\r\n"
	if _, err := unix.Write(peer, []byte(pipelined)); err != nil {
		t.Fatalf("write: %v", err)
	}

	// Give the fast handler every chance to finish well before the slow one
	// is released.
	time.Sleep(100 * time.Millisecond)
	close(release)

	got := readWithTimeout(t, peer, 2*time.Second)
	wantFirst := "HTTP/1.1 200 OK\r\nContent-Type: text/plain; charset=US-ASCII\r\nContent-Length: 4\r\n\r\nslow"
	wantSecond := "HTTP/1.1 200 OK\r\nContent-Type: text/plain; charset=US-ASCII\r\nContent-Length: 4\r\n\r\nfast"
	want := wantFirst + wantSecond
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// readExactWithTimeout reads until exactly n bytes have arrived or timeout
// elapses, tolerating repeated EAGAIN in between chunks: a response larger
// than Client's write budget arrives across several separate Flush calls,
// not in one read.
func readExactWithTimeout(t *testing.T, fd int, n int, timeout time.Duration) []byte {
	t.Helper()
	deadline := time.Now().Add(timeout)
	out := make([]byte, 0, n)
	buf := make([]byte, 4096)
	for len(out) < n && time.Now().Before(deadline) {
		rn, err := unix.Read(fd, buf)
		if rn > 0 {
			out = append(out, buf[:rn]...)
		}
		if err == unix.EAGAIN {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if rn == 0 {
			break
		}
	}
	if len(out) != n {
		t.Fatalf("read %d bytes, want %d", len(out), n)
	}
	return out
}

// TestDispatchFlushesResponseLargerThanChunkSize is the Completeness
// invariant for a response whose serialized size exceeds the per-Flush
// write budget on a connection that sends nothing further: the whole body
// must still make it out, and the connection must still be closeable, even
// though the socket never reports EAGAIN to trigger a fresh epoll edge.
func TestDispatchFlushesResponseLargerThanChunkSize(t *testing.T) {
	body := make([]byte, 3*client.ChunkSize+17)
	for i := range body {
		body[i] = byte('a' + i%26)
	}

	reg := message.NewRegistry()
	reg.Register(message.MethodGET, "/big", func(req *message.Request) (message.Response, error) {
		return message.Response{Status: message.StatusOK, ContentType: message.ContentTypePlain, Body: body}, nil
	})

	d, newClients := newTestDispatch(t, reg)
	dispatchFD, peer := socketpair(t)
	newClients <- dispatchFD

	if _, err := unix.Write(peer, []byte("GET /big HTTP/1.1\r\n\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	want := message.Response{Status: message.StatusOK, ContentType: message.ContentTypePlain, Body: body}.Serialize()
	got := readExactWithTimeout(t, peer, len(want), 5*time.Second)
	if string(got) != string(want) {
		t.Fatal("flushed bytes did not match the serialized response")
	}

	d.RequestStop()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not shut down after a large flush; a connection is stuck")
	}
}

func TestDispatchShutsDownWithNoClients(t *testing.T) {
	reg := message.NewRegistry()
	d, _ := newTestDispatch(t, reg)
	d.RequestStop()
	select {
	case <-d.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("dispatch did not stop")
	}
}
