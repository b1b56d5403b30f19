// Package socket builds the raw listening socket the Server's accept loop
// reads from, and the helper to flip accepted connections into non-blocking
// mode before they're handed to a Dispatch reactor. It deliberately bypasses
// net.Listener: both the accept loop and the reactors need bare fds.
package socket

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// backlog is the listen() queue depth. 128 matches what most production
// Linux HTTP servers run with; this isn't exposed as a config knob because
// nothing about the spec this server implements depends on tuning it.
const backlog = 128

// tcpDeferAccept mirrors syscall.TCP_DEFER_ACCEPT, which isn't always
// exported by the standard syscall package on every architecture.
const tcpDeferAccept = 9

// Listen creates a TCP listening socket bound to port on all interfaces.
// The socket is left in blocking mode
// deliberately: the server's accept loop runs on its own goroutine and
// blocks in accept(2) the way the original server's single accept thread
// did, rather than multiplexing the listener through epoll itself.
// SO_REUSEADDR and SO_REUSEPORT are both set: SO_REUSEPORT in particular
// matters here, since nothing prevents a future version of this server from
// running one listening socket per Dispatch reactor instead of sharing a
// single one, and turning it on now keeps that door open without
// committing to it.
func Listen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("SO_REUSEPORT: %w", err)
	}

	// Best-effort: servers that answer quickly benefit from not being woken
	// until a request is actually waiting for them; kernels without support
	// just ignore this.
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, tcpDeferAccept, 5)

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}

	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}

	return fd, nil
}

// SetNonblocking puts fd into non-blocking mode, required for every accepted
// connection before a Dispatch registers it with edge-triggered epoll.
func SetNonblocking(fd int) error {
	return unix.SetNonblock(fd, true)
}
