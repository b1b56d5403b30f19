// Package parser implements the incremental HTTP/1.1 request-line+headers+
// body finite state machine that turns arbitrarily-chunked byte slices into
// message.Request values, without ever blocking on more input and without
// backtracking over bytes it has already consumed.
package parser

import "github.com/yourusername/reactorhttp/pkg/reactor/message"

var crlf = [2]byte{'\r', '\n'}

// Parser holds one connection's incremental parse state. It is not safe for
// concurrent use; a Client owns exactly one and only ever touches it from
// the Dispatch thread that reads the connection's socket.
type Parser struct {
	state State

	current  message.Request
	requests []message.Request

	buf []byte // primary accumulator: method, endpoint, query/header key
	aux []byte // secondary accumulator: query/header value

	count int // dual-purpose: CRLF match counter, then remaining body bytes

	err   bool
	fresh bool
}

// New returns a Parser ready to consume the start of a request.
func New() *Parser {
	p := &Parser{}
	p.reset()
	return p
}

// Process feeds more bytes into the parser. It may commit zero, one, or
// several requests (a single call can finish one request and run straight
// into parsing the next, if the chunk boundary happens to land there).
// Completed requests accumulate until TakeRequests is called; Process itself
// never returns them directly.
func (p *Parser) Process(input []byte) {
	p.feed(input)
}

func (p *Parser) feed(input []byte) {
	if len(input) == 0 {
		return
	}
	p.fresh = false
	stateTable[p.state](p, input)
}

// dispatch is the single state-transition point: every stateFunc that has
// consumed its delimiter calls this instead of recursing into its own table
// entry, so the state machine always advances through the table rather than
// looping within one function.
func (p *Parser) dispatch(next State, remainder []byte) {
	p.state = next
	stateTable[next](p, remainder)
}

// commitAndContinue pushes the finished request, resets to start a fresh
// one, and immediately tries to parse whatever bytes are left over from the
// chunk that completed this request: a pipelined second request can start
// and even finish within the same Process call. The error flag survives the
// commit, so a caller sees it after taking the errored request.
func (p *Parser) commitAndContinue(remainder []byte) {
	p.requests = append(p.requests, p.current)
	hadErr := p.err
	p.reset()
	p.err = hadErr
	p.feed(remainder)
}

// reset returns the parser to StateMethod and clears all per-request scratch
// state, without discarding already-committed requests. It is idempotent:
// calling it twice in a row is equivalent to calling it once.
func (p *Parser) reset() {
	p.state = StateMethod
	p.current = message.Request{
		Query:   make(map[string]string),
		Headers: make(map[string]string),
	}
	p.buf = p.buf[:0]
	p.aux = p.aux[:0]
	p.count = 0
	p.err = false
	p.fresh = true
}

// Reset is the exported, idempotent form of reset. It also clears the error
// flag.
func (p *Parser) Reset() {
	p.reset()
}

// Clear resets the in-flight request state AND discards any requests already
// committed but not yet taken.
func (p *Parser) Clear() {
	p.reset()
	p.requests = nil
}

// TakeRequests returns every request committed since the last call and
// clears the internal buffer, the way a channel receive drains a queue.
func (p *Parser) TakeRequests() []message.Request {
	if len(p.requests) == 0 {
		return nil
	}
	out := p.requests
	p.requests = nil
	return out
}

// IsError reports whether any request since the last Reset or Clear hit a
// parse error. The flag stays set across commits and TakeRequests calls.
func (p *Parser) IsError() bool {
	return p.err
}

// IsFresh reports whether no byte has been fed into the parser since the
// last reset. A fresh parser holds no partial state worth worrying about,
// which is one of the conditions Client.IsPending checks.
func (p *Parser) IsFresh() bool {
	return p.fresh
}

func trimASCIISpace(b []byte) []byte {
	start := 0
	for start < len(b) && isASCIISpace(b[start]) {
		start++
	}
	end := len(b)
	for end > start && isASCIISpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isASCIISpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	default:
		return false
	}
}
