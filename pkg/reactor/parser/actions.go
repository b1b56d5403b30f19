package parser

import "github.com/yourusername/reactorhttp/pkg/reactor/message"

// stateMethod accumulates the request-line's verb up to the first space. An
// unrecognized verb sets the error flag but parsing continues regardless:
// the caller decides what to do with an errored request, the parser's job is
// only to keep consuming bytes without getting stuck.
func stateMethod(p *Parser, input []byte) {
	p.state = StateMethod
	head := 0
	for head < len(input) && input[head] != ' ' {
		p.buf = append(p.buf, input[head])
		head++
	}
	if head >= len(input) {
		return
	}
	p.current.Method = message.ParseMethod(p.buf)
	if p.current.Method == message.MethodUnknown {
		p.err = true
	}
	p.buf = p.buf[:0]
	p.dispatch(StateEndpoint, input[head+1:])
}

// stateEndpoint accumulates the path up to a space (no query string) or a
// '?' (query string follows).
func stateEndpoint(p *Parser, input []byte) {
	p.state = StateEndpoint
	head := 0
	for head < len(input) && input[head] != ' ' && input[head] != '?' {
		p.buf = append(p.buf, input[head])
		head++
	}
	if head >= len(input) {
		return
	}
	p.current.Endpoint = string(p.buf)
	p.buf = p.buf[:0]
	if input[head] == '?' {
		p.dispatch(StateQueryKey, input[head+1:])
	} else {
		p.dispatch(StateFindHeaders, input[head+1:])
	}
}

// stateQueryKey accumulates a query parameter's key up to '='. A space seen
// before any '=' leaves the parser waiting in this state, matching the
// original implementation's behavior of never treating a bare key (no '=')
// as a complete pair.
func stateQueryKey(p *Parser, input []byte) {
	p.state = StateQueryKey
	head := 0
	for head < len(input) && input[head] != ' ' && input[head] != '=' {
		p.buf = append(p.buf, input[head])
		head++
	}
	if head < len(input) && input[head] == '=' {
		p.dispatch(StateQueryValue, input[head+1:])
	}
}

// stateQueryValue accumulates a query parameter's value up to '&' (another
// pair follows) or a space (query string is done, headers follow).
func stateQueryValue(p *Parser, input []byte) {
	p.state = StateQueryValue
	head := 0
	for head < len(input) && input[head] != ' ' && input[head] != '&' {
		p.aux = append(p.aux, input[head])
		head++
	}
	if head >= len(input) {
		return
	}
	p.current.Query[string(p.buf)] = string(p.aux)
	p.buf = p.buf[:0]
	p.aux = p.aux[:0]
	if input[head] == '&' {
		p.dispatch(StateQueryKey, input[head+1:])
	} else {
		p.dispatch(StateFindHeaders, input[head+1:])
	}
}

// stateFindHeaders hunts for the blank line that ends the header block,
// using count as a CRLF-match counter. It is also what silently consumes
// the "HTTP/1.1" version token on the request line and the terminator of
// each header-value line: none of those bytes happen to be '\r' or '\n'
// outside the actual line breaks, so every mismatching byte is consumed
// without effect until the machine runs into one.
//
// count&1 selects which half of "\r\n" is expected next. Reaching count==2
// with a mismatching byte means the last two bytes matched a full CRLF but
// this byte isn't another '\r': that's the start of the next header's key,
// so control jumps to StateHeaderKey without consuming the byte. Reaching
// count==4 means two CRLFs in a row: the header block is over.
func stateFindHeaders(p *Parser, input []byte) {
	p.state = StateFindHeaders
	head := 0
	for head < len(input) {
		expected := crlf[p.count&1]
		if input[head] != expected {
			if p.count == 2 {
				p.count = 0
				p.dispatch(StateHeaderKey, input[head:])
				return
			}
			p.count = 0
		} else {
			p.count++
			if p.count == 4 {
				p.count = 0
				p.dispatch(StateFindBody, input[head+1:])
				return
			}
		}
		head++
	}
}

// stateHeaderKey accumulates a header name up to ':'.
func stateHeaderKey(p *Parser, input []byte) {
	p.state = StateHeaderKey
	head := 0
	for head < len(input) && input[head] != ':' {
		p.buf = append(p.buf, input[head])
		head++
	}
	if head < len(input) {
		p.dispatch(StateHeaderValue, input[head+1:])
	}
}

// stateHeaderValue accumulates a header value up to its terminating CRLF,
// trims surrounding whitespace, and stores it. It deliberately leaves count
// at 2 (rather than resetting to 0) when it hands control back to
// StateFindHeaders: that lets StateFindHeaders tell, from the very next
// byte, whether another header follows or the blank line has arrived,
// without re-scanning anything.
func stateHeaderValue(p *Parser, input []byte) {
	p.state = StateHeaderValue
	head := 0
	for head < len(input) && p.count < 2 {
		if input[head] == crlf[p.count] {
			p.count++
		} else {
			p.aux = append(p.aux, input[head])
			p.count = 0
		}
		head++
	}
	if p.count != 2 {
		return
	}
	key := string(p.buf)
	value := string(trimASCIISpace(p.aux))
	p.current.Headers[key] = value
	p.buf = p.buf[:0]
	p.aux = p.aux[:0]
	p.dispatch(StateFindHeaders, input[head:])
}

// stateFindBody decides, from the Content-Length header, how many body
// bytes to wait for. No Content-Length, or a literal "0", commits the
// request with an empty body right away. A non-numeric value sets the error
// flag and proceeds to StateBody expecting zero bytes, which commits the
// request right away with an empty body and hands whatever is left of the
// current chunk to the next request. This state never itself consumes a
// byte: it only decides what StateBody should do with the bytes that follow.
func stateFindBody(p *Parser, input []byte) {
	p.state = StateFindBody
	cl, ok := p.current.Headers["Content-Length"]
	if !ok || cl == "0" {
		p.commitAndContinue(input)
		return
	}
	n := 0
	valid := true
	for i := 0; i < len(cl); i++ {
		c := cl[i]
		if c < '0' || c > '9' {
			valid = false
			break
		}
		n = n*10 + int(c-'0')
	}
	if !valid {
		p.err = true
	} else {
		p.count = n
	}
	p.dispatch(StateBody, input)
}

// stateBody consumes exactly count bytes (set by stateFindBody) into the
// request body. The decrement-then-compare loop mirrors the source this was
// ported from byte for byte: count is always decremented once per consumed
// byte, and the loop stops the instant the pre-decrement value was already
// <= 0, leaving count negative but harmless since it's reset on commit.
func stateBody(p *Parser, input []byte) {
	p.state = StateBody
	head := 0
	for head < len(input) {
		before := p.count
		p.count--
		if before <= 0 {
			break
		}
		p.buf = append(p.buf, input[head])
		head++
	}
	if p.count <= 0 {
		p.current.Body = p.buf
		p.buf = nil
		p.commitAndContinue(input[head:])
	}
}
