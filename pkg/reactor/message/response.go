package message

import "strconv"

// Response is what a Handler returns. Serialize turns it into the exact
// bytes a Client writes to its socket.
type Response struct {
	Status      StatusCode
	ContentType ContentType
	Body        []byte
}

// Serialize renders the response as a complete HTTP/1.1 message:
//
//	HTTP/1.1 <code> <reason>\r\n
//	Content-Type: <mime>\r\n
//	Content-Length: <n>\r\n
//	\r\n
//	<body>
func (r Response) Serialize() []byte {
	status := strconv.Itoa(int(r.Status))
	length := strconv.Itoa(len(r.Body))

	out := make([]byte, 0, 64+len(r.Body))
	out = append(out, "HTTP/1.1 "...)
	out = append(out, status...)
	out = append(out, ' ')
	out = append(out, r.Status.Reason()...)
	out = append(out, "\r\nContent-Type: "...)
	out = append(out, r.ContentType.MIME()...)
	out = append(out, "\r\nContent-Length: "...)
	out = append(out, length...)
	out = append(out, "\r\n\r\n"...)
	out = append(out, r.Body...)
	return out
}

// NotFoundResponse is the synthesized response Dispatch writes directly when
// no handler is registered for a request's method+endpoint pair. It carries
// an empty body, so Content-Type is omitted per the wire format's rule that
// synthesized, bodyless responses may skip it.
func NotFoundResponse() []byte {
	return []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n")
}

// BadRequestStatusLine is queued on a connection's write queue when the
// parser's error flag is set: a bare status line, no headers, no body. This
// mirrors the original server's behavior of giving up on a malformed request
// with the minimum valid response rather than attempting to serialize one.
func BadRequestStatusLine() []byte {
	return []byte("HTTP/1.1 400 Bad Request\r\n\r\n")
}
