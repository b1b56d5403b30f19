package message

import (
	"strings"
	"testing"
)

func TestParseMethod(t *testing.T) {
	cases := []struct {
		tok  string
		want Method
	}{
		{"GET", MethodGET},
		{"POST", MethodPOST},
		{"PUT", MethodPUT},
		{"DELETE", MethodDELETE},
		{"PATCH", MethodUnknown},
		{"", MethodUnknown},
		{"GE", MethodUnknown},
	}
	for _, c := range cases {
		if got := ParseMethod([]byte(c.tok)); got != c.want {
			t.Errorf("ParseMethod(%q) = %v, want %v", c.tok, got, c.want)
		}
	}
}

func TestResponseSerialize(t *testing.T) {
	r := Response{Status: StatusOK, ContentType: ContentTypePlain, Body: []byte("hi")}
	got := string(r.Serialize())
	want := "HTTP/1.1 200 OK\r\nContent-Type: text/plain; charset=US-ASCII\r\nContent-Length: 2\r\n\r\nhi"
	if got != want {
		t.Errorf("Serialize() = %q, want %q", got, want)
	}
}

func TestResponseSerializeEmptyBody(t *testing.T) {
	r := Response{Status: StatusNotFound, ContentType: ContentTypePlain}
	got := string(r.Serialize())
	if !strings.HasPrefix(got, "HTTP/1.1 404 Not Found\r\n") {
		t.Errorf("Serialize() = %q, wrong status line", got)
	}
	if !strings.Contains(got, "Content-Length: 0\r\n") {
		t.Errorf("Serialize() = %q, missing zero content-length", got)
	}
}

func TestNotFoundResponseBytes(t *testing.T) {
	got := string(NotFoundResponse())
	want := "HTTP/1.1 404 Not Found\r\nContent-Length: 0\r\n\r\n"
	if got != want {
		t.Errorf("NotFoundResponse() = %q, want %q", got, want)
	}
}

func TestRegistryExactMatchOnly(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register(MethodGET, "/echo", func(req *Request) (Response, error) {
		called = true
		return Response{Status: StatusOK}, nil
	})

	if h := reg.Lookup(MethodGET, "/echo"); h == nil {
		t.Fatal("expected handler for GET /echo")
	} else if _, _ = h(&Request{}); !called {
		t.Fatal("handler was not the one registered")
	}

	if h := reg.Lookup(MethodGET, "/Echo"); h != nil {
		t.Error("lookup must be case-sensitive")
	}
	if h := reg.Lookup(MethodPOST, "/echo"); h != nil {
		t.Error("lookup must not cross methods")
	}
}

func TestHandlerError(t *testing.T) {
	err := NewHandlerError(StatusUnprocessableEntity, "need a description")
	if err.Error() != "need a description" {
		t.Errorf("Error() = %q", err.Error())
	}
	if err.Status != StatusUnprocessableEntity {
		t.Errorf("Status = %v", err.Status)
	}
}
