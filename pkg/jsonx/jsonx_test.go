package jsonx

import (
	"testing"

	"github.com/yourusername/reactorhttp/pkg/reactor/message"
)

type point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	body, err := Marshal(point{X: 1, Y: 2})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got point
	if err := Unmarshal(body, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got != (point{X: 1, Y: 2}) {
		t.Errorf("got %+v", got)
	}
}

func TestResponseBuildsJSONContentType(t *testing.T) {
	resp, err := Response(message.StatusOK, point{X: 3, Y: 4})
	if err != nil {
		t.Fatalf("Response: %v", err)
	}
	if resp.ContentType != message.ContentTypeJSON {
		t.Errorf("ContentType = %v", resp.ContentType)
	}
	if string(resp.Body) != `{"x":3,"y":4}` {
		t.Errorf("Body = %q", resp.Body)
	}
}
