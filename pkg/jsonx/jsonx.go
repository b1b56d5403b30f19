// Package jsonx is the JSON response-body helper example handlers use. It
// wraps goccy/go-json instead of encoding/json, the way the teacher's HTTP
// core already does for its own JSON responses, and exposes the same
// (bytes, error) shape encoding/json.Marshal would so callers don't need to
// know which encoder is behind it.
package jsonx

import (
	"github.com/goccy/go-json"

	"github.com/yourusername/reactorhttp/pkg/reactor/message"
)

// Marshal encodes v as JSON using goccy/go-json.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON into v using goccy/go-json.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Response builds a message.Response with ContentTypeJSON and v marshaled as
// the body. A marshal error comes back as a 500 *message.HandlerError so
// handlers can simply return jsonx.Response(status, v) without their own error
// branch for the common case.
func Response(status message.StatusCode, v any) (message.Response, error) {
	body, err := Marshal(v)
	if err != nil {
		return message.Response{}, message.NewHandlerError(message.StatusInternalServerError, "failed to encode response")
	}
	return message.Response{Status: status, ContentType: message.ContentTypeJSON, Body: body}, nil
}
