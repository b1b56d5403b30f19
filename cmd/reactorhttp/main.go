// Command reactorhttp runs the reactor HTTP server with a small set of
// demonstration routes. It exists to exercise the server package's public
// surface, not as part of the core itself.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/yourusername/reactorhttp/pkg/jsonx"
	"github.com/yourusername/reactorhttp/pkg/reactor/message"
	"github.com/yourusername/reactorhttp/pkg/reactor/server"
)

func main() {
	defaults := server.DefaultConfig()
	port := flag.Int("port", defaults.Port, "TCP port to listen on")
	dispatches := flag.Int("dispatches", defaults.Dispatches, "number of epoll reactor goroutines")
	workers := flag.Int("workers", defaults.Workers, "size of the shared handler worker pool")
	flag.Parse()

	srv := server.New(server.Config{
		Port:       *port,
		Dispatches: *dispatches,
		Workers:    *workers,
	})

	registerExampleRoutes(srv)

	if err := srv.Run(context.Background()); err != nil {
		log.Fatalf("reactorhttp: %v", err)
	}
}

type pingResponse struct {
	Message string `json:"message"`
}

// registerExampleRoutes wires up the handlers a reader can poke at directly:
// a plaintext health check and a JSON echo-style endpoint exercising
// pkg/jsonx, the way the original source's /echo and a health endpoint
// demonstrated the server's two response shapes.
func registerExampleRoutes(srv *server.Server) {
	srv.Handle(message.MethodGET, "/health", func(req *message.Request) (message.Response, error) {
		return message.Response{
			Status:      message.StatusOK,
			ContentType: message.ContentTypePlain,
			Body:        []byte("ok"),
		}, nil
	})

	srv.Handle(message.MethodGET, "/echo", func(req *message.Request) (message.Response, error) {
		msg, _ := req.QueryParam("message")
		if msg == "" {
			msg = "hello"
		}
		return jsonx.Response(message.StatusOK, pingResponse{Message: msg})
	})

	srv.Handle(message.MethodPOST, "/echo", func(req *message.Request) (message.Response, error) {
		if len(req.Body) == 0 {
			return message.Response{}, message.NewHandlerError(message.StatusUnprocessableEntity, "request body required")
		}
		return message.Response{
			Status:      message.StatusOK,
			ContentType: message.ContentTypePlain,
			Body:        req.Body,
		}, nil
	})
}
