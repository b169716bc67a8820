package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

// MethodHandler handles one RPC method. Handlers send their own response
// through the client.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter dispatches request frames to registered handlers.
type MethodRouter struct {
	server   *Server
	mu       sync.RWMutex
	handlers map[string]MethodHandler
}

// NewMethodRouter creates a router with the built-in system methods.
func NewMethodRouter(server *Server) *MethodRouter {
	r := &MethodRouter{
		server:   server,
		handlers: make(map[string]MethodHandler),
	}

	r.Register(protocol.MethodHealth, func(ctx context.Context, c *Client, req *protocol.RequestFrame) {
		c.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
			"status":   "ok",
			"protocol": protocol.ProtocolVersion,
		}))
	})
	r.Register(protocol.MethodConnect, func(ctx context.Context, c *Client, req *protocol.RequestFrame) {
		c.SendResponse(protocol.NewOKResponse(req.ID, map[string]interface{}{
			"client_id": c.ID(),
			"protocol":  protocol.ProtocolVersion,
		}))
	})

	return r
}

// Register installs a handler for a method name.
func (r *MethodRouter) Register(method string, h MethodHandler) {
	r.mu.Lock()
	r.handlers[method] = h
	r.mu.Unlock()
}

// Dispatch routes a request to its handler, recovering panics into an
// internal_error response.
func (r *MethodRouter) Dispatch(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	r.mu.RLock()
	h, ok := r.handlers[req.Method]
	r.mu.RUnlock()

	if !ok {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrNotFound, "unknown method: "+req.Method))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("method handler panicked", "method", req.Method, "panic", rec)
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "internal error"))
		}
	}()
	h(ctx, client, req)
}
