package docstore

import "context"

// --------------------------------------------------------------------------
// Handler Chain
// --------------------------------------------------------------------------

// Handler sends a Request and returns the backend's Response.
//
// A non-nil error means no response was obtained (transport failure, cancelled context, retries
// exhausted). Non-success status codes are reported through the Response, not the error, so
// handlers further out in the chain can inspect and act on them.
type Handler interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)

func (f HandlerFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware wraps the next handler of the chain
type Middleware func(next Handler) Handler

// Chain builds a pipeline ending in terminal. The first middleware is the outermost one:
// Chain(t, a, b) sends every request through a, then b, then t.
func Chain(terminal Handler, middlewares ...Middleware) Handler {
	h := terminal
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
