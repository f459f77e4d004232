// Package kit holds the transport-agnostic request plumbing shared by
// blurshield services: the Endpoint abstraction, middleware chaining, request
// context keys, and MCP tool registration.
package kit

import "context"

// Endpoint is a transport-agnostic operation: typed request in, typed
// response out. HTTP handlers, MCP tools, and bridge messages all decode
// into an Endpoint call.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour (tracing,
// auth checks, logging).
type Middleware func(Endpoint) Endpoint

// Chain composes middleware left to right: the first middleware is the
// outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(e Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			e = mws[i](e)
		}
		return e
	}
}
