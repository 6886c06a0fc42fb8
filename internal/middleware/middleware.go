// Package middleware wraps command handlers with cross-cutting behavior:
// identity requirements and logging.
package middleware

import "context"

// Handler runs one command with its arguments.
type Handler func(ctx context.Context, args []string) error

// Middleware wraps the handler of the named command.
type Middleware func(name string, next Handler) Handler

// Chain applies mws to h so that the first middleware runs outermost.
func Chain(name string, h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](name, h)
	}
	return h
}
