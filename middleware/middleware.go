// Package middleware provides the dispatch chain wrapped around a worker's
// operation handling. Each middleware sees the decoded request and the reply
// about to be sent, and must itself honor the one-reply-per-request
// invariant: returning a substitute reply is fine, returning nil is not.
package middleware

import (
	"context"

	"pkgoracle/message"
)

type HandlerFunc func(ctx context.Context, req *message.Request) *message.Reply

type Middleware func(next HandlerFunc) HandlerFunc

// Chain combines middlewares into one, applied in registration order:
// Chain(A, B)(handler) runs A around B around the handler.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
