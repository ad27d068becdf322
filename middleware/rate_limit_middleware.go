package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"pkgoracle/message"
)

// RateLimitMiddleware rejects dispatches beyond a token-bucket rate with an
// ERROR reply. The reply still goes out, so the lock-step channel stays
// intact; the client sees the rejection as an ordinary raised failure.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			if !limiter.Allow() {
				return message.ErrorReply(req.Addr, "rate limit exceeded")
			}
			return next(ctx, req)
		}
	}
}
