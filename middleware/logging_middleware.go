package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"pkgoracle/message"
)

// LoggingMiddleware logs every dispatched operation with its duration and
// outcome. Routing addresses are not logged.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			start := time.Now()
			reply := next(ctx, req)
			fields := []zap.Field{
				zap.String("op", req.Op),
				zap.Duration("duration", time.Since(start)),
				zap.String("status", reply.Status),
			}
			if reply.Status == message.StatusError {
				if desc, ok := reply.Payload.(message.String); ok {
					fields = append(fields, zap.String("error", string(desc)))
				}
				logger.Warn("request failed", fields...)
			} else {
				logger.Debug("request served", fields...)
			}
			return reply
		}
	}
}
