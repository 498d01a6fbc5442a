// Package kit holds transport plumbing shared by the HTTP and MCP surfaces.
package kit

import (
	"context"
	"log/slog"
	"time"
)

// Endpoint is a transport-agnostic operation handler.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behavior.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first listed runs outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Logging records duration and outcome of each endpoint call.
func Logging(logger *slog.Logger, op string) Middleware {
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				logger.Warn("endpoint failed", "op", op, "duration_ms", time.Since(start).Milliseconds(), "error", err)
			} else {
				logger.Debug("endpoint ok", "op", op, "duration_ms", time.Since(start).Milliseconds())
			}
			return resp, err
		}
	}
}
