package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"judge0gw/internal/core"
	gwerrors "judge0gw/pkg/errors"
)

// Chain combines multiple middleware
func Chain(middlewares ...core.Middleware) core.Middleware {
	return func(next core.Handler) core.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// Logging logs one line per request. Rejections the client caused are logged
// below error level.
func Logging(logger *slog.Logger) core.Middleware {
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (core.Response, error) {
			start := time.Now()

			resp, err := next(ctx, req)

			attrs := []any{
				"request_id", req.ID(),
				"method", req.Method(),
				"path", req.Path(),
				"remote_addr", req.RemoteAddr(),
				"duration", time.Since(start),
			}
			if resp != nil {
				attrs = append(attrs, "status", resp.StatusCode())
			}
			if err == nil {
				logger.Info("request completed", attrs...)
				return resp, nil
			}

			attrs = append(attrs, "error", err)
			var gwErr *gwerrors.Error
			if errors.As(err, &gwErr) {
				attrs = append(attrs, "status", gwErr.HTTPStatusCode())
				if len(gwErr.Details) > 0 {
					attrs = append(attrs, "details", gwErr.Details)
				}
			}
			logger.Log(ctx, levelFor(err), "request failed", attrs...)
			return resp, err
		}
	}
}

func levelFor(err error) slog.Level {
	switch {
	case gwerrors.IsType(err, gwerrors.ErrorTypeBadRequest),
		gwerrors.IsType(err, gwerrors.ErrorTypeNotFound),
		gwerrors.IsType(err, gwerrors.ErrorTypeMethodNotAllowed):
		return slog.LevelDebug
	case gwerrors.IsType(err, gwerrors.ErrorTypeQuotaExceeded):
		return slog.LevelInfo
	case gwerrors.IsType(err, gwerrors.ErrorTypeUpstreamUnavailable):
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}
