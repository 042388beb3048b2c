// Package recovery turns handler panics into internal server errors.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"judge0gw/internal/core"
	gwerrors "judge0gw/pkg/errors"
)

// Config holds recovery middleware configuration
type Config struct {
	// StackTrace enables stack trace logging
	StackTrace bool
	// PanicHandler is called when a panic occurs (optional)
	PanicHandler func(ctx context.Context, recovered any, stack []byte)
}

// Middleware creates panic recovery middleware. The panic value is exposed as
// the error's exception text.
func Middleware(config Config, logger *slog.Logger) core.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next core.Handler) core.Handler {
		return func(ctx context.Context, req core.Request) (resp core.Response, err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				stack := debug.Stack()

				attrs := []any{
					"panic", r,
					"request_id", req.ID(),
					"method", req.Method(),
					"path", req.Path(),
				}
				if config.StackTrace {
					attrs = append(attrs, "stack", string(stack))
				}
				logger.Error("panic recovered", attrs...)

				if config.PanicHandler != nil {
					config.PanicHandler(ctx, r, stack)
				}

				resp = nil
				err = gwerrors.NewError(gwerrors.ErrorTypeInternal, "Internal server error").
					WithException(fmt.Sprint(r)).
					WithDetail("panic", fmt.Sprint(r))
			}()

			return next(ctx, req)
		}
	}
}

// Default creates recovery middleware with stack traces enabled
func Default(logger *slog.Logger) core.Middleware {
	return Middleware(Config{StackTrace: true}, logger)
}
