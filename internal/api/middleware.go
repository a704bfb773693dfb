package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
)

// quietOperations are polled by the frontend and only logged at debug.
var quietOperations = map[string]bool{
	"health-check": true,
	"get-backend":  true,
}

// NewLoggingMiddleware logs each request once it completes. The level follows
// the status code; preflight and polling requests are logged at debug.
func NewLoggingMiddleware(logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		start := time.Now()
		method := ctx.Method()

		attrs := []slog.Attr{
			slog.String("method", method),
			slog.String("path", ctx.URL().Path),
		}
		if op := ctx.Operation(); op != nil && op.OperationID != "" {
			attrs = append(attrs, slog.String("operation", op.OperationID))
		}
		if origin := ctx.Header("Origin"); origin != "" {
			attrs = append(attrs, slog.String("origin", origin))
		}

		next(ctx)

		status := ctx.Status()
		if status == 0 {
			status = http.StatusOK
		}
		attrs = append(attrs,
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)))

		logger.LogAttrs(ctx.Context(), requestLevel(ctx, method, status), "HTTP request completed", attrs...)
	}
}

func requestLevel(ctx huma.Context, method string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case method == http.MethodOptions:
		return slog.LevelDebug
	case strings.HasPrefix(ctx.Header("Accept"), "text/event-stream"):
		return slog.LevelDebug
	}
	if op := ctx.Operation(); op != nil && quietOperations[op.OperationID] {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}
