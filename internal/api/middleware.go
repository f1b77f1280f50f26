package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/v4l2cam/internal/logging"
)

// quietPaths are polled by dashboards and logged at debug on success.
var quietPaths = map[string]bool{
	"/api/frame":   true,
	"/api/session": true,
	"/api/health":  true,
}

// HTTPLoggingMiddleware logs each request at a level chosen by requestLevel.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path

	logAttrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", ctx.RemoteAddr()),
	}
	if query := redactQuery(ctx.URL().RawQuery); query != "" {
		logAttrs = append(logAttrs, slog.String("query", query))
	}
	if userAgent := ctx.Header("User-Agent"); userAgent != "" {
		logAttrs = append(logAttrs, slog.String("user_agent", userAgent))
	}

	next(ctx)

	status := ctx.Status()
	logAttrs = append(logAttrs,
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	)
	logger.LogAttrs(ctx.Context(), requestLevel(method, path, status), "HTTP request completed", logAttrs...)
}

// requestLevel picks debug for preflights and successful polls, error for
// 5xx, warn for 4xx and info otherwise.
func requestLevel(method, path string, status int) slog.Level {
	switch {
	case method == http.MethodOptions:
		return slog.LevelDebug
	case status < 400 && quietPaths[path]:
		return slog.LevelDebug
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// redactQuery hides the base64 credentials EventSource clients send as ?auth=.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil || !values.Has("auth") {
		return raw
	}
	values.Set("auth", "REDACTED")
	return values.Encode()
}
