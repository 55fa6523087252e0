package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"

	"github.com/catatau597/tubewranglerr/internal/logging"
)

// RequestIDHeader carries the per-request correlation id.
const RequestIDHeader = "X-Request-Id"

// HTTPLoggingMiddleware logs HTTP requests with appropriate log levels based on status codes.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()

	requestID := ctx.Header(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	ctx.SetHeader(RequestIDHeader, requestID)

	method := ctx.Method()
	logAttrs := requestAttrs(requestID, method, ctx.URL().Path, ctx.URL().RawQuery, ctx.RemoteAddr(), ctx.Header("User-Agent"))

	next(ctx)

	logCompleted(ctx.Context(), method, ctx.Status(), time.Since(start), logAttrs)
}

// LogRequests is the net/http counterpart of HTTPLoggingMiddleware for
// handlers registered directly on the mux.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		r = r.WithContext(withRequestID(r.Context(), requestID))

		logAttrs := requestAttrs(requestID, r.Method, r.URL.Path, r.URL.RawQuery, r.RemoteAddr, r.UserAgent())

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			logAttrs = append(logAttrs, slog.Int64("bytes", rec.bytes))
			logCompleted(r.Context(), r.Method, rec.status, time.Since(start), logAttrs)
		}()
		next.ServeHTTP(rec, r)
	})
}

func requestAttrs(requestID, method, path, query, remoteAddr, userAgent string) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("request_id", requestID),
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", remoteAddr),
	}
	if query != "" {
		attrs = append(attrs, slog.String("query", query))
	}
	if userAgent != "" {
		attrs = append(attrs, slog.String("user_agent", userAgent))
	}
	return attrs
}

func logCompleted(ctx context.Context, method string, status int, duration time.Duration, logAttrs []slog.Attr) {
	logger := logging.GetLogger("http")
	logAttrs = append(logAttrs,
		slog.Int("status", status),
		slog.Duration("duration", duration),
	)

	message := "HTTP request completed"
	switch {
	case method == http.MethodOptions:
		// CORS preflight requests - DEBUG level
		logger.LogAttrs(ctx, slog.LevelDebug, message, logAttrs...)
	case status >= 500:
		logger.LogAttrs(ctx, slog.LevelError, message, logAttrs...)
	case status >= 400:
		logger.LogAttrs(ctx, slog.LevelWarn, message, logAttrs...)
	default:
		// Success and redirects - INFO level
		logger.LogAttrs(ctx, slog.LevelInfo, message, logAttrs...)
	}
}

// statusRecorder captures the status and body size. Unwrap keeps
// http.ResponseController able to reach the underlying flusher.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int64
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	r.wroteHeader = true
	n, err := r.ResponseWriter.Write(p)
	r.bytes += int64(n)
	return n, err
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id assigned by LogRequests, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
