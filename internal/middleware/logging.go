package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/capitalize-ai/quorra/pkg/logger"
	"github.com/capitalize-ai/quorra/pkg/metrics"
)

const (
	// CorrelationIDKey is the context key for correlation ID.
	CorrelationIDKey ContextKey = "correlation_id"

	correlationHeader = "X-Correlation-ID"

	requestKey ContextKey = "request"
)

// request is filled in by inner middleware so the access log sees it.
type request struct {
	userID string
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (rw *statusRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += int64(n)
	return n, err
}

// Logging writes one access log line per request and records the request
// metrics, labelled by route pattern so conversation ids stay out of the
// label set. Server errors log at warn.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	log = logger.OrNop(log).Named("http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			correlationID := r.Header.Get(correlationHeader)
			if correlationID == "" {
				correlationID = uuid.NewString()
			}
			w.Header().Set(correlationHeader, correlationID)

			info := &request{}
			ctx := context.WithValue(r.Context(), CorrelationIDKey, correlationID)
			ctx = context.WithValue(ctx, requestKey, info)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			elapsed := time.Since(start)
			route := routePattern(r)

			level := zapcore.InfoLevel
			if rec.status >= http.StatusInternalServerError {
				level = zapcore.WarnLevel
			}
			if ce := log.WithContext(correlationID, info.userID).Check(level, "request completed"); ce != nil {
				ce.Write(
					zap.String("method", r.Method),
					zap.String("route", route),
					zap.String("path", r.URL.Path),
					zap.Int("status", rec.status),
					zap.Int64("bytes", rec.bytes),
					zap.Duration("duration", elapsed),
				)
			}

			metrics.RecordRequest(r.Method, route, strconv.Itoa(rec.status), elapsed.Seconds())
		})
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// recordUser makes the authenticated user visible to the access log.
func recordUser(ctx context.Context, userID string) {
	if info, ok := ctx.Value(requestKey).(*request); ok {
		info.userID = userID
	}
}

// GetCorrelationID gets correlation ID from context.
func GetCorrelationID(ctx context.Context) string {
	if v, ok := ctx.Value(CorrelationIDKey).(string); ok {
		return v
	}
	return ""
}
