package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/httplog/v3"

	"branchpay/internal/platform/metrics"
)

// NewLogger builds the process logger: JSON lines in the ECS layout.
func NewLogger(w io.Writer, env string) *slog.Logger {
	schema := httplog.SchemaECS.Concise(env != "production")
	level := slog.LevelInfo
	if env == "development" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: schema.ReplaceAttr,
	})).With(
		slog.String("app", "branchpay"),
		slog.String("env", env),
	)
}

// RequestLogger emits one access log line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return httplog.RequestLogger(logger, &httplog.Options{
		Level:         slog.LevelInfo,
		Schema:        httplog.SchemaECS,
		RecoverPanics: true,
		Skip: func(r *http.Request, respStatus int) bool {
			return respStatus < 400 && (r.URL.Path == "/ping" || r.URL.Path == "/healthz")
		},
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// Metrics counts requests, errors and latency.
func Metrics(collector *metrics.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			collector.Record(recorder.status, time.Since(start))
		})
	}
}
