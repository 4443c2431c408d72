package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/cors"

	"github.com/csg33k/catering-docgen/internal/logger"
)

const requestIDHeader = "X-Request-ID"

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// requestID tags every request with an id (the caller's X-Request-ID or a
// fresh uuid), puts it on the context logger and logs the outcome.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := logger.WithRequestID(r.Context(), id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))
		logger.From(h.log, ctx).DebugContext(ctx, "request",
			"method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}

// WithCORS lets the operations console call the API from its own origin.
func WithCORS(next http.Handler, origins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", requestIDHeader, "HX-Request", "HX-Target", "HX-Trigger", "HX-Current-URL"},
		ExposedHeaders: []string{requestIDHeader},
	})
	return c.Handler(next)
}
