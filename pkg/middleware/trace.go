package middleware

import (
	"fmt"
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/music-search-bot/pkg/tracing"
)

// Trace opens a root span per request, keyed by the request id, so spans
// started further down join one trace. Must run after RequestID.
func Trace(tracer *tracing.Tracer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), "http "+r.Method+" "+routeLabel(r.URL.Path), logger.RequestID(r.Context()))
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				span.SetAttr("status", sw.status)
				if sw.status >= http.StatusInternalServerError {
					span.SetError(fmt.Errorf("http status %d", sw.status))
				}
				tracer.Finish(span)
			}()
			next.ServeHTTP(sw, r.WithContext(ctx))
		})
	}
}
