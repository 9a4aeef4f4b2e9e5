package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// probeRoutes are polled by the platform and only logged at debug level.
var probeRoutes = map[string]bool{
	"/v1/ops/health": true,
	"/v1/ops/ready":  true,
}

// Logger logs one line per request and stores a request scoped logger in the
// context, so handlers can use zerolog.Ctx(r.Context()) and get the request
// and trace ids on every line.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lctx := log.With().Str("request_id", GetRequestID(r.Context()))
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				lctx = lctx.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
			}
			reqLog := lctx.Logger()
			ctx, info := withRequestInfo(reqLog.WithContext(r.Context()))

			rec := recordResponse(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			route := routePattern(r)
			var event *zerolog.Event
			switch {
			case rec.status >= http.StatusInternalServerError:
				event = reqLog.Error()
			case rec.status >= http.StatusBadRequest:
				event = reqLog.Warn()
			case probeRoutes[route]:
				event = reqLog.Debug()
			default:
				event = reqLog.Info()
			}

			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", rec.status).
				Int64("bytes", rec.bytes).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Str("operator", info.operator).
				Msg("request completed")
		})
	}
}
