package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tramline/tramline/internal/api/models"
)

// Recovery turns a panicking handler into a 500 problem response. The panic
// is logged with its stack and recorded on the request span.
// http.ErrAbortHandler is re-raised so the server aborts the response.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if err, ok := rv.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rv)
				}

				err := fmt.Errorf("panic: %v", rv)
				span := trace.SpanFromContext(r.Context())
				span.RecordError(err, trace.WithStackTrace(true))
				span.SetStatus(codes.Error, err.Error())

				requestID := GetRequestID(r.Context())
				log.Error().
					Str("request_id", requestID).
					Str("route", routePattern(r)).
					Err(err).
					Bytes("stack", debug.Stack()).
					Msg("handler panicked")

				rec := recordResponse(w)
				if rec.wroteHeader {
					// Too late for a problem body; the client sees a truncated response.
					return
				}
				writeProblem(rec, r, models.NewInternalError(requestID, "an unexpected error occurred"))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
