package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/bizdash/orgsync/pkg/composables"
	"github.com/bizdash/orgsync/pkg/httpapi"
)

var tracer = otel.Tracer("github.com/bizdash/orgsync/pkg/middleware")

type responseCaptureWriter struct {
	http.ResponseWriter
	statusCode    int
	statusWritten bool
}

func (w *responseCaptureWriter) WriteHeader(code int) {
	if !w.statusWritten {
		w.statusCode = code
		w.statusWritten = true
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *responseCaptureWriter) Write(b []byte) (int, error) {
	if !w.statusWritten {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// Status returns the HTTP status code
func (w *responseCaptureWriter) Status() int {
	if w.statusCode == 0 {
		return http.StatusOK
	}
	return w.statusCode
}

func getRequestID(r *http.Request, header string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	v := uuid.NewString()
	r.Header.Set(header, v)
	return v
}

// WithLogger attaches a request-scoped logrus entry to the context, logs the
// request outcome and turns handler panics into a JSON 500.
func WithLogger(logger *logrus.Logger, requestIDHeader string) mux.MiddlewareFunc {
	if requestIDHeader == "" {
		requestIDHeader = "X-Request-ID"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := getRequestID(r, requestIDHeader)

			fieldsLogger := logger.WithFields(logrus.Fields{
				"request-id": requestID,
				"path":       r.URL.Path,
				"method":     r.Method,
			})
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, "http.request",
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.route", r.URL.Path),
					attribute.String("http.request_id", requestID),
				),
			)
			defer span.End()
			if sc := span.SpanContext(); sc.HasTraceID() {
				fieldsLogger = fieldsLogger.WithField("trace-id", sc.TraceID().String())
				w.Header().Set("X-Trace-Id", sc.TraceID().String())
			}
			ctx = composables.WithLogger(ctx, fieldsLogger)
			w.Header().Set(requestIDHeader, requestID)
			wrapped := &responseCaptureWriter{ResponseWriter: w}

			defer func() {
				if recovered := recover(); recovered != nil {
					fieldsLogger.WithFields(logrus.Fields{
						"panic":    recovered,
						"stack":    string(debug.Stack()),
						"duration": time.Since(start),
					}).Error("panic recovered in request handler")
					span.SetStatus(codes.Error, "panic")
					if !wrapped.statusWritten {
						_ = httpapi.WriteError(wrapped, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error",
							map[string]string{"request_id": requestID})
					}
				}
			}()

			next.ServeHTTP(wrapped, r.WithContext(ctx))

			status := wrapped.Status()
			span.SetAttributes(attribute.Int("http.status_code", status))
			entry := fieldsLogger.WithFields(logrus.Fields{
				"duration":     time.Since(start),
				"status-code":  status,
				"status-class": status / 100,
			})
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
				entry.Error("request completed")
				return
			}
			entry.Info("request completed")
		})
	}
}
