package policy

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
)

// ResponseSink adapts a chi WrapResponseWriter. Status is non-zero once
// the header block has been flushed.
type ResponseSink struct {
	w middleware.WrapResponseWriter
}

// NewResponseSink wraps w, reusing an existing WrapResponseWriter.
func NewResponseSink(w http.ResponseWriter, protoMajor int) (*ResponseSink, middleware.WrapResponseWriter) {
	ww, ok := w.(middleware.WrapResponseWriter)
	if !ok {
		ww = middleware.NewWrapResponseWriter(w, protoMajor)
	}
	return &ResponseSink{w: ww}, ww
}

// Set writes one header line, replacing any earlier value.
func (s *ResponseSink) Set(name, value string) {
	s.w.Header().Set(name, value)
}

// HeadersSent reports whether the response status has been written.
func (s *ResponseSink) HeadersSent() bool {
	return s.w.Status() != 0
}

// Middleware applies security headers before next writes the response.
func (e *Engine) Middleware(res Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sink, ww := NewResponseSink(w, r.ProtoMajor)
			e.Apply(r.Context(), res.Resolve(r), sink)
			next.ServeHTTP(ww, r)
		})
	}
}
