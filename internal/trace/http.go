package trace

import "net/http"

// Header names for trace propagation.
const (
	TraceIDHeader = "X-Trace-Id"
	SpanIDHeader  = "X-Span-Id"
)

// Middleware attaches a trace context to each request, continuing one
// propagated via headers when present.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := Context{
			TraceID:      r.Header.Get(TraceIDHeader),
			ParentSpanID: r.Header.Get(SpanIDHeader),
			SpanID:       generateID(8),
		}
		if tc.TraceID == "" {
			tc.TraceID = generateID(16)
		}
		ctx := WithContext(r.Context(), tc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
