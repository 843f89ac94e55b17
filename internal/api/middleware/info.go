package middleware

import (
	"context"
	"net"
	"net/http"
)

type contextKey string

const infoKey contextKey = "request_info"

// requestInfo is shared by pointer so that values learned deep in the chain
// reach middleware that cloned the request further out.
type requestInfo struct {
	pattern   string
	clientIP  string
	requestID string
}

func infoFrom(ctx context.Context) *requestInfo {
	info, _ := ctx.Value(infoKey).(*requestInfo)
	return info
}

// withInfo returns r carrying a requestInfo, cloning r only when it has none.
func withInfo(r *http.Request) (*http.Request, *requestInfo) {
	if info := infoFrom(r.Context()); info != nil {
		return r, info
	}
	info := &requestInfo{}
	return r.WithContext(context.WithValue(r.Context(), infoKey, info)), info
}

// Routed wraps the mux and publishes the matched pattern to outer middleware.
func Routed(mux http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mux.ServeHTTP(w, r)
		if info := infoFrom(r.Context()); info != nil {
			info.pattern = r.Pattern
		}
	})
}

// ClientIP returns the caller address resolved by RateLimiter, falling back
// to the connection's remote address.
func ClientIP(r *http.Request) string {
	if info := infoFrom(r.Context()); info != nil && info.clientIP != "" {
		return info.clientIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// RequestID returns the correlation id assigned by CorrelationID, or "".
func RequestID(ctx context.Context) string {
	if info := infoFrom(ctx); info != nil {
		return info.requestID
	}
	return ""
}
