package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/golab-ledger/internal/core"
)

// WithRequestMetadata adds the caller's IP and User-Agent to ctx for audit
// events.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequestMeta(ctx, core.RequestMeta{
		IPAddress: clientIP(r),
		UserAgent: r.UserAgent(),
		Source:    "http",
	})
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already rewritten for requests from trusted proxies.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
