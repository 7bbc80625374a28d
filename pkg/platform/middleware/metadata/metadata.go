// Package metadata records who is calling: the client IP for logs and a
// short device description for the audit trail.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"saferide/pkg/requestcontext"
)

type contextKeyClientIP struct{}

// ClientMetadata extracts the client IP and a parsed User-Agent description.
// Apply it early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyClientIP{}, ClientIPFromRequest(r))
		if client := DescribeUserAgent(r.Header.Get("User-Agent")); client != "" {
			ctx = requestcontext.WithClient(ctx, client)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetClientIP retrieves the client IP address from the context.
func GetClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(contextKeyClientIP{}).(string); ok {
		return ip
	}
	return ""
}

// DescribeUserAgent reduces a User-Agent header to "Browser on OS", with a
// "(mobile)" or "(bot)" suffix. Returns "" for an empty header.
func DescribeUserAgent(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	ua := useragent.New(raw)
	name, _ := ua.Browser()
	if name == "" {
		name = "unknown client"
	}
	desc := name
	if os := ua.OSInfo().Name; os != "" {
		desc += " on " + os
	}
	switch {
	case ua.Bot():
		desc += " (bot)"
	case ua.Mobile():
		desc += " (mobile)"
	}
	return desc
}

// ClientIPFromRequest prefers proxy headers over RemoteAddr. Only the first
// X-Forwarded-For hop is used.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
