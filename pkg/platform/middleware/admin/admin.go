// Package admin guards the platform-facing routes that raise and reopen
// alerts. Those calls come from the ride platform, not from operators.
package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	request "saferide/pkg/platform/middleware/request"
)

// HeaderPlatformToken carries the shared platform secret.
const HeaderPlatformToken = "X-Platform-Token"

func RequirePlatformToken(expectedToken string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderPlatformToken)
			if expectedToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
				ctx := r.Context()
				logger.WarnContext(ctx, "platform token mismatch",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"platform token required"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
