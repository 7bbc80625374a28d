package testutil

import (
	"net/http"
	"time"

	id "saferide/pkg/domain"
	"saferide/pkg/requestcontext"
)

// WithOperator simulates the auth middleware for an authenticated operator.
func WithOperator(req *http.Request, operator id.OperatorID) *http.Request {
	return req.WithContext(requestcontext.WithOperator(req.Context(), operator))
}

// WithRequestTime pins the request-scoped clock.
func WithRequestTime(req *http.Request, now time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), now))
}
