package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	alerthandler "saferide/internal/alert/handler"
	alertservice "saferide/internal/alert/service"
	alertstore "saferide/internal/alert/store"
	"saferide/internal/audit"
	jwttoken "saferide/internal/jwt_token"
	"saferide/internal/platform/metrics"
	"saferide/pkg/platform/middleware/admin"
	request "saferide/pkg/platform/middleware/request"
	"saferide/pkg/testutil"
)

const platformToken = "platform-secret"

type fixture struct {
	router http.Handler
	jwt    *jwttoken.JWTService
	reg    *prometheus.Registry
}

func newFixture(t *testing.T, token string, readiness map[string]ReadinessCheck) fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	jwt := jwttoken.NewJWTService("router-test-key", "saferide")
	reg := prometheus.NewRegistry()

	alerts := alertservice.New(alertstore.NewInMemory())
	h := alerthandler.New(alerts, audit.NewPublisher(audit.NewInMemoryStore()), logger)
	router := NewRouter(RouterConfig{
		Logger:        logger,
		Validator:     jwttoken.NewJWTServiceAdapter(jwt),
		PlatformToken: token,
		Metrics:       metrics.New(reg),
		Gatherer:      reg,
		Readiness:     readiness,
	}, h, h)
	return fixture{router: router, jwt: jwt, reg: reg}
}

func (f fixture) operatorRequest(t *testing.T, method, path string) *http.Request {
	t.Helper()
	token, err := f.jwt.GenerateOperatorToken("dispatcher-7", "dispatcher", time.Hour)
	require.NoError(t, err)
	req := testutil.NewRequest(t, method, path)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestOperatorRoutesRequireToken(t *testing.T) {
	f := newFixture(t, platformToken, nil)

	rec := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/v1/alerts/alert-1"))
	testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthorized")

	rec = testutil.DoRequest(f.router, f.operatorRequest(t, http.MethodGet, "/v1/alerts/alert-1"))
	testutil.AssertStatusAndError(t, rec, http.StatusNotFound, "not_found")
	assert.NotEmpty(t, rec.Header().Get(request.HeaderRequestID))
}

func TestPlatformRoutes(t *testing.T) {
	t.Run("require the platform token", func(t *testing.T) {
		f := newFixture(t, platformToken, nil)
		body := map[string]string{"alert_id": "alert-1", "driver_id": "driver-1"}

		rec := testutil.DoRequest(f.router, testutil.NewJSONRequest(t, http.MethodPost, "/platform/alerts", body))
		testutil.AssertStatusAndError(t, rec, http.StatusUnauthorized, "unauthorized")

		req := testutil.NewJSONRequest(t, http.MethodPost, "/platform/alerts", body)
		req.Header.Set(admin.HeaderPlatformToken, platformToken)
		rec = testutil.DoRequest(f.router, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = testutil.DoRequest(f.router, f.operatorRequest(t, http.MethodGet, "/v1/alerts/alert-1"))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("are not mounted without a token", func(t *testing.T) {
		f := newFixture(t, "", nil)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/platform/alerts",
			map[string]string{"alert_id": "alert-1", "driver_id": "driver-1"})
		req.Header.Set(admin.HeaderPlatformToken, "")
		rec := testutil.DoRequest(f.router, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthAndReadiness(t *testing.T) {
	f := newFixture(t, "", map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	})

	rec := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/health"))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/ready"))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	status := testutil.UnmarshalResponse[map[string]string](t, rec)
	assert.Equal(t, "ok", (*status)["postgres"])
	assert.Equal(t, "unavailable", (*status)["redis"])
}

func TestMetricsUseRoutePatterns(t *testing.T) {
	f := newFixture(t, "", nil)
	testutil.DoRequest(f.router, f.operatorRequest(t, http.MethodGet, "/v1/alerts/alert-1"))
	testutil.DoRequest(f.router, f.operatorRequest(t, http.MethodGet, "/v1/alerts/alert-2"))

	rec := testutil.DoRequest(f.router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `route="/v1/alerts/{alertID}"`)
	assert.False(t, strings.Contains(body, "alert-1"), "raw path leaked into labels")
}
