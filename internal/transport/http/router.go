// Package httptransport assembles the HTTP surface: shared middleware, the
// operator API under /v1, platform routes under /platform, and the health
// and metrics endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"saferide/internal/platform/metrics"
	"saferide/pkg/platform/httputil"
	"saferide/pkg/platform/middleware/admin"
	authmw "saferide/pkg/platform/middleware/auth"
	"saferide/pkg/platform/middleware/metadata"
	request "saferide/pkg/platform/middleware/request"
	"saferide/pkg/platform/middleware/requesttime"
)

// Registrar mounts a module's routes.
type Registrar interface {
	Register(r chi.Router)
}

// PlatformRegistrar mounts routes the ride platform calls.
type PlatformRegistrar interface {
	RegisterPlatform(r chi.Router)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type RouterConfig struct {
	Logger        *slog.Logger
	Validator     authmw.JWTValidator
	PlatformToken string
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
	Readiness     map[string]ReadinessCheck
}

// NewRouter wires the middleware chain and mounts every module. Platform
// routes are only mounted when a platform token is configured.
func NewRouter(cfg RouterConfig, platform PlatformRegistrar, modules ...Registrar) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(cfg.Logger))
	r.Use(metrics.LatencyMiddleware(cfg.Metrics))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readyHandler(cfg.Readiness, cfg.Logger))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(authmw.RequireOperator(cfg.Validator, cfg.Logger))
		for _, m := range modules {
			m.Register(v1)
		}
	})

	if platform != nil && cfg.PlatformToken != "" {
		r.Route("/platform", func(p chi.Router) {
			p.Use(admin.RequirePlatformToken(cfg.PlatformToken, cfg.Logger))
			platform.RegisterPlatform(p)
		})
	}
	return r
}

func readyHandler(checks map[string]ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "readiness check failed",
					"dependency", name,
					"error", err,
				)
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
