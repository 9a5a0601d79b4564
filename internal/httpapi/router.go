// Package httpapi exposes the gateway over HTTP: the send API, provider
// webhooks, Prometheus metrics and a health probe.
package httpapi

import (
	"net/http"
	"reflect"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/ajayykmr/sms-gateway/internal/dispatch"
	"github.com/ajayykmr/sms-gateway/internal/observability/metrics"
	"github.com/ajayykmr/sms-gateway/internal/observability/requestid"
	"github.com/ajayykmr/sms-gateway/internal/observability/tracing"
	"github.com/ajayykmr/sms-gateway/internal/webhook"
)

// Options wires the router's collaborators.
type Options struct {
	// Engines returns a fresh dispatch engine per request.
	Engines func() *dispatch.Engine
	// Webhooks serves /webhook/{provider}. Optional.
	Webhooks *webhook.Handler
	// Ready reports readiness for /healthz. Nil means always ready.
	Ready  func() bool
	Logger zerolog.Logger
	// MaxBodyBytes bounds POST /v1/messages bodies.
	MaxBodyBytes int64
}

// NewRouter builds the gateway router.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "httpapi").Logger()
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = webhook.DefaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestid.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(tracing.Middleware)
	r.Use(metricsMiddleware)

	r.Get("/healthz", healthHandler(opts.Ready))
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	if opts.Engines != nil {
		api := &messagesAPI{engines: opts.Engines, logger: logger, maxBody: opts.MaxBodyBytes}
		r.Post("/v1/messages", api.send)
	}
	if opts.Webhooks != nil {
		r.Mount("/webhook", opts.Webhooks.Routes())
	}
	return r
}

func healthHandler(ready func() bool) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// metricsMiddleware labels requests by their chi route pattern so ids in
// paths do not become label values.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(status), time.Since(start))
	})
}
