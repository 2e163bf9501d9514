package rest

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/davidleathers/secops-incident-engine/internal/metrics"
)

// RouterConfig collects the router's collaborators.
type RouterConfig struct {
	Handler     *Handler
	Auth        *AuthMiddleware
	RateLimiter Limiter
	Metrics     *metrics.Registry
	// Contract, when set, rejects /v1 requests the OpenAPI document does not describe.
	Contract *ContractValidator
	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer      prometheus.Gatherer
	HealthChecks  []HealthChecker
	HealthTimeout time.Duration
	Logger        *zap.Logger
}

// NewRouter builds the HTTP surface. Every /v1 route is authenticated and rate limited;
// roles are resolved inside each handler.
func NewRouter(cfg RouterConfig) http.Handler {
	h := cfg.Handler
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 2 * time.Second
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	api := []Middleware{cfg.Auth.Middleware}
	if cfg.Contract != nil {
		api = append(api, cfg.Contract.Middleware(h.BaseHandler))
	}
	if cfg.RateLimiter != nil {
		api = append(api, rateLimitMiddleware(cfg.RateLimiter, h.BaseHandler))
	}

	mux := http.NewServeMux()
	route := func(method, pattern string, handler http.Handler, mws ...Middleware) {
		mux.Handle(method+" "+pattern, instrument(cfg.Metrics, method, pattern, Chain(handler, mws...)))
	}

	route(http.MethodGet, "/healthz", healthHandler(h.BaseHandler, cfg.HealthTimeout, cfg.HealthChecks...))
	route(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	route(http.MethodGet, "/openapi.yaml", http.HandlerFunc(openAPIHandler))

	route(http.MethodGet, "/v1/me/roles", h.Wrap("roles", h.Roles), api...)
	route(http.MethodPut, "/v1/me/view-as", h.Wrap("set_view_as", h.SetViewAs), api...)
	route(http.MethodDelete, "/v1/me/view-as", h.Wrap("clear_view_as", h.ClearViewAs), api...)

	route(http.MethodPost, "/v1/{scope}/incidents", h.Wrap("create_incident", h.CreateIncident, WithStatus(http.StatusCreated)), api...)
	route(http.MethodGet, "/v1/{scope}/incidents/{id}", h.Wrap("get_incident", h.GetIncident), api...)
	route(http.MethodGet, "/v1/{scope}/incidents/{id}/permissions", h.Wrap("permissions", h.Permissions), api...)
	route(http.MethodPost, "/v1/{scope}/incidents/{id}/transitions", h.Wrap("transition", h.Transition), api...)
	route(http.MethodPost, "/v1/{scope}/incidents/{id}/assignment", h.Wrap("assign", h.Assign), api...)
	route(http.MethodPost, "/v1/{scope}/incidents/{id}/on-site", h.Wrap("mark_on_site", h.MarkOnSite), api...)
	route(http.MethodPost, "/v1/{scope}/incidents/{id}/comments", h.Wrap("comment", h.Comment, WithStatus(http.StatusCreated)), api...)
	route(http.MethodGet, "/v1/{scope}/incidents/{id}/timeline", h.Wrap("timeline", h.Timeline), api...)
	route(http.MethodGet, "/v1/{scope}/audit-log", h.Wrap("audit_log", h.AuditLog), api...)

	return Chain(mux,
		requestIDMiddleware,
		recoveryMiddleware(h.BaseHandler),
		loggingMiddleware(logger),
	)
}
