package adapthttp

import (
	"net/http"

	"tensiometer/internal/app"
)

// Server is the driving HTTP adapter that routes requests to application
// services.
type Server struct {
	measurements     *app.MeasurementService
	authSvc          *app.AuthService
	oidcConfig       OIDCConfig
	corsOrigin       string
	trustForwardAuth bool
	metrics          *metrics
}

// New creates a Server wired to the given application services.
func New(ms *app.MeasurementService, as *app.AuthService) *Server {
	return &Server{
		measurements: ms,
		authSvc:      as,
		corsOrigin:   "*",
		metrics:      newMetrics(),
	}
}

// WithOIDC enables SSO login through the given provider configuration.
func (s *Server) WithOIDC(cfg OIDCConfig) *Server {
	s.oidcConfig = cfg
	return s
}

// WithCORSOrigin sets the Access-Control-Allow-Origin value.
func (s *Server) WithCORSOrigin(origin string) *Server {
	if origin != "" {
		s.corsOrigin = origin
	}
	return s
}

// WithForwardAuth makes the server accept the Remote-User header set by a
// fronting auth proxy.
func (s *Server) WithForwardAuth() *Server {
	s.trustForwardAuth = true
	return s
}

// Handler returns the root http.Handler for the application.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	s.route(api, "GET /health", s.handleHealth)

	s.route(api, "GET /measurements", s.requireUser(s.handleListMeasurements))
	s.route(api, "GET /measurements/range", s.requireUser(s.handleRangeMeasurements))
	s.route(api, "POST /measurements", s.requireUser(s.handleCreateMeasurement))
	s.route(api, "PUT /measurements/{id}", s.requireUser(s.handleUpdateMeasurement))
	s.route(api, "DELETE /measurements/{id}", s.requireUser(s.handleDeleteMeasurement))

	s.route(api, "POST /auth/login", s.handleLogin)
	s.route(api, "POST /auth/logout", s.handleLogout)
	s.route(api, "POST /auth/setup", s.handleSetupUser)
	s.route(api, "GET /auth/config", s.handleConfig)
	s.route(api, "GET /auth/sso/login", s.handleSSOLogin)
	s.route(api, "GET /auth/sso/callback", s.handleSSOCallback)

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))
	root.Handle("GET /metrics", s.metrics.handler())

	return s.withCORS(withNoCache(s.loggingMiddleware(root)))
}

// route registers h under pattern, instrumented with the pattern as its label.
func (s *Server) route(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, s.metrics.instrument(pattern, h))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "tensiometer API is running",
		"status":  "OK",
	})
}
