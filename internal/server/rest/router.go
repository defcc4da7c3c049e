package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/flyvercity/c2ng/internal/auth"
)

// NewRouter returns the configured chi.Router for the service.
//
// Route layout:
//
//	GET    /                                        – homepage (no auth)
//	GET    /healthz                                 – liveness probe (no auth)
//	GET    /metrics                                 – Prometheus metrics (no auth)
//	GET    /gui/dashboard                           – operator dashboard (no auth)
//	GET    /notifications/websocket                 – notification channel (ticket auth in-band)
//	POST   /session                                 – open a session (bearer)
//	DELETE /session/{uasid}                         – close a session (bearer)
//	GET    /certificate/{uasid}/{segment}           – peer certificate (bearer)
//	GET    /address/{uasid}/{segment}               – peer address (bearer)
//	POST   /signal/{uasid}                          – report telemetry (bearer)
//	GET    /signal/{uasid}                          – signal aggregates (bearer)
//	POST   /notifications/auth/{uasid}/{segment}    – WebSocket ticket (bearer)
//	GET    /did/jwt/{uasid}                         – verifiable credential (bearer)
//	GET    /did/config/{uasid}                      – verifier configuration (bearer)
//
// verifier guards the bearer routes. Pass nil to disable token validation
// (useful in tests that cover only request parsing / response formatting).
// notifications serves the WebSocket endpoint; ticket checks happen inside
// the channel itself.
func NewRouter(srv *Server, verifier *auth.Verifier, notifications http.Handler) http.Handler {
	r := chi.NewRouter()

	// Built-in chi middleware for observability and hygiene.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/", srv.handleHomepage)
	r.Get("/healthz", srv.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/gui/dashboard", srv.handleDashboard)

	if notifications != nil {
		r.Get("/notifications/websocket", notifications.ServeHTTP)
	}

	// Bearer-authenticated API routes.
	r.Group(func(r chi.Router) {
		if verifier != nil {
			r.Use(verifier.Middleware)
		}

		r.Post("/session", srv.handleSessionOpen)
		r.Delete("/session/{uasid}", srv.handleSessionClose)
		r.Get("/certificate/{uasid}/{segment}", srv.handleCertificate)
		r.Get("/address/{uasid}/{segment}", srv.handleAddress)
		r.Post("/signal/{uasid}", srv.handleSignalReport)
		r.Get("/signal/{uasid}", srv.handleSignalStats)
		r.Post("/notifications/auth/{uasid}/{segment}", srv.handleNotificationsAuth)
		r.Get("/did/jwt/{uasid}", srv.handleDIDJWT)
		r.Get("/did/config/{uasid}", srv.handleDIDConfig)
	})

	return r
}
