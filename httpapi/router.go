// Package httpapi exposes the authentication engine over HTTP: the
// /api/v1/auth endpoints consumed by the Revline frontend, plus Prometheus
// metrics.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	authcore "github.com/revline/authcore"
	"github.com/revline/authcore/middleware"
)

// BasePath is the prefix of every auth endpoint and the refresh cookie path.
const BasePath = "/api/v1/auth"

// NewRouter builds the service router.
func NewRouter(engine *authcore.Engine, logger *slog.Logger) *mux.Router {
	h := &handler{engine: engine, logger: logger}

	r := mux.NewRouter()
	r.Use(metricsMiddleware, clientIPMiddleware)

	auth := r.PathPrefix(BasePath).Subrouter()
	auth.HandleFunc("/register", h.register).Methods(http.MethodPost)
	auth.HandleFunc("/login", h.login).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", h.refresh).Methods(http.MethodPost)
	auth.HandleFunc("/logout", h.logout).Methods(http.MethodPost)

	protected := auth.NewRoute().Subrouter()
	protected.Use(middleware.Guard(engine))
	protected.HandleFunc("/me", h.me).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	return r
}
