package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stanstork/waterwatch-api/internal/authz"
	"github.com/stanstork/waterwatch-api/internal/handlers"
	"github.com/stanstork/waterwatch-api/internal/models"
)

type Handlers struct {
	Auth        *handlers.AuthHandler
	WaterTests  *handlers.WaterTestHandler
	HealthCards *handlers.HealthCardHandler
	Alerts      *handlers.AlertHandler
	// Gatherer backs /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter sets up the API routes
func NewRouter(h Handlers) *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	gatherer := h.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()

	// Public endpoints
	api.HandleFunc("/auth/signup", h.Auth.SignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.Auth.Login).Methods(http.MethodPost)
	api.HandleFunc("/health-cards/{waterbodyId}", h.HealthCards.GetHealthCard).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(h.Auth.JWTMiddleware)

	protected.HandleFunc("/water-tests", h.WaterTests.CreateWaterTest).Methods(http.MethodPost)
	protected.Handle("/water-tests/all",
		authz.RequireRoleHandler(http.HandlerFunc(h.WaterTests.ListWaterTests), models.RoleAdmin)).Methods(http.MethodGet)
	protected.HandleFunc("/water-tests/{id}", h.WaterTests.UpdateWaterTest).Methods(http.MethodPatch)
	protected.HandleFunc("/water-tests/{id}", h.WaterTests.DeleteWaterTest).Methods(http.MethodDelete)

	protected.HandleFunc("/health-cards", h.HealthCards.ListHealthCards).Methods(http.MethodGet)
	protected.HandleFunc("/health-cards", h.HealthCards.CreateHealthCard).Methods(http.MethodPost)
	protected.HandleFunc("/health-cards/{waterbodyId}/refresh", h.HealthCards.RefreshHealthCard).Methods(http.MethodPatch)

	alerts := protected.PathPrefix("/alerts").Subrouter()
	alerts.Use(authz.RequireRole(models.RoleLeader, models.RoleAdmin))
	alerts.HandleFunc("", h.Alerts.ListAlerts).Methods(http.MethodGet)
	alerts.HandleFunc("/leader", h.Alerts.ListLeaderAlerts).Methods(http.MethodGet)
	alerts.HandleFunc("/global", h.Alerts.ListGlobalAlerts).Methods(http.MethodGet)
	alerts.HandleFunc("/stats", h.Alerts.GetAlertStats).Methods(http.MethodGet)

	return router
}
