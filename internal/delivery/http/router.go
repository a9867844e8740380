package http

import (
	"net/http"

	"ptm-statistics/internal/delivery/http/handler"
	"ptm-statistics/internal/delivery/http/middleware"

	"github.com/gorilla/mux"
)

type Router struct {
	router            *mux.Router
	statisticsHandler *handler.StatisticsHandler
	auditLogHandler   *handler.AuditLogHandler
	actorMiddleware   *middleware.ActorMiddleware
	corsMiddleware    *middleware.CORSMiddleware
}

func NewRouter(
	statisticsHandler *handler.StatisticsHandler,
	auditLogHandler *handler.AuditLogHandler,
	actorMiddleware *middleware.ActorMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
) *Router {
	return &Router{
		router:            mux.NewRouter(),
		statisticsHandler: statisticsHandler,
		auditLogHandler:   auditLogHandler,
		actorMiddleware:   actorMiddleware,
		corsMiddleware:    corsMiddleware,
	}
}

func (r *Router) Setup() *mux.Router {
	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Statistics reads
	api.HandleFunc("/statistics/{puskesmasId:[0-9]+}/{disease}/{year:[0-9]+}", r.statisticsHandler.GetYearStatistics).Methods(http.MethodGet)
	api.HandleFunc("/statistics/{puskesmasId:[0-9]+}/{disease}/{year:[0-9]+}/{month:[0-9]+}", r.statisticsHandler.GetMonthStatistic).Methods(http.MethodGet)
	api.HandleFunc("/dashboard", r.statisticsHandler.GetDashboard).Methods(http.MethodGet)

	// Writes carry the forwarded actor for the audit trail
	writes := api.NewRoute().Subrouter()
	writes.Use(r.actorMiddleware.Identify)
	writes.HandleFunc("/examinations", r.statisticsHandler.RecordExamination).Methods(http.MethodPost)
	writes.HandleFunc("/targets", r.statisticsHandler.SetTarget).Methods(http.MethodPut)
	writes.HandleFunc("/statistics/rebuild", r.statisticsHandler.RebuildStatistics).Methods(http.MethodPost)

	api.HandleFunc("/audit-logs", r.auditLogHandler.GetRecentAuditLogs).Methods(http.MethodGet)

	// Add CORS middleware
	r.router.Use(r.corsMiddleware.Handle)

	return r.router
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}
