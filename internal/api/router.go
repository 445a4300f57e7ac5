package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/techstock/internal/api/handlers"
	"github.com/wonny/techstock/pkg/logger"
	"github.com/wonny/techstock/pkg/metrics"
)

// NewRouter creates and configures the HTTP router
func NewRouter(pipeline *handlers.PipelineHandler, bt *handlers.BacktestHandler, reg *metrics.Registry, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	if reg != nil {
		r.Handle("/metrics", reg.Handler()).Methods("GET")
	}

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Market regime
	api.HandleFunc("/market/status", pipeline.GetMarketStatus).Methods("GET")

	// Sector ranking
	api.HandleFunc("/sectors/ranking", pipeline.GetSectorRanking).Methods("GET")
	api.HandleFunc("/sectors/refresh", pipeline.RefreshSectorRanking).Methods("POST")

	// Eligibility filter
	api.HandleFunc("/filter/eligibility", pipeline.GetEligibility).Methods("GET")

	// Signals
	api.HandleFunc("/signals/buy", pipeline.GetBuySignals).Methods("GET")
	api.HandleFunc("/signals/exit", pipeline.GetExitSignals).Methods("GET")
	api.HandleFunc("/signals/window", pipeline.GetTradingWindow).Methods("GET")

	// Backtest
	api.HandleFunc("/backtest/run", bt.Run).Methods("POST")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "techstock-api",
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
