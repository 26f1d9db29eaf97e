// Package monitoring exposes the Prometheus scrape endpoint
package monitoring

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsHandler returns the HTTP handler serving the statuswatch_* metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// SetupMetricsEndpoint mounts the scrape endpoint on the given router
func SetupMetricsEndpoint(router *mux.Router) {
	router.Handle("/metrics", MetricsHandler()).Methods("GET")
}
