package prometheus

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gongdel/promptview/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 10 * time.Second
	defaultPort       = 9090
)

var viewsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "promptview_views_recorded_total",
	Help: "View record attempts partitioned by dedup outcome.",
}, []string{"result"})

// ObserveViewRecorded counts one record-view call by its dedup outcome.
func ObserveViewRecorded(accepted bool) {
	result := "duplicate"
	if accepted {
		result = "accepted"
	}
	viewsRecorded.WithLabelValues(result).Inc()
}

// NewServer builds a basic HTTP server that exposes /metrics for Prometheus scraping.
func NewServer(cfg config.PrometheusConfig) *http.Server {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
}
