package metrics

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bizdash/orgsync/pkg/application"
)

const DefaultPath = "/metrics"

// PrometheusController exposes the org sync counters and histograms for
// scraping.
type PrometheusController struct {
	path     string
	gatherer prometheus.Gatherer
}

// NewPrometheusController serves gatherer at path. A nil gatherer means the
// default registry, where promauto registers the org.hierarchy metrics.
func NewPrometheusController(path string, gatherer prometheus.Gatherer) application.Controller {
	if path == "" {
		path = DefaultPath
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &PrometheusController{path: path, gatherer: gatherer}
}

func (c *PrometheusController) Key() string {
	return c.path
}

func (c *PrometheusController) Register(r *mux.Router) {
	h := promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{EnableOpenMetrics: true})
	r.Handle(c.path, h).Methods(http.MethodGet)
}
