package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPrometheusController_DefaultPath(t *testing.T) {
	c := NewPrometheusController("", nil)
	require.Equal(t, DefaultPath, c.Key())

	r := mux.NewRouter()
	c.Register(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, DefaultPath, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPrometheusController_CustomRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	syncs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "org_hierarchy_sync_total",
		Help: "Synchronizations by result.",
	}, []string{"result"})
	reg.MustRegister(syncs)
	syncs.WithLabelValues("ok").Add(3)

	r := mux.NewRouter()
	NewPrometheusController("/org/metrics", reg).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/org/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `org_hierarchy_sync_total{result="ok"} 3`)
	require.NotContains(t, rec.Body.String(), "go_goroutines")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/org/metrics", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
