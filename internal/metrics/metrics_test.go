package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.ObserveRequest("GET", "/login", 200, time.Millisecond)
	m.RefreshResult("auth", "committed")
	m.Classified("unknown")
	m.ImageOp("fetch", "ok")
	m.SessionEvent("logged_out")
	require.Equal(t, http.DefaultTransport, m.Transport(nil))
}

func TestCountersOnInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	require.NoError(t, err)

	m.RefreshResult("auth", "committed")
	m.RefreshResult("auth", "committed")
	m.RefreshResult("user", "skipped")
	m.Classified("forbidden")

	require.Equal(t, 2.0, testutil.ToFloat64(m.refreshesTotal.WithLabelValues("auth", "committed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.refreshesTotal.WithLabelValues("user", "skipped")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.classifiedTotal.WithLabelValues("forbidden")))

	// registrar de nuevo sobre el mismo registry no falla
	_, err = New(reg)
	require.NoError(t, err)
}

func TestTransportRecordsNormalizedPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	m, err := New(prometheus.NewRegistry())
	require.NoError(t, err)

	c := &http.Client{Transport: m.Transport(nil)}
	resp, err := c.Get(srv.URL + "/user/6f1c2a34-8d0e-4b6a-9c1e-2f3a4b5c6d7e/profileImage")
	require.NoError(t, err)
	resp.Body.Close()

	require.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("GET", "/user/:param/profileImage", "404")))
}

func TestNormalizePath(t *testing.T) {
	require.Equal(t, "/", normalizePath(""))
	require.Equal(t, "/login", normalizePath("/login?x=1"))
	require.Equal(t, "/auth/:param/profileImage", normalizePath("/auth/6f1c2a34-8d0e-4b6a-9c1e-2f3a4b5c6d7e/profileImage"))
	require.Equal(t, "/items/:param", normalizePath("/items/42"))
}
