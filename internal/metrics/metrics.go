// Package metrics agrupa las métricas Prometheus del cliente. Vive en un
// paquete propio para evitar ciclos entre api, token, session y apperr.
//
// Todos los métodos aceptan receptor nil (métricas deshabilitadas).
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contiene los collectors registrados.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	refreshesTotal  *prometheus.CounterVec
	classifiedTotal *prometheus.CounterVec
	imageOpsTotal   *prometheus.CounterVec
	sessionEvents   *prometheus.CounterVec
}

// New crea y registra las métricas en reg (o en el default si es nil).
// Registrar dos veces sobre el mismo registry no es un error.
func New(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voci_api_requests_total",
			Help: "Requests al API por método, ruta y status",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voci_api_request_duration_seconds",
			Help:    "Latencia de los requests al API",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		refreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voci_token_refreshes_total",
			Help: "Refrescos de token por tipo y resultado",
		}, []string{"kind", "result"}), // result: committed|skipped|stale|failed
		classifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voci_errors_classified_total",
			Help: "Errores clasificados por categoría",
		}, []string{"kind"}),
		imageOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voci_profile_image_ops_total",
			Help: "Operaciones sobre la imagen de perfil por resultado",
		}, []string{"op", "result"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voci_session_events_total",
			Help: "Eventos emitidos por el session manager",
		}, []string{"event"}),
	}

	for _, c := range []prometheus.Collector{
		m.requestsTotal, m.requestDuration, m.refreshesTotal,
		m.classifiedTotal, m.imageOpsTotal, m.sessionEvents,
	} {
		if err := registerCollector(reg, c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// ObserveRequest registra un request saliente. status 0 = error de transporte.
func (m *Metrics) ObserveRequest(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	p := normalizePath(path)
	method = strings.ToUpper(method)
	m.requestsTotal.WithLabelValues(method, p, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, p).Observe(d.Seconds())
}

// RefreshResult registra el resultado de un refresco de token.
func (m *Metrics) RefreshResult(kind, result string) {
	if m == nil {
		return
	}
	m.refreshesTotal.WithLabelValues(kind, result).Inc()
}

// Classified cuenta un error clasificado.
func (m *Metrics) Classified(kind string) {
	if m == nil {
		return
	}
	m.classifiedTotal.WithLabelValues(kind).Inc()
}

// ImageOp cuenta una operación de imagen (fetch|upload|delete, ok|skipped|failed).
func (m *Metrics) ImageOp(op, result string) {
	if m == nil {
		return
	}
	m.imageOpsTotal.WithLabelValues(op, result).Inc()
}

// SessionEvent cuenta un evento de sesión.
func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(event).Inc()
}

// Transport instrumenta un http.RoundTripper con las métricas de requests.
func (m *Metrics) Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	if m == nil {
		return next
	}
	return roundTripFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		m.ObserveRequest(r.Method, r.URL.Path, status, time.Since(start))
		return resp, err
	})
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// normalizePath reemplaza segmentos dinámicos (ids) por :param para acotar
// la cardinalidad de los labels.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	if clean == "" {
		return "/"
	}
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	if _, err := strconv.Atoi(seg); err == nil {
		return true
	}
	return false
}
