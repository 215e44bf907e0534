package observability

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics mengumpulkan metrik Prometheus untuk aplikasi.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	storeRetries    *prometheus.CounterVec
	liveSaves       *prometheus.CounterVec
	liveConnections prometheus.Gauge
}

// NewMetrics menginisialisasi registry dan metrik dasar.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marginboard_http_requests_total",
		Help: "Jumlah permintaan HTTP berdasarkan route dan status.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marginboard_http_request_duration_seconds",
		Help:    "Durasi permintaan HTTP per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marginboard_store_retries_total",
		Help: "Store attempts that failed and were retried, by failure class.",
	}, []string{"class"})
	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "marginboard_live_saves_total",
		Help: "Autosave cycles of live editing sessions, by outcome.",
	}, []string{"outcome"})
	connections := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "marginboard_live_connections",
		Help: "Open live editing websocket connections.",
	})
	registry.MustRegister(requests, duration, retries, saves, connections)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		storeRetries:    retries,
		liveSaves:       saves,
		liveConnections: connections,
	}
}

// Handler mengembalikan http.Handler untuk endpoint /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware mencatat metrik untuk setiap permintaan HTTP.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// StoreRetry mencatat satu percobaan store yang gagal lalu diulang.
func (m *Metrics) StoreRetry(class string) {
	if m == nil {
		return
	}
	m.storeRetries.WithLabelValues(class).Inc()
}

// LiveSave mencatat hasil satu siklus autosave.
func (m *Metrics) LiveSave(outcome string) {
	if m == nil {
		return
	}
	m.liveSaves.WithLabelValues(outcome).Inc()
}

// LiveConnections menyesuaikan jumlah koneksi websocket yang terbuka.
func (m *Metrics) LiveConnections(delta int) {
	if m == nil {
		return
	}
	m.liveConnections.Add(float64(delta))
}

// Registerer mengekspos registry untuk pendaftaran metrik khusus.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack meneruskan ke writer asli agar upgrade websocket tetap berjalan.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("observability: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
