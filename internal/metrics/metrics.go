// Package metrics provides Prometheus instrumentation for the outcome engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// OperationsTotal counts engine operations by name and result kind
	// ("ok" or an error kind).
	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_operations_total",
		Help: "Total engine operations by result",
	}, []string{"op", "result"})

	// OperationLatency tracks engine operation latency.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_operation_latency_seconds",
		Help:    "Engine operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// SwapsTotal counts executed AMM swaps by direction.
	SwapsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_swaps_total",
		Help: "Total AMM swaps executed",
	}, []string{"direction"})

	// OrdersTotal counts order book events (placed, cancelled, expired) by side.
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_orders_total",
		Help: "Total order book events",
	}, []string{"event", "side"})

	// TradesTotal counts settled matches.
	TradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_trades_total",
		Help: "Total order book trades settled",
	})

	// MarketVolume tracks cumulative native volume per market and venue
	// (direct, amm, book).
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_market_volume_total",
		Help: "Cumulative traded volume in lamports",
	}, []string{"market_id", "venue"})

	// ActiveMarkets tracks the number of unresolved markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "atmx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// EventPublishFailures counts events a sink failed to accept.
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_event_publish_failures_total",
		Help: "Events that could not be delivered to every sink",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atmx_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// PositionLimitRejections counts acquisitions rejected by the position
	// limiter, by which cap was hit.
	PositionLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "atmx_position_limit_rejections_total",
		Help: "Share acquisitions rejected by the position limiter",
	}, []string{"scope"})

	// RateLimited counts requests rejected by the per-client rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "atmx_rate_limited_total",
		Help: "Requests rejected by the rate limiter",
	})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe records one engine operation.
func Observe(op, result string, start time.Time) {
	OperationsTotal.WithLabelValues(op, result).Inc()
	OperationLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := routePattern(r)
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// routePattern labels by chi route pattern to keep cardinality bounded;
// tickers and order ids would otherwise each get their own series.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
