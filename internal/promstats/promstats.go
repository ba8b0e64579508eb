// Package promstats exports server metrics in Prometheus format.
package promstats

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements server.MetricsCollector on its own registry.
type Collector struct {
	registry *prometheus.Registry

	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	transfers        *prometheus.CounterVec
	transferBytes    *prometheus.CounterVec
	transferDuration *prometheus.HistogramVec

	connections  *prometheus.CounterVec
	authAttempts *prometheus.CounterVec
}

// New creates a Collector whose metric names start with namespace.
// The Go runtime and process collectors are registered alongside.
func New(namespace string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "commands_total",
		Help: "Total FTP commands dispatched.",
	}, []string{"command", "result"})
	c.commandDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "command_duration_seconds",
		Help:    "Time from command receipt to final reply.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"command"})

	c.transfers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "transfers_total",
		Help: "Completed data transfers.",
	}, []string{"operation"})
	c.transferBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "transfer_bytes_total",
		Help: "Bytes moved over data connections.",
	}, []string{"operation"})
	c.transferDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Name: "transfer_duration_seconds",
		Help:    "Data transfer latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	}, []string{"operation"})

	c.connections = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "connections_total",
		Help: "Control connections by outcome.",
	}, []string{"result", "reason"})
	c.authAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Name: "auth_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"result"})

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.commands, c.commandDuration,
		c.transfers, c.transferBytes, c.transferDuration,
		c.connections, c.authAttempts,
	)
	return c
}

// Registry returns the registry holding every metric of c.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) RecordCommand(cmd string, success bool, d time.Duration) {
	cmd = strings.ToUpper(cmd)
	c.commands.WithLabelValues(cmd, result(success)).Inc()
	c.commandDuration.WithLabelValues(cmd).Observe(d.Seconds())
}

func (c *Collector) RecordTransfer(op string, bytes int64, d time.Duration) {
	c.transfers.WithLabelValues(op).Inc()
	if bytes > 0 {
		c.transferBytes.WithLabelValues(op).Add(float64(bytes))
	}
	c.transferDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (c *Collector) RecordConnection(accepted bool, reason string) {
	r := "rejected"
	if accepted {
		r = "accepted"
	}
	c.connections.WithLabelValues(r, reason).Inc()
}

// RecordAuthentication counts an attempt. The user name is not used as a
// label to keep cardinality bounded.
func (c *Collector) RecordAuthentication(success bool, _ string) {
	c.authAttempts.WithLabelValues(result(success)).Inc()
}

// Handler serves /metrics and a /healthz liveness probe.
func (c *Collector) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		Registry: c.registry,
	}))
	return r
}

// NewHTTPServer returns an http.Server serving c.Handler on addr.
func (c *Collector) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
