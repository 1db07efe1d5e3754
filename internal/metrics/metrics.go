// Package metrics exports probe run statistics in the Prometheus format,
// either as a text file or over HTTP.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tkjaer/geoping/internal/probe"
	"github.com/tkjaer/geoping/internal/shared"
)

// Metrics implements probe.Observer.
type Metrics struct {
	registry *prometheus.Registry

	probesTotal   *prometheus.CounterVec
	outcomesTotal *prometheus.CounterVec
	inFlight      prometheus.Gauge
	rttSeconds    *prometheus.HistogramVec
	targetRTT     *prometheus.GaugeVec
	lastRunTime   prometheus.Gauge
}

// New creates a Metrics with its own registry.
func New() *Metrics {
	return newMetricsWithRegistry(prometheus.NewRegistry())
}

func newMetricsWithRegistry(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoping_probes_total",
				Help: "Total number of probes launched",
			},
			[]string{"family"},
		),
		outcomesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "geoping_probe_outcomes_total",
				Help: "Total number of finished probes by outcome",
			},
			[]string{"family", "reason"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "geoping_probes_in_flight",
				Help: "Number of probes waiting for a reply",
			},
		),
		rttSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "geoping_rtt_seconds",
				Help:    "Round-trip time of successful probes",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 13),
			},
			[]string{"family"},
		),
		targetRTT: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "geoping_target_rtt_ms",
				Help: "Round-trip time to each target in milliseconds",
			},
			[]string{"destination", "location"},
		),
		lastRunTime: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "geoping_last_probe_timestamp",
				Help: "Timestamp of the last finished probe",
			},
		),
	}

	registry.MustRegister(m.probesTotal)
	registry.MustRegister(m.outcomesTotal)
	registry.MustRegister(m.inFlight)
	registry.MustRegister(m.rttSeconds)
	registry.MustRegister(m.targetRTT)
	registry.MustRegister(m.lastRunTime)

	return m
}

func familyLabel(ip string) string {
	family, _, err := probe.Classify(ip)
	if err != nil {
		return "invalid"
	}
	return family.String()
}

// Launched counts a probe as started.
func (m *Metrics) Launched(target shared.Target) {
	m.probesTotal.WithLabelValues(familyLabel(target.IP)).Inc()
	m.inFlight.Inc()
}

// Observe records the outcome of a launched probe.
func (m *Metrics) Observe(target shared.Target, out probe.Outcome) {
	family := familyLabel(target.IP)
	m.inFlight.Dec()
	m.outcomesTotal.WithLabelValues(family, probe.Reason(out.Err)).Inc()
	m.lastRunTime.Set(float64(time.Now().Unix()))

	if !out.OK() {
		return
	}
	m.rttSeconds.WithLabelValues(family).Observe(out.Measurement.Time)
	m.targetRTT.WithLabelValues(target.IP, target.Location).Set(out.Measurement.Time * 1000)
}

// WriteTextfile writes the current metrics to path for the node exporter
// textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

// Handler serves /metrics and /health.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// Serve exposes Handler on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
