package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. It satisfies conversions.Recorder.
type Metrics struct {
	registry *prometheus.Registry

	conversions      *prometheus.CounterVec
	synthesisLatency *prometheus.HistogramVec
	audioBytes       prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpLatency      *prometheus.HistogramVec
}

// NewMetrics registers collectors on a fresh registry. livePlayback reports the
// number of playback references currently held.
func NewMetrics(livePlayback func() int) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		conversions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "texttones_conversions_total",
			Help: "Conversions finished, by outcome",
		}, []string{"outcome"}),
		synthesisLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "texttones_synthesis_latency_seconds",
			Help:    "Synthesis call latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}, []string{"status"}),
		audioBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "texttones_audio_bytes_total",
			Help: "Total synthesized audio bytes",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "texttones_http_requests_total",
			Help: "HTTP requests served, by route and status code",
		}, []string{"route", "code"}),
		httpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "texttones_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	if livePlayback != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "texttones_playback_references",
			Help: "Playback references currently held",
		}, func() float64 { return float64(livePlayback()) })
	}
	return m
}

// ObserveSynthesis records one synthesis call.
func (m *Metrics) ObserveSynthesis(elapsed time.Duration, audioBytes int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.synthesisLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	if err == nil {
		m.audioBytes.Add(float64(audioBytes))
	}
}

// ConversionFinished counts a finished conversion.
func (m *Metrics) ConversionFinished(outcome string) {
	m.conversions.WithLabelValues(outcome).Inc()
}

// ObserveRequest records a served HTTP request.
func (m *Metrics) ObserveRequest(route string, code int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.httpLatency.WithLabelValues(route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
