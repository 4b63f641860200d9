package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Calls         *prometheus.CounterVec
	CallDuration  prometheus.Histogram
	PersistErrors prometheus.Counter
	WSListeners   prometheus.Gauge
	Broadcasts    *prometheus.CounterVec
	StoreBackend  *prometheus.GaugeVec
	ModuleReloads prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Dispatched calls by module and outcome.",
		}, []string{"module", "outcome"}),
		CallDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_ms",
			Help:      "Time from parse to result in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}),
		PersistErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persist_errors_total",
			Help:      "Call records that could not be saved.",
		}),
		WSListeners: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_listeners",
			Help:      "Connected websocket listeners.",
		}),
		Broadcasts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Per-listener broadcast sends by result.",
		}, []string{"result"}),
		StoreBackend: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_backend_info",
			Help:      "Selected call store backend (value is always 1).",
		}, []string{"backend"}),
		ModuleReloads: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "module_reloads_total",
			Help:      "Module directory rescans triggered by filesystem events.",
		}),
	}
}

func (m *Metrics) ObserveCall(module, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	m.Calls.WithLabelValues(module, outcome).Inc()
	m.CallDuration.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) IncPersistError() {
	if m == nil {
		return
	}
	m.PersistErrors.Inc()
}

func (m *Metrics) SetListeners(n int) {
	if m == nil {
		return
	}
	m.WSListeners.Set(float64(n))
}

func (m *Metrics) ObserveBroadcast(result string) {
	if m == nil {
		return
	}
	m.Broadcasts.WithLabelValues(result).Inc()
}

func (m *Metrics) IncModuleReload() {
	if m == nil {
		return
	}
	m.ModuleReloads.Inc()
}

func (m *Metrics) SetStoreBackend(name string) {
	if m == nil {
		return
	}
	m.StoreBackend.Reset()
	m.StoreBackend.WithLabelValues(name).Set(1)
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
