package prometheus

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DefaultRegistry is the default Prometheus registry
	DefaultRegistry = prometheus.NewRegistry()

	// DefaultRegisterer is the default Prometheus registerer
	DefaultRegisterer = prometheus.WrapRegistererWith(prometheus.Labels{"service": "jvm"}, DefaultRegistry)

	// Metrics collection
	metricsOnce sync.Once
	metrics     *Metrics
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Interpreter metrics
	InstructionsTotal  *prometheus.CounterVec
	InvocationsTotal   *prometheus.CounterVec
	InvocationDuration *prometheus.HistogramVec
	AbruptCompletions  *prometheus.CounterVec
	CallDepth          prometheus.Gauge

	// Heap metrics
	HeapAllocationsTotal *prometheus.CounterVec
	HeapReleasesTotal    prometheus.Counter
	HeapLiveReferences   prometheus.Gauge
	HeapLeakedReferences prometheus.Counter

	// Class loading metrics
	ClassLoadsTotal   *prometheus.CounterVec
	ClassLoadDuration *prometheus.HistogramVec

	// Class archive pool metrics
	StoreConnectionsOpen  prometheus.Gauge
	StoreConnectionsIdle  prometheus.Gauge
	StoreConnectionsInUse prometheus.Gauge
	StoreQueryDuration    *prometheus.HistogramVec
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = NewMetrics(DefaultRegisterer)
	})
	return metrics
}

// NewMetrics creates a new metrics collection
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		InstructionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jvm_instructions_total",
				Help: "Total number of executed instructions",
			},
			[]string{"family"},
		),
		InvocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jvm_invocations_total",
				Help: "Total number of top-level invocations",
			},
			[]string{"result"}, // result: ok, error
		),
		InvocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jvm_invocation_duration_seconds",
				Help:    "Top-level invocation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		),
		AbruptCompletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jvm_abrupt_completions_total",
				Help: "Total number of abrupt completions by error kind",
			},
			[]string{"kind"},
		),
		CallDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jvm_call_depth",
				Help: "Current interpreter call depth",
			},
		),

		HeapAllocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jvm_heap_allocations_total",
				Help: "Total number of heap allocations by object kind",
			},
			[]string{"kind"},
		),
		HeapReleasesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jvm_heap_releases_total",
				Help: "Total number of released references",
			},
		),
		HeapLiveReferences: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jvm_heap_live_references",
				Help: "Number of live heap references",
			},
		),
		HeapLeakedReferences: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jvm_heap_leaked_references_total",
				Help: "Program references still outstanding at deinitialization",
			},
		),

		ClassLoadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jvm_class_loads_total",
				Help: "Total number of class loads by status",
			},
			[]string{"source", "status"},
		),
		ClassLoadDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jvm_class_load_duration_seconds",
				Help:    "Class load duration in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"source"},
		),

		StoreConnectionsOpen: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jvm_store_connections_open",
				Help: "Number of open class store connections",
			},
		),
		StoreConnectionsIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jvm_store_connections_idle",
				Help: "Number of idle class store connections",
			},
		),
		StoreConnectionsInUse: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "jvm_store_connections_in_use",
				Help: "Number of class store connections in use",
			},
		),
		StoreQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jvm_store_query_duration_seconds",
				Help:    "Class store query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"}, // operation: get, put, delete, list
		),
	}
}

// Record methods are no-ops on a nil *Metrics.

// RecordInstruction counts one executed instruction
func (m *Metrics) RecordInstruction(family string) {
	if m == nil {
		return
	}
	m.InstructionsTotal.WithLabelValues(family).Inc()
}

// RecordInvocation records a finished top-level invocation
func (m *Metrics) RecordInvocation(err error, duration time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.InvocationsTotal.WithLabelValues(result).Inc()
	m.InvocationDuration.WithLabelValues(result).Observe(duration.Seconds())
}

// RecordAbruptCompletion counts an abrupt completion by error kind
func (m *Metrics) RecordAbruptCompletion(kind string) {
	if m == nil {
		return
	}
	m.AbruptCompletions.WithLabelValues(kind).Inc()
}

// RecordAllocation counts an allocation and updates the live gauge
func (m *Metrics) RecordAllocation(kind string, live int) {
	if m == nil {
		return
	}
	m.HeapAllocationsTotal.WithLabelValues(kind).Inc()
	m.HeapLiveReferences.Set(float64(live))
}

// RecordRelease counts a release and updates the live gauge
func (m *Metrics) RecordRelease(live int) {
	if m == nil {
		return
	}
	m.HeapReleasesTotal.Inc()
	m.HeapLiveReferences.Set(float64(live))
}

// RecordClassLoad records a class load attempt
func (m *Metrics) RecordClassLoad(source, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ClassLoadsTotal.WithLabelValues(source, status).Inc()
	m.ClassLoadDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// UpdateStorePool updates class store pool metrics
func (m *Metrics) UpdateStorePool(open, idle, inUse int) {
	if m == nil {
		return
	}
	m.StoreConnectionsOpen.Set(float64(open))
	m.StoreConnectionsIdle.Set(float64(idle))
	m.StoreConnectionsInUse.Set(float64(inUse))
}

// RecordStoreQuery records a class store query
func (m *Metrics) RecordStoreQuery(operation string, duration time.Duration) {
	if m == nil {
		return
	}
	m.StoreQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetCallDepth reports the current interpreter call depth
func (m *Metrics) SetCallDepth(depth int) {
	if m == nil {
		return
	}
	m.CallDepth.Set(float64(depth))
}

// RecordLeaks counts program references left at deinitialization
func (m *Metrics) RecordLeaks(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.HeapLeakedReferences.Add(float64(n))
}
