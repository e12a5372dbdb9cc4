package metrics

import "github.com/prometheus/client_golang/prometheus"

// CompositionMetrics exposes counters/histograms for prescription rendering.
type CompositionMetrics struct {
	compositions   *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	logoDegraded   *prometheus.CounterVec
	persisted      *prometheus.CounterVec
	staleDiscarded prometheus.Counter
	logoUploads    *prometheus.CounterVec
	templateSaves  *prometheus.CounterVec
}

func NewCompositionMetrics(reg prometheus.Registerer) *CompositionMetrics {
	m := &CompositionMetrics{
		compositions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicrx",
			Subsystem: "compose",
			Name:      "total",
			Help:      "Total compositions by target and outcome",
		}, []string{"target", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinicrx",
			Subsystem: "compose",
			Name:      "latency_seconds",
			Help:      "Latency of composition including image loads",
			Buckets:   prometheus.DefBuckets,
		}, []string{"target"}),
		logoDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicrx",
			Subsystem: "compose",
			Name:      "logo_degraded_total",
			Help:      "Compositions that dropped an unreachable logo",
		}, []string{"target"}),
		persisted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicrx",
			Subsystem: "prescriptions",
			Name:      "persist_total",
			Help:      "Prescription persistence attempts by outcome",
		}, []string{"outcome"}),
		staleDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinicrx",
			Subsystem: "prescriptions",
			Name:      "stale_render_discarded_total",
			Help:      "Rendered artifacts dropped because a newer render superseded them",
		}),
		logoUploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicrx",
			Subsystem: "templates",
			Name:      "logo_upload_total",
			Help:      "Logo uploads by outcome",
		}, []string{"outcome"}),
		templateSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinicrx",
			Subsystem: "templates",
			Name:      "changes_total",
			Help:      "Header and footer saves and resets by slot",
		}, []string{"kind", "action"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.compositions, m.latency, m.logoDegraded, m.persisted, m.staleDiscarded, m.logoUploads, m.templateSaves)
	return m
}

func (m *CompositionMetrics) ObserveComposition(target, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.compositions.WithLabelValues(target, outcome).Inc()
	m.latency.WithLabelValues(target).Observe(seconds)
}

func (m *CompositionMetrics) ObserveLogoDegraded(target string) {
	if m == nil {
		return
	}
	m.logoDegraded.WithLabelValues(target).Inc()
}

func (m *CompositionMetrics) ObservePersist(outcome string) {
	if m == nil {
		return
	}
	m.persisted.WithLabelValues(outcome).Inc()
}

func (m *CompositionMetrics) ObserveStaleDiscarded() {
	if m == nil {
		return
	}
	m.staleDiscarded.Inc()
}

func (m *CompositionMetrics) ObserveLogoUpload(outcome string) {
	if m == nil {
		return
	}
	m.logoUploads.WithLabelValues(outcome).Inc()
}

// ObserveTemplateChange counts a header or footer change. action is "save"
// or "reset".
func (m *CompositionMetrics) ObserveTemplateChange(kind, action string) {
	if m == nil {
		return
	}
	m.templateSaves.WithLabelValues(kind, action).Inc()
}
