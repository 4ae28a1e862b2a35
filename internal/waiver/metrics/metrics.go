package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the waiver catalog.
type Metrics struct {
	TemplatesCreated  prometheus.Counter
	TemplatesRevised  prometheus.Counter
	TemplatesArchived prometheus.Counter
	CacheLookups      *prometheus.CounterVec
}

// New creates a new Metrics instance with all catalog metrics registered.
func New() *Metrics {
	return &Metrics{
		TemplatesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roster_waiver_templates_created_total",
			Help: "Total number of waiver templates created",
		}),
		TemplatesRevised: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roster_waiver_templates_revised_total",
			Help: "Total number of waiver template revisions",
		}),
		TemplatesArchived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roster_waiver_templates_archived_total",
			Help: "Total number of waiver templates archived",
		}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_waiver_template_cache_lookups_total",
			Help: "Template cache lookups by result (hit, miss, error)",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncrementCreated() {
	if m == nil {
		return
	}
	m.TemplatesCreated.Inc()
}

func (m *Metrics) IncrementRevised() {
	if m == nil {
		return
	}
	m.TemplatesRevised.Inc()
}

func (m *Metrics) IncrementArchived() {
	if m == nil {
		return
	}
	m.TemplatesArchived.Inc()
}

func (m *Metrics) ObserveCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}
