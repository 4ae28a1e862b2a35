package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for event registration.
type Metrics struct {
	Registrations     *prometheus.CounterVec
	Unregistrations   *prometheus.CounterVec
	Signings          prometheus.Counter
	Reconciliations   prometheus.Counter
	RevisionConflicts *prometheus.CounterVec
	MutationAttempts  *prometheus.HistogramVec
}

// New creates a new Metrics instance with all registration metrics registered.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_registrations_total",
			Help: "Registration attempts by registrant kind and outcome code",
		}, []string{"kind", "outcome"}),
		Unregistrations: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_unregistrations_total",
			Help: "Committed unregistrations by registrant kind",
		}, []string{"kind"}),
		Signings: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roster_waiver_signings_total",
			Help: "Committed waiver signings",
		}),
		Reconciliations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roster_waiver_reconciliations_total",
			Help: "Committed event template set replacements",
		}),
		RevisionConflicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_event_revision_conflicts_total",
			Help: "Conditional writes rejected because the event revision moved",
		}, []string{"operation"}),
		MutationAttempts: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_event_mutation_attempts",
			Help:    "Attempts needed per event mutation, including the final one",
			Buckets: []float64{1, 2, 3, 4, 5, 8},
		}, []string{"operation"}),
	}
}

func (m *Metrics) ObserveRegistration(kind, outcome string) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) IncrementUnregistered(kind string) {
	if m == nil {
		return
	}
	m.Unregistrations.WithLabelValues(kind).Inc()
}

func (m *Metrics) IncrementSigned() {
	if m == nil {
		return
	}
	m.Signings.Inc()
}

func (m *Metrics) IncrementReconciled() {
	if m == nil {
		return
	}
	m.Reconciliations.Inc()
}

func (m *Metrics) IncrementConflict(operation string) {
	if m == nil {
		return
	}
	m.RevisionConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) ObserveAttempts(operation string, attempts int) {
	if m == nil {
		return
	}
	m.MutationAttempts.WithLabelValues(operation).Observe(float64(attempts))
}
