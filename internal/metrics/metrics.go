package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the process counters. All helper methods are nil-safe so
// tests can pass a nil *Metrics and skip registration entirely.
type Metrics struct {
	transitionsTotal   *prometheus.CounterVec
	eventsDroppedTotal *prometheus.CounterVec
	dialsTotal         *prometheus.CounterVec
	callbackAttempts   prometheus.Counter
	callbackDeliveries *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		transitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callgate_transitions_total",
			Help: "Committed call state transitions by target status.",
		}, []string{"status"}),
		eventsDroppedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callgate_events_dropped_total",
			Help: "Switch events dropped without a transition.",
		}, []string{"reason"}),
		dialsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callgate_dials_total",
			Help: "Dial attempts sent to the switch by result.",
		}, []string{"result"}),
		callbackAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "callgate_callback_attempts_total",
			Help: "Individual status callback delivery attempts.",
		}),
		callbackDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "callgate_callback_deliveries_total",
			Help: "Status callback outcomes after retries.",
		}, []string{"result"}),
	}
}

func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) EventDropped(reason string) {
	if m == nil {
		return
	}
	m.eventsDroppedTotal.WithLabelValues(reason).Inc()
}

func (m *Metrics) Dial(result string) {
	if m == nil {
		return
	}
	m.dialsTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) CallbackAttempt() {
	if m == nil {
		return
	}
	m.callbackAttempts.Inc()
}

func (m *Metrics) CallbackDelivered(result string) {
	if m == nil {
		return
	}
	m.callbackDeliveries.WithLabelValues(result).Inc()
}
