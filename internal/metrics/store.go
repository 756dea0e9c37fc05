package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cellprobe"

// Feed message outcomes.
const (
	FeedApplied   = "applied"
	FeedIgnored   = "ignored"
	FeedMalformed = "malformed"
)

// Probe outcomes.
const (
	ProbeSucceeded        = "succeeded"
	ProbeExecutionFailed  = "execution_failed"
	ProbeParseFailed      = "parse_failed"
	ProbeInterfaceChanged = "interface_changed"
	ProbeCancelled        = "cancelled"
)

// Store owns a private Prometheus registry with the run's telemetry. A run is
// short-lived, so the registry is exported either over HTTP while running or
// as a textfile once the run ends.
type Store struct {
	registry *prometheus.Registry

	feedMessages      *prometheus.CounterVec
	collectorRestarts prometheus.Counter
	locationFixes     prometheus.Gauge
	state             *prometheus.GaugeVec
	probeOutcomes     *prometheus.CounterVec
	probeDuration     prometheus.Gauge
	sinkFailures      *prometheus.CounterVec
	ready             prometheus.Gauge
	notReady          *prometheus.CounterVec
	states            []string
}

// NewStore registers all collectors. states lists the supervisor states that
// the state gauge reports on.
func NewStore(states ...string) *Store {
	s := &Store{
		registry: prometheus.NewRegistry(),
		feedMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_messages_total",
			Help:      "Metadata feed messages received, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		collectorRestarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collector_restarts_total",
			Help:      "Number of times the metadata collector was restarted after dying.",
		}),
		locationFixes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "location_fixes",
			Help:      "Location fixes collected during this run.",
		}),
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "supervisor_state",
			Help:      "Current supervisor state (1 for the active state).",
		}, []string{"state"}),
		probeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_attempts_total",
			Help:      "Probe attempts by outcome.",
		}, []string{"outcome"}),
		probeDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Wall-clock duration of the last probe attempt.",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Result sink writes that failed, by sink.",
		}, []string{"sink"}),
		ready: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "Whether modem metadata, location and interface were ready at the last evaluation.",
		}),
		notReady: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "not_ready_evaluations_total",
			Help:      "Readiness evaluations that failed, by category.",
		}, []string{"category"}),
		states: append([]string(nil), states...),
	}
	s.registry.MustRegister(
		s.feedMessages,
		s.collectorRestarts,
		s.locationFixes,
		s.state,
		s.probeOutcomes,
		s.probeDuration,
		s.sinkFailures,
		s.ready,
		s.notReady,
	)
	for _, st := range s.states {
		s.state.WithLabelValues(st).Set(0)
	}
	return s
}

func (s *Store) ObserveFeedMessage(topic, outcome string) {
	s.feedMessages.WithLabelValues(topic, outcome).Inc()
}

func (s *Store) ObserveLocationCount(n int) {
	s.locationFixes.Set(float64(n))
}

func (s *Store) IncCollectorRestarts() {
	s.collectorRestarts.Inc()
}

func (s *Store) ObserveState(state string) {
	for _, st := range s.states {
		if st != state {
			s.state.WithLabelValues(st).Set(0)
		}
	}
	s.state.WithLabelValues(state).Set(1)
}

func (s *Store) ObserveProbe(outcome string, elapsed time.Duration) {
	s.probeOutcomes.WithLabelValues(outcome).Inc()
	s.probeDuration.Set(elapsed.Seconds())
}

func (s *Store) IncSinkFailures(sink string) {
	s.sinkFailures.WithLabelValues(sink).Inc()
}

func (s *Store) ObserveReadiness(ready bool, categories []string) {
	if ready {
		s.ready.Set(1)
		return
	}
	s.ready.Set(0)
	for _, c := range categories {
		s.notReady.WithLabelValues(c).Inc()
	}
}

func (s *Store) Gatherer() prometheus.Gatherer {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (s *Store) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		return fmt.Errorf("write metrics textfile %q: %w", path, err)
	}
	return nil
}
