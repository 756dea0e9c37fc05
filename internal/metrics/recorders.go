package metrics

import "time"

type FeedRecorder interface {
	ObserveFeedMessage(topic, outcome string)
	ObserveLocationCount(n int)
}

type NoopFeedRecorder struct{}

func (NoopFeedRecorder) ObserveFeedMessage(topic, outcome string) {}
func (NoopFeedRecorder) ObserveLocationCount(n int)              {}

type ProbeRecorder interface {
	ObserveProbe(outcome string, elapsed time.Duration)
}

type NoopProbeRecorder struct{}

func (NoopProbeRecorder) ObserveProbe(outcome string, elapsed time.Duration) {}

type SinkRecorder interface {
	IncSinkFailures(sink string)
}

type NoopSinkRecorder struct{}

func (NoopSinkRecorder) IncSinkFailures(sink string) {}

type SupervisorRecorder interface {
	ObserveState(state string)
	IncCollectorRestarts()
}

type NoopSupervisorRecorder struct{}

func (NoopSupervisorRecorder) ObserveState(state string) {}
func (NoopSupervisorRecorder) IncCollectorRestarts()     {}

type HealthRecorder interface {
	ObserveReadiness(ready bool, categories []string)
}

type NoopHealthRecorder struct{}

func (NoopHealthRecorder) ObserveReadiness(ready bool, categories []string) {}

var (
	_ FeedRecorder       = (*Store)(nil)
	_ ProbeRecorder      = (*Store)(nil)
	_ SinkRecorder       = (*Store)(nil)
	_ HealthRecorder     = (*Store)(nil)
	_ SupervisorRecorder = (*Store)(nil)
)
