package events

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cellprobehq/agent/pkg/types"
)

type Recorder interface {
	Record(event types.Event)
}

type NoopRecorder struct{}

func (NoopRecorder) Record(event types.Event) {}

type Multi struct {
	recorders []Recorder
}

func NewMulti(recorders ...Recorder) Multi {
	return Multi{recorders: recorders}
}

func (m Multi) Record(event types.Event) {
	for _, rec := range m.recorders {
		if rec != nil {
			rec.Record(event)
		}
	}
}

// LogRecorder writes every event as a structured log entry.
type LogRecorder struct {
	logger logrus.FieldLogger
}

func NewLogRecorder(logger logrus.FieldLogger) LogRecorder {
	return LogRecorder{logger: logger}
}

func (r LogRecorder) Record(event types.Event) {
	if r.logger == nil {
		return
	}
	fields := logrus.Fields{"event": string(event.Type)}
	if !event.Timestamp.IsZero() {
		fields["event_ts"] = event.Timestamp
	}
	if event.Interface != "" {
		fields["interface"] = event.Interface
	}
	for k, v := range event.Labels {
		fields[k] = v
	}
	for k, v := range event.Details {
		fields[k] = v
	}
	entry := r.logger.WithFields(fields)
	if levelFor(event.Type) == logrus.WarnLevel {
		entry.Warn(summary(event))
		return
	}
	entry.Info(summary(event))
}

func levelFor(t types.EventType) logrus.Level {
	switch t {
	case types.EventCollectorRestart, types.EventFeedDrop, types.EventMetadataTimeout,
		types.EventInterfaceLost, types.EventProbeTimeout, types.EventSinkFailure:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

func summary(event types.Event) string {
	switch event.Type {
	case types.EventStateChange:
		return "supervisor state changed"
	case types.EventCollectorRestart:
		return "metadata collector restarted"
	case types.EventFeedDrop:
		return "feed message dropped"
	case types.EventMetadataTimeout:
		return "metadata did not become ready in time"
	case types.EventInterfaceLost:
		return "probe interface lost"
	case types.EventProbeTimeout:
		return "probe exceeded its time budget"
	case types.EventProbeFinished:
		return "probe finished"
	case types.EventSinkFailure:
		return "result sink failed"
	}
	return string(event.Type)
}

// Buffer keeps the most recent events in memory for the status endpoint and
// the end-of-run summary.
type Buffer struct {
	mu     sync.Mutex
	limit  int
	events []types.Event
}

// NewBuffer returns a Buffer that retains at most limit events.
func NewBuffer(limit int) *Buffer {
	if limit <= 0 {
		limit = 64
	}
	return &Buffer{limit: limit}
}

func (b *Buffer) Record(event types.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == b.limit {
		// drop the oldest
		copy(b.events, b.events[1:])
		b.events = b.events[:len(b.events)-1]
	}
	b.events = append(b.events, event)
}

// Recent returns a copy of the buffered events in arrival order.
func (b *Buffer) Recent() []types.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Event, len(b.events))
	copy(out, b.events)
	return out
}

// Types returns the sorted set of distinct event types in events.
func Types(events []types.Event) []types.EventType {
	seen := make(map[types.EventType]struct{}, len(events))
	for _, ev := range events {
		seen[ev.Type] = struct{}{}
	}
	out := make([]types.EventType, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
