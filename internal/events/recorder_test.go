package events

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cellprobehq/agent/pkg/types"
)

func TestMultiFansOut(t *testing.T) {
	a, b := NewBuffer(4), NewBuffer(4)
	m := NewMulti(a, nil, b)
	m.Record(types.Event{Type: types.EventProbeFinished})

	if got := len(a.Recent()); got != 1 {
		t.Fatalf("expected 1 event in first buffer, got %d", got)
	}
	if got := len(b.Recent()); got != 1 {
		t.Fatalf("expected 1 event in second buffer, got %d", got)
	}
}

func TestBufferDropsOldest(t *testing.T) {
	buf := NewBuffer(2)
	buf.Record(types.Event{Type: types.EventStateChange})
	buf.Record(types.Event{Type: types.EventCollectorRestart})
	buf.Record(types.Event{Type: types.EventProbeFinished})

	got := buf.Recent()
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	if got[0].Type != types.EventCollectorRestart || got[1].Type != types.EventProbeFinished {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestBufferRecentKeepsEvents(t *testing.T) {
	buf := NewBuffer(4)
	buf.Record(types.Event{Type: types.EventStateChange})

	recent := buf.Recent()
	if len(recent) != 1 {
		t.Fatalf("expected 1 event, got %d", len(recent))
	}
	recent[0].Type = types.EventSinkFailure
	if got := buf.Recent(); len(got) != 1 || got[0].Type != types.EventStateChange {
		t.Fatalf("buffer mutated or emptied: %+v", got)
	}
}

func TestLogRecorderLevels(t *testing.T) {
	var out bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&out)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})

	rec := NewLogRecorder(logger)
	rec.Record(types.Event{
		Type:      types.EventInterfaceLost,
		Timestamp: time.Unix(10, 0),
		Interface: "op0",
	})
	rec.Record(types.Event{
		Type:   types.EventStateChange,
		Labels: map[string]string{"to": "running"},
	})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %q", out.String())
	}
	if !strings.Contains(lines[0], "level=warning") || !strings.Contains(lines[0], "interface=op0") {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !strings.Contains(lines[1], "level=info") || !strings.Contains(lines[1], "to=running") {
		t.Fatalf("unexpected second line %q", lines[1])
	}
}

func TestTypesSortedAndDistinct(t *testing.T) {
	got := Types([]types.Event{
		{Type: types.EventProbeFinished},
		{Type: types.EventCollectorRestart},
		{Type: types.EventProbeFinished},
	})
	if len(got) != 2 || got[0] != types.EventCollectorRestart || got[1] != types.EventProbeFinished {
		t.Fatalf("unexpected types %v", got)
	}
}
