// Package sink persists finished probe results.
package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cellprobehq/agent/internal/config"
	"github.com/cellprobehq/agent/internal/metrics"
	"github.com/cellprobehq/agent/pkg/types"
)

// Sink stores one result.
type Sink interface {
	Name() string
	Save(ctx context.Context, result types.ProbeResult) error
	Close() error
}

// Multi fans a result out to every sink. A failing sink does not stop the
// others; all failures are joined into the returned error.
type Multi struct {
	sinks   []Sink
	metrics metrics.SinkRecorder
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks, metrics: metrics.NoopSinkRecorder{}}
}

func (m *Multi) SetMetrics(rec metrics.SinkRecorder) {
	if rec == nil {
		rec = metrics.NoopSinkRecorder{}
	}
	m.metrics = rec
}

func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		names = append(names, s.Name())
	}
	return names
}

func (m *Multi) Save(ctx context.Context, result types.ProbeResult) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Save(ctx, result); err != nil {
			m.metrics.IncSinkFailures(s.Name())
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromConfig opens every sink the output section enables. The file sink is
// enabled by a non-empty result directory.
func FromConfig(ctx context.Context, cfg config.OutputConfig, logger logrus.FieldLogger) (*Multi, error) {
	var sinks []Sink
	if cfg.ResultDir != "" {
		sinks = append(sinks, NewFileSink(cfg.ResultDir))
	}
	if cfg.InfluxDB.Enabled() {
		sinks = append(sinks, NewInfluxSink(cfg.InfluxDB))
	}
	if cfg.Postgres.Enabled() {
		pg, err := NewPostgresSink(ctx, cfg.Postgres.DSN, cfg.Postgres.Table)
		if err != nil {
			for _, s := range sinks {
				s.Close()
			}
			return nil, err
		}
		sinks = append(sinks, pg)
	}
	multi := NewMulti(sinks...)
	if logger != nil {
		logger.WithField("sinks", multi.Names()).Debug("result sinks configured")
	}
	return multi, nil
}
