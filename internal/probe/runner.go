package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/cellprobehq/agent/internal/config"
	"github.com/cellprobehq/agent/internal/events"
	"github.com/cellprobehq/agent/internal/logging"
	"github.com/cellprobehq/agent/internal/metastate"
	"github.com/cellprobehq/agent/internal/metrics"
	"github.com/cellprobehq/agent/pkg/types"
)

// Sink receives finished results.
type Sink interface {
	Save(ctx context.Context, result types.ProbeResult) error
}

// Runner performs one probe on a fixed interface and hands the geotagged
// result to the sink.
type Runner struct {
	cfg      config.Config
	store    *metastate.Store
	executor Executor
	sink     Sink
	logger   logrus.FieldLogger
	clock    clock.PassiveClock
	metrics  metrics.ProbeRecorder
	events   events.Recorder
}

func NewRunner(cfg config.Config, store *metastate.Store, executor Executor, sink Sink, logger logrus.FieldLogger) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{
		cfg:      cfg,
		store:    store,
		executor: executor,
		sink:     sink,
		logger:   logger.WithField("component", "runner"),
		clock:    clock.RealClock{},
		metrics:  metrics.NoopProbeRecorder{},
		events:   events.NoopRecorder{},
	}
}

func (r *Runner) SetClock(c clock.PassiveClock) {
	if c != nil {
		r.clock = c
	}
}

func (r *Runner) SetMetrics(rec metrics.ProbeRecorder) {
	if rec == nil {
		rec = metrics.NoopProbeRecorder{}
	}
	r.metrics = rec
}

func (r *Runner) SetEventRecorder(rec events.Recorder) {
	if rec == nil {
		rec = events.NoopRecorder{}
	}
	r.events = rec
}

// Request builds the collaborator request for ifname.
func (r *Runner) Request(ifname string) Request {
	return Request{
		Interface: ifname,
		URL:       r.cfg.Experiment.URL,
		MaxBytes:  r.cfg.Experiment.Size.Int64(),
		MaxTime:   r.cfg.Experiment.Time,
	}
}

// Run executes the probe on ifname. Failures are logged and returned; none
// of them is fatal to the caller. Sink failures are logged only.
func (r *Runner) Run(ctx context.Context, ifname string) (types.ProbeResult, error) {
	log := r.logger.WithField("interface", ifname)
	marker := r.store.LocationCount()
	started := r.clock.Now()

	out, err := r.executor.Execute(ctx, r.Request(ifname))
	elapsed := r.clock.Since(started)
	if err != nil {
		if ctx.Err() != nil {
			r.metrics.ObserveProbe(metrics.ProbeCancelled, elapsed)
			log.Info("probe cancelled")
			return types.ProbeResult{}, ctx.Err()
		}
		r.metrics.ObserveProbe(metrics.ProbeExecutionFailed, elapsed)
		log.WithError(err).Error("execution or parsing failed")
		return types.ProbeResult{}, err
	}

	if current := r.store.InterfaceName(); current != ifname {
		r.metrics.ObserveProbe(metrics.ProbeInterfaceChanged, elapsed)
		log.WithField("current", current).Error("interface has changed during the probe, discarding result")
		return types.ProbeResult{}, fmt.Errorf("%w: %s -> %s", ErrInterfaceChanged, ifname, current)
	}
	trail := r.store.LocationsFrom(marker)

	m, err := ParseMetrics(out)
	if err != nil {
		r.metrics.ObserveProbe(metrics.ProbeParseFailed, elapsed)
		log.WithError(err).Error("execution or parsing failed")
		return types.ProbeResult{}, err
	}

	result := r.assemble(ifname, m, trail)
	r.metrics.ObserveProbe(metrics.ProbeSucceeded, elapsed)
	log.WithFields(logrus.Fields{
		"host":     result.Host,
		"bytes":    result.Bytes,
		"speed":    result.Speed,
		"download": result.DownloadTime,
		"fixes":    len(result.GPSPositions),
	}).Debug("probe result")

	if r.sink != nil {
		if err := r.sink.Save(ctx, result); err != nil {
			log.WithError(err).Warn("saving result failed")
			r.events.Record(types.Event{
				Type:      types.EventSinkFailure,
				Timestamp: r.clock.Now(),
				Interface: ifname,
				Details:   map[string]any{"error": err.Error()},
			})
		}
	}
	r.events.Record(types.Event{
		Type:      types.EventProbeFinished,
		Timestamp: r.clock.Now(),
		Interface: ifname,
		Details: map[string]any{
			"bytes":   result.Bytes,
			"elapsed": elapsed.String(),
		},
	})
	log.Info("finished probe")
	return result, nil
}

func (r *Runner) assemble(ifname string, m types.ProbeMetrics, trail []types.LocationFix) types.ProbeResult {
	modem := r.store.Modem()
	if trail == nil {
		trail = []types.LocationFix{}
	}
	now := r.clock.Now()
	return types.ProbeResult{
		ProbeMetrics:   m,
		GUID:           r.cfg.Identity.GUID,
		DataID:         r.cfg.Identity.DataID,
		DataVersion:    r.cfg.Identity.DataVersion,
		NodeID:         r.cfg.Identity.NodeID,
		SequenceNumber: 1,
		Timestamp:      float64(now.UnixNano()) / float64(time.Second),
		ICCID:          modem.String(metastate.FieldICCID),
		InterfaceName:  ifname,
		Operator:       modem.String(metastate.FieldOperator),
		DownloadTime:   m.TotalTime - m.SetupTime,
		GPSPositions:   trail,
	}
}

// IsFailure reports whether err is one of the runner's non-fatal outcomes.
func IsFailure(err error) bool {
	return errors.Is(err, ErrExecution) || errors.Is(err, ErrParse) || errors.Is(err, ErrInterfaceChanged)
}
