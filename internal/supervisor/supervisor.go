// Package supervisor drives one measurement run: wait for usable modem
// metadata, run the probe on the chosen interface and abort when the
// interface disappears or the probe overruns.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/cellprobehq/agent/internal/config"
	"github.com/cellprobehq/agent/internal/events"
	"github.com/cellprobehq/agent/internal/health"
	"github.com/cellprobehq/agent/internal/logging"
	"github.com/cellprobehq/agent/internal/metastate"
	"github.com/cellprobehq/agent/internal/metrics"
	"github.com/cellprobehq/agent/internal/worker"
	"github.com/cellprobehq/agent/pkg/types"
)

const (
	collectorName = "collector"
	runnerName    = "runner"
)

// Collector keeps the shared state current until ctx is cancelled.
type Collector interface {
	Run(ctx context.Context) error
}

// Prober performs the measurement on one interface.
type Prober interface {
	Run(ctx context.Context, ifname string) (types.ProbeResult, error)
}

type Deps struct {
	Store     *metastate.Store
	Health    *health.Checker
	Collector Collector
	Prober    Prober
	Clock     clock.Clock
	Logger    logrus.FieldLogger
	Metrics   metrics.SupervisorRecorder
	Events    events.Recorder
}

// Outcome is the terminal result of a run.
type Outcome struct {
	State     State
	Interface string
	Elapsed   time.Duration
	Err       error
	// ProbeErr is the prober's own error when the run completed. A probe
	// that failed to measure still completes the run.
	ProbeErr error
}

// ExitCode maps the outcome to the process exit status.
func (o Outcome) ExitCode() int {
	if o.State == StateCompleted {
		return 0
	}
	return 1
}

type Supervisor struct {
	cfg       config.Config
	store     *metastate.Store
	health    *health.Checker
	collector Collector
	prober    Prober
	clock     clock.Clock
	logger    logrus.FieldLogger
	metrics   metrics.SupervisorRecorder
	events    events.Recorder
	restarts  *rate.Limiter

	state atomic.Int32
	iface atomic.Value
}

func New(cfg config.Config, deps Deps) *Supervisor {
	s := &Supervisor{
		cfg:       cfg,
		store:     deps.Store,
		health:    deps.Health,
		collector: deps.Collector,
		prober:    deps.Prober,
		clock:     deps.Clock,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		events:    deps.Events,
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	s.logger = s.logger.WithField("component", "supervisor")
	if s.metrics == nil {
		s.metrics = metrics.NoopSupervisorRecorder{}
	}
	if s.events == nil {
		s.events = events.NoopRecorder{}
	}
	if s.health == nil {
		s.health = health.NewChecker(s.store, nil, cfg.Supervision.MetaGrace, s.clock)
	}
	// At most one collector restart per poll interval.
	s.restarts = rate.NewLimiter(rate.Every(cfg.Supervision.PollInterval), 1)
	s.iface.Store("")
	return s
}

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// Interface returns the interface captured for the probe, if any.
func (s *Supervisor) Interface() string {
	return s.iface.Load().(string)
}

// Run executes one lifecycle and returns its terminal outcome. Both workers
// are terminated on every exit path.
func (s *Supervisor) Run(ctx context.Context) Outcome {
	start := s.clock.Now()
	var collector, runner *worker.Handle
	defer func() {
		if stuck := worker.TerminateAll(s.cfg.Supervision.TerminateGrace, runner, collector); len(stuck) > 0 {
			s.logger.WithField("workers", stuck).Warn("workers did not stop within the termination grace")
		}
	}()

	s.transition(StateAwaitingMetadata, nil)
	collector = s.startCollector(ctx)

	ifname, err := s.awaitMetadata(ctx, &collector)
	if err != nil {
		return s.finish(start, StateAborted, "", err)
	}

	s.iface.Store(ifname)
	s.health.WatchInterface(ifname)
	s.transition(StateRunning, logrus.Fields{"interface": ifname})
	runner = worker.Start(ctx, runnerName, func(ctx context.Context) error {
		_, err := s.prober.Run(ctx, ifname)
		return err
	})

	if err := s.supervise(ctx, ifname, &collector, runner); err != nil {
		return s.finish(start, StateAborted, ifname, err)
	}
	out := s.finish(start, StateCompleted, ifname, nil)
	out.ProbeErr = runner.Err()
	return out
}

func (s *Supervisor) awaitMetadata(ctx context.Context, collector **worker.Handle) (string, error) {
	grace := s.cfg.Supervision.MetaGrace
	start := s.clock.Now()
	for {
		if s.health.MetadataReady() {
			return s.store.InterfaceName(), nil
		}
		elapsed := s.clock.Since(start)
		if elapsed >= grace {
			report := s.health.Evaluate()
			s.events.Record(types.Event{
				Type:      types.EventMetadataTimeout,
				Timestamp: s.clock.Now(),
				Details:   map[string]any{"reasons": report.Reasons, "grace": grace.String()},
			})
			return "", fmt.Errorf("%w (%s): %v", ErrMetadataTimeout, grace, report.Reasons)
		}
		s.ensureCollector(ctx, collector)
		s.logger.WithField("elapsed", elapsed.Round(time.Millisecond)).Debug("waiting for modem and location metadata")

		var died <-chan struct{}
		if (*collector).Alive() {
			died = (*collector).Done()
		}
		if err := s.wait(ctx, minDuration(s.cfg.Supervision.PollInterval, grace-elapsed), s.store.Updates(), died); err != nil {
			return "", err
		}
	}
}

func (s *Supervisor) supervise(ctx context.Context, ifname string, collector **worker.Handle, runner *worker.Handle) error {
	budget := s.cfg.ProbeBudget()
	start := s.clock.Now()
	for {
		if !runner.Alive() {
			return nil
		}
		elapsed := s.clock.Since(start)
		if elapsed >= budget {
			s.events.Record(types.Event{
				Type:      types.EventProbeTimeout,
				Timestamp: s.clock.Now(),
				Interface: ifname,
				Details:   map[string]any{"budget": budget.String()},
			})
			return fmt.Errorf("%w (%s)", ErrProbeTimeout, budget)
		}
		if !s.health.InterfaceHealthy(ifname) {
			report := s.health.Evaluate()
			s.events.Record(types.Event{
				Type:      types.EventInterfaceLost,
				Timestamp: s.clock.Now(),
				Interface: ifname,
				Details:   map[string]any{"reasons": report.Reasons},
			})
			return fmt.Errorf("%w: %s", ErrInterfaceLost, ifname)
		}
		s.ensureCollector(ctx, collector)
		s.logger.WithField("elapsed", elapsed.Round(time.Millisecond)).Debug("running probe")

		if err := s.wait(ctx, minDuration(s.cfg.Supervision.PollInterval, budget-elapsed), runner.Done()); err != nil {
			return err
		}
	}
}

// wait sleeps for d on the injected clock, returning early when any of the
// wake channels fires. Only cancellation of ctx is an error.
func (s *Supervisor) wait(ctx context.Context, d time.Duration, wake ...<-chan struct{}) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrInterrupted, err)
	}
	if d <= 0 {
		return nil
	}
	timer := s.clock.NewTimer(d)
	defer timer.Stop()

	var w0, w1 <-chan struct{}
	if len(wake) > 0 {
		w0 = wake[0]
	}
	if len(wake) > 1 {
		w1 = wake[1]
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrInterrupted, ctx.Err())
	case <-timer.C():
	case <-w0:
	case <-w1:
	}
	return nil
}

func (s *Supervisor) startCollector(ctx context.Context) *worker.Handle {
	return worker.Start(ctx, collectorName, s.collector.Run)
}

// ensureCollector restarts a dead collector on the same shared state.
func (s *Supervisor) ensureCollector(ctx context.Context, collector **worker.Handle) {
	if (*collector).Alive() || ctx.Err() != nil {
		return
	}
	if !s.restarts.AllowN(s.clock.Now(), 1) {
		return
	}
	cause := (*collector).Err()
	log := s.logger
	if cause != nil {
		log = log.WithError(cause)
	}
	log.Warn("metadata collector died, restarting")
	s.metrics.IncCollectorRestarts()
	details := map[string]any{}
	if cause != nil {
		details["error"] = cause.Error()
	}
	s.events.Record(types.Event{
		Type:      types.EventCollectorRestart,
		Timestamp: s.clock.Now(),
		Details:   details,
	})
	*collector = s.startCollector(ctx)
}

func (s *Supervisor) transition(to State, fields logrus.Fields) {
	from := State(s.state.Swap(int32(to)))
	s.metrics.ObserveState(to.String())
	s.events.Record(types.Event{
		Type:      types.EventStateChange,
		Timestamp: s.clock.Now(),
		Interface: s.Interface(),
		Labels:    map[string]string{"from": from.String(), "to": to.String()},
	})
	s.logger.WithFields(fields).WithField("state", to.String()).Info("state change")
}

func (s *Supervisor) finish(start time.Time, state State, ifname string, err error) Outcome {
	if err != nil {
		if errors.Is(err, ErrInterrupted) {
			s.logger.WithError(err).Warn("aborting")
		} else {
			s.logger.WithError(err).Error("aborting")
		}
	}
	s.health.WatchInterface("")
	s.transition(state, nil)
	return Outcome{
		State:     state,
		Interface: ifname,
		Elapsed:   s.clock.Since(start),
		Err:       err,
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// StateName is State().String(), for reporting.
func (s *Supervisor) StateName() string {
	return s.State().String()
}
