package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"k8s.io/utils/clock"

	"github.com/cellprobehq/agent/internal/config"
	"github.com/cellprobehq/agent/internal/events"
	"github.com/cellprobehq/agent/internal/feed"
	"github.com/cellprobehq/agent/internal/health"
	"github.com/cellprobehq/agent/internal/logging"
	"github.com/cellprobehq/agent/internal/metastate"
	"github.com/cellprobehq/agent/internal/metrics"
	"github.com/cellprobehq/agent/internal/netif"
	"github.com/cellprobehq/agent/internal/probe"
	"github.com/cellprobehq/agent/internal/sink"
	"github.com/cellprobehq/agent/internal/status"
	"github.com/cellprobehq/agent/internal/supervisor"
)

type runFlags struct {
	verify     verifyFlags
	curlBinary string
}

func (f *runFlags) register(cmd *cobra.Command) {
	f.verify.register(cmd)
	cmd.Flags().StringVar(&f.curlBinary, "curl", "curl", "curl binary used for the download")
}

// runE is shared by `run` and the bare root command, which is the container
// entrypoint.
func runE(opts *rootOptions, flags *runFlags) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := loadConfig(cmd, opts, flags.verify)
		if err != nil {
			return err
		}
		outcome := runExperiment(cmd.Context(), cfg, flags.curlBinary)
		if code := outcome.ExitCode(); code != exitOK {
			return &exitError{code: code, err: outcome.Err}
		}
		return nil
	}
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Wait for the operator's interface, run the probe and export the result",
		Args:  cobra.NoArgs,
		RunE:  runE(opts, &flags),
	}
	flags.register(cmd)
	return cmd
}

const (
	eventBufferSize = 64
	sinkOpenTimeout = 10 * time.Second
)

func runExperiment(ctx context.Context, cfg config.Config, curlBinary string) supervisor.Outcome {
	logger := logging.New(cfg.Observability.Verbosity).WithFields(logrus.Fields{
		"run":      uuid.NewString(),
		"operator": cfg.Experiment.Operator,
	})
	logger.WithFields(logrus.Fields{
		"guid":   cfg.Identity.GUID,
		"nodeid": cfg.Identity.NodeID,
		"url":    cfg.Experiment.URL,
		"budget": cfg.ProbeBudget().String(),
	}).Info("starting experiment")

	metricsStore := metrics.NewStore(supervisor.StateNames()...)
	eventBuf := events.NewBuffer(eventBufferSize)
	eventRec := events.NewMulti(events.NewLogRecorder(logger), eventBuf)
	clk := clock.RealClock{}
	store := metastate.New()

	checker := health.NewChecker(store, netif.SystemChecker{}, cfg.Supervision.MetaGrace, clk)
	checker.SetMetrics(metricsStore)

	feedCfg := feed.CollectorConfig{
		ModemTopic:    cfg.Feed.ModemTopic,
		LocationTopic: cfg.Feed.LocationTopic,
		Operator:      cfg.Experiment.Operator,
	}
	collector := feed.NewCollector(feedCfg, store, feed.ZMQDialer(cfg.Feed.Address, feedCfg.Topics(), 0), logger)
	collector.SetMetrics(metricsStore)
	collector.SetEventRecorder(eventRec)

	sinks := openSinks(ctx, cfg.Output, logger)
	sinks.SetMetrics(metricsStore)
	defer func() {
		if err := sinks.Close(); err != nil {
			logger.WithError(err).Warn("closing result sinks failed")
		}
	}()

	runner := probe.NewRunner(cfg, store, probe.CurlExecutor{
		Binary:    curlBinary,
		KillGrace: cfg.Supervision.TerminateGrace,
	}, sinks, logger)
	runner.SetClock(clk)
	runner.SetMetrics(metricsStore)
	runner.SetEventRecorder(eventRec)

	sup := supervisor.New(cfg, supervisor.Deps{
		Store:     store,
		Health:    checker,
		Collector: collector,
		Prober:    runner,
		Clock:     clk,
		Logger:    logger,
		Metrics:   metricsStore,
		Events:    eventRec,
	})

	statusCtx, stopStatus := context.WithCancel(ctx)
	var grp errgroup.Group
	if addr := cfg.Observability.StatusListen; addr != "" {
		grp.Go(func() error {
			return status.Run(statusCtx, addr, status.Dependencies{
				Logger:  logger,
				Metrics: metricsStore.Handler(),
				Health:  checker,
				Store:   store,
				Events:  eventBuf,
				Run:     sup,
			})
		})
	}

	outcome := sup.Run(ctx)
	stopStatus()
	if err := grp.Wait(); err != nil {
		logger.WithError(err).Warn("status endpoint failed")
	}

	if path := cfg.Observability.MetricsTextfile; path != "" {
		if err := metricsStore.WriteTextfile(path); err != nil {
			logger.WithError(err).Warn("writing metrics textfile failed")
		}
	}

	log := logger.WithFields(logrus.Fields{
		"state":   outcome.State.String(),
		"elapsed": outcome.Elapsed.String(),
	})
	if outcome.Interface != "" {
		log = log.WithField("interface", outcome.Interface)
	}
	if recent := eventBuf.Recent(); len(recent) > 0 {
		log = log.WithField("events", events.Types(recent))
	}
	switch {
	case outcome.Err != nil:
		log.WithError(outcome.Err).Error("experiment aborted")
	case probe.IsFailure(outcome.ProbeErr):
		log.WithError(outcome.ProbeErr).Warn("finished experiment without a result")
	default:
		log.Info("finished experiment")
	}
	return outcome
}

// openSinks opens the configured sinks. A database that cannot be reached
// within sinkOpenTimeout does not stop the measurement; results still go to
// the remaining sinks.
func openSinks(ctx context.Context, out config.OutputConfig, logger logrus.FieldLogger) *sink.Multi {
	openCtx, cancel := context.WithTimeout(ctx, sinkOpenTimeout)
	defer cancel()
	sinks, err := sink.FromConfig(openCtx, out, logger)
	if err == nil {
		return sinks
	}
	logger.WithError(err).Error("postgres sink unavailable, continuing without it")
	out.Postgres.DSN = ""
	sinks, err = sink.FromConfig(openCtx, out, logger)
	if err != nil {
		logger.WithError(err).Error("opening result sinks failed")
		return sink.NewMulti()
	}
	return sinks
}
