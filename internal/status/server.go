// Package status serves the run's health, readiness, metrics and state over
// HTTP while the run is in progress.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/cellprobehq/agent/internal/events"
	"github.com/cellprobehq/agent/internal/health"
	"github.com/cellprobehq/agent/internal/logging"
	"github.com/cellprobehq/agent/internal/metastate"
	"github.com/cellprobehq/agent/pkg/types"
)

const shutdownTimeout = 3 * time.Second

// RunState exposes the supervisor's progress.
type RunState interface {
	StateName() string
	Interface() string
}

type Dependencies struct {
	Logger  logrus.FieldLogger
	Metrics http.Handler
	Health  *health.Checker
	Store   *metastate.Store
	// Events, when set, backs the recent events list of /state.
	Events *events.Buffer
	Run     RunState
}

// StateView is the body of /state.
type StateView struct {
	State         string            `json:"state"`
	Interface     string            `json:"interface,omitempty"`
	Modem         map[string]any    `json:"modem"`
	LocationCount int               `json:"location_count"`
	LastLocation  types.LocationFix `json:"last_location,omitempty"`
	Events        []types.Event     `json:"events,omitempty"`
}

// NewRouter builds the status routes. Routes whose dependency is missing are
// not registered.
func NewRouter(deps Dependencies) *mux.Router {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)
	r.HandleFunc("/readyz", readyHandler(deps)).Methods(http.MethodGet)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	if deps.Store != nil {
		r.HandleFunc("/state", stateHandler(deps)).Methods(http.MethodGet)
	}
	return r
}

func readyHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Health == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		report := deps.Health.Evaluate()
		if !report.Ready {
			if wantsJSON(r) {
				writeJSON(w, http.StatusServiceUnavailable, report, deps.Logger)
				return
			}
			http.Error(w, strings.Join(report.Reasons, "; "), http.StatusServiceUnavailable)
			return
		}
		if wantsJSON(r) {
			writeJSON(w, http.StatusOK, report, deps.Logger)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func stateHandler(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap := deps.Store.Snapshot()
		view := StateView{
			Modem:         snap.Modem,
			LocationCount: snap.LocationCount,
			LastLocation:  snap.LastLocation,
		}
		if deps.Events != nil {
			view.Events = deps.Events.Recent()
		}
		if deps.Run != nil {
			view.State = deps.Run.StateName()
			view.Interface = deps.Run.Interface()
		}
		writeJSON(w, http.StatusOK, view, deps.Logger)
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

func writeJSON(w http.ResponseWriter, code int, body any, logger logrus.FieldLogger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Warn("encode status response failed")
	}
}

// Run serves the status routes on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, deps Dependencies) error {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		deps.Logger.WithField("addr", addr).Info("status endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
