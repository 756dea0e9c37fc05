package supervisor

import "errors"

type State int32

const (
	StateIdle State = iota
	StateAwaitingMetadata
	StateRunning
	StateCompleted
	StateAborted
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateAwaitingMetadata: "awaiting_metadata",
	StateRunning:          "running",
	StateCompleted:        "completed",
	StateAborted:          "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// StateNames lists every state label, in lifecycle order.
func StateNames() []string {
	return append([]string(nil), stateNames[:]...)
}

var (
	// ErrMetadataTimeout: no fresh modem metadata with a location fix
	// arrived within the metadata grace period.
	ErrMetadataTimeout = errors.New("metadata not ready within grace period")
	// ErrInterfaceLost: the probe interface went down or its metadata went
	// stale while the probe was running.
	ErrInterfaceLost = errors.New("interface went down during the probe")
	// ErrProbeTimeout: the probe outlived its time budget.
	ErrProbeTimeout = errors.New("probe exceeded its time budget")
	// ErrInterrupted: the run was cancelled from outside.
	ErrInterrupted = errors.New("run interrupted")
)
