package config

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem found in a configuration. It is fatal
// at startup: no worker may be spawned from an invalid configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Validate checks that every field the supervisor and its workers rely on is
// populated.
func (c Config) Validate() error {
	var problems []string
	require := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	require(strings.TrimSpace(c.Identity.GUID) != "", "guid is required")
	require(strings.TrimSpace(c.Identity.NodeID) != "", "nodeid is required")
	require(strings.TrimSpace(c.Identity.DataID) != "", "dataid or script is required")

	require(strings.TrimSpace(c.Experiment.Operator) != "", "operator is required")
	require(strings.TrimSpace(c.Experiment.URL) != "", "url is required")
	require(c.Experiment.Size > 0, "size must be positive, got %d", c.Experiment.Size)
	require(c.Experiment.Time > 0, "time must be positive, got %s", c.Experiment.Time)

	require(c.Supervision.MetaGrace > 0, "meta_grace must be positive, got %s", c.Supervision.MetaGrace)
	require(c.Supervision.ExpGrace >= 0, "exp_grace must not be negative, got %s", c.Supervision.ExpGrace)
	require(c.Supervision.PollInterval > 0, "meta_interval_check must be positive, got %s", c.Supervision.PollInterval)
	require(c.Supervision.TerminateGrace >= 0, "terminate_grace must not be negative, got %s", c.Supervision.TerminateGrace)

	require(strings.TrimSpace(c.Feed.Address) != "", "zmqport is required")
	require(strings.TrimSpace(c.Feed.ModemTopic) != "", "modem_metadata_topic is required")
	require(strings.TrimSpace(c.Feed.LocationTopic) != "", "gps_metadata_topic is required")
	if c.Feed.ModemTopic != "" && c.Feed.ModemTopic == c.Feed.LocationTopic {
		problems = append(problems, "modem_metadata_topic and gps_metadata_topic must differ")
	}

	require(strings.TrimSpace(c.Output.ResultDir) != "", "resultdir is required")
	if c.Output.InfluxDB.Enabled() {
		require(c.Output.InfluxDB.Bucket != "", "influxdb.bucket is required when influxdb.url is set")
		require(c.Output.InfluxDB.Org != "", "influxdb.org is required when influxdb.url is set")
	}
	if c.Output.Postgres.Enabled() {
		require(validIdentifier(c.Output.Postgres.Table), "postgres.table %q is not a valid identifier", c.Output.Postgres.Table)
	}

	v := c.Observability.Verbosity
	require(v >= 0 && v <= 3, "verbosity must be between 0 and 3, got %d", v)

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
