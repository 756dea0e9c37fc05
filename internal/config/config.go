package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	envPrefix         = "CELLPROBE"
	envConfigPath     = "CELLPROBE_CONFIG"
	DefaultConfigPath = "/monroe/config"
)

// Config is the experiment configuration. It is built once before any worker
// starts and handed to every component by value.
//
// The file format is the flat JSON document written by the node scheduler;
// the Go struct groups those keys into sections.
type Config struct {
	Identity      IdentityConfig      `mapstructure:",squash" yaml:",inline"`
	Experiment    ExperimentConfig    `mapstructure:",squash" yaml:",inline"`
	Supervision   SupervisionConfig   `mapstructure:",squash" yaml:",inline"`
	Feed          FeedConfig          `mapstructure:",squash" yaml:",inline"`
	Output        OutputConfig        `mapstructure:",squash" yaml:",inline"`
	Observability ObservabilityConfig `mapstructure:",squash" yaml:",inline"`
}

type IdentityConfig struct {
	GUID        string `mapstructure:"guid" yaml:"guid"`
	NodeID      string `mapstructure:"nodeid" yaml:"nodeid"`
	Script      string `mapstructure:"script" yaml:"script"`
	DataID      string `mapstructure:"dataid" yaml:"dataid"`
	DataVersion int    `mapstructure:"dataversion" yaml:"dataversion"`
}

type ExperimentConfig struct {
	Operator string        `mapstructure:"operator" yaml:"operator"`
	URL      string        `mapstructure:"url" yaml:"url"`
	Size     ByteSize      `mapstructure:"size" yaml:"size"`
	Time     time.Duration `mapstructure:"time" yaml:"time"`
}

type SupervisionConfig struct {
	MetaGrace      time.Duration `mapstructure:"meta_grace" yaml:"meta_grace"`
	ExpGrace       time.Duration `mapstructure:"exp_grace" yaml:"exp_grace"`
	PollInterval   time.Duration `mapstructure:"meta_interval_check" yaml:"meta_interval_check"`
	TerminateGrace time.Duration `mapstructure:"terminate_grace" yaml:"terminate_grace"`
}

// ProbeBudget is the wall-clock allowance for a running probe.
func (c Config) ProbeBudget() time.Duration {
	return c.Supervision.ExpGrace + c.Experiment.Time
}

type FeedConfig struct {
	Address       string `mapstructure:"zmqport" yaml:"zmqport"`
	ModemTopic    string `mapstructure:"modem_metadata_topic" yaml:"modem_metadata_topic"`
	LocationTopic string `mapstructure:"gps_metadata_topic" yaml:"gps_metadata_topic"`
}

type OutputConfig struct {
	ResultDir string         `mapstructure:"resultdir" yaml:"resultdir"`
	InfluxDB  InfluxConfig   `mapstructure:"influxdb" yaml:"influxdb"`
	Postgres  PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

type InfluxConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Token  string `mapstructure:"token" yaml:"token"`
	Org    string `mapstructure:"org" yaml:"org"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

func (c InfluxConfig) Enabled() bool { return c.URL != "" }

type PostgresConfig struct {
	DSN   string `mapstructure:"dsn" yaml:"dsn"`
	Table string `mapstructure:"table" yaml:"table"`
}

func (c PostgresConfig) Enabled() bool { return c.DSN != "" }

type ObservabilityConfig struct {
	Verbosity       int    `mapstructure:"verbosity" yaml:"verbosity"`
	StatusListen    string `mapstructure:"status_listen" yaml:"status_listen"`
	MetricsTextfile string `mapstructure:"metrics_textfile" yaml:"metrics_textfile"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("guid", "no.guid.in.config.file")
	v.SetDefault("nodeid", "no.nodeid.in.config.file")
	v.SetDefault("script", "cellprobe/experiment")
	v.SetDefault("dataid", "")
	v.SetDefault("dataversion", 1)

	v.SetDefault("operator", "Telenor SE")
	v.SetDefault("url", "http://193.10.227.25/test/1000M.zip")
	v.SetDefault("size", 3*1024)
	v.SetDefault("time", 3600)

	v.SetDefault("meta_grace", 120)
	v.SetDefault("exp_grace", 120)
	v.SetDefault("meta_interval_check", 5)
	v.SetDefault("terminate_grace", 2)

	v.SetDefault("zmqport", "tcp://172.17.0.1:5556")
	v.SetDefault("modem_metadata_topic", "MONROE.META.DEVICE.MODEM")
	v.SetDefault("gps_metadata_topic", "MONROE.META.DEVICE.GPS")

	v.SetDefault("resultdir", "/monroe/results/")
	v.SetDefault("influxdb.url", "")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "")
	v.SetDefault("postgres.dsn", "")
	v.SetDefault("postgres.table", "probe_results")

	v.SetDefault("verbosity", 2)
	v.SetDefault("status_listen", "")
	v.SetDefault("metrics_textfile", "")
}

// Load reads the configuration file at path on top of the built-in defaults.
// Environment variables prefixed with CELLPROBE_ override file values.
// Durations given as plain numbers are seconds.
func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config
	if err := ctx.Err(); err != nil {
		return cfg, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	path = filepath.Clean(path)
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHook())); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	cfg.applyDerived()
	return cfg, nil
}

// ResolvePath picks the config path: an explicit path wins, then
// CELLPROBE_CONFIG, then DefaultConfigPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if path := os.Getenv(envConfigPath); path != "" {
		return path
	}
	return DefaultConfigPath
}

func (c *Config) applyDerived() {
	if c.Identity.DataID == "" {
		c.Identity.DataID = strings.ReplaceAll(c.Identity.Script, "/", ".")
	}
	if c.Identity.DataVersion == 0 {
		c.Identity.DataVersion = 1
	}
}

// Redacted returns a copy safe for printing.
func (c Config) Redacted() Config {
	out := c
	if out.Output.InfluxDB.Token != "" {
		out.Output.InfluxDB.Token = redactedMarker
	}
	if out.Output.Postgres.DSN != "" {
		out.Output.Postgres.DSN = redactedMarker
	}
	return out
}

const redactedMarker = "REDACTED"

var (
	durationType = reflect.TypeOf(time.Duration(0))
	byteSizeType = reflect.TypeOf(ByteSize(0))
)

func decodeHook() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		secondsToDurationHook,
		byteSizeHook,
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// secondsToDurationHook treats numeric durations as seconds, which is how the
// scheduler writes grace periods and time limits.
func secondsToDurationHook(from, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return time.Duration(reflect.ValueOf(data).Int()) * time.Second, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return time.Duration(reflect.ValueOf(data).Uint()) * time.Second, nil
	case reflect.Float32, reflect.Float64:
		return time.Duration(reflect.ValueOf(data).Float() * float64(time.Second)), nil
	case reflect.String:
		raw := strings.TrimSpace(reflect.ValueOf(data).String())
		if secs, err := strconv.ParseFloat(raw, 64); err == nil {
			return time.Duration(secs * float64(time.Second)), nil
		}
	}
	return data, nil
}

func byteSizeHook(from, to reflect.Type, data any) (any, error) {
	if to != byteSizeType || from.Kind() != reflect.String {
		return data, nil
	}
	return ParseSize(data.(string))
}
