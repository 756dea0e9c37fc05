package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// sampleJSON mirrors the flat document the node scheduler drops at /monroe/config.
const sampleJSON = `{
  "guid": "sha256:15979bb1.b3b2a7ce.91.2",
  "nodeid": "node-129",
  "script": "jonakarl/experiment-template",
  "zmqport": "tcp://127.0.0.1:5556",
  "meta_grace": 60,
  "exp_grace": 30,
  "meta_interval_check": 2.5,
  "verbosity": 3,
  "resultdir": "/tmp/results/",
  "operator": "Telia SE",
  "url": "http://example.net/100M.zip",
  "size": "3KiB",
  "time": 600,
  "storage": 104857600,
  "traffic": 104857600
}`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadSchedulerJSON(t *testing.T) {
	path := writeFile(t, "config", sampleJSON)

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Identity.GUID != "sha256:15979bb1.b3b2a7ce.91.2" || cfg.Identity.NodeID != "node-129" {
		t.Fatalf("unexpected identity: %+v", cfg.Identity)
	}
	if cfg.Identity.DataID != "jonakarl.experiment-template" {
		t.Fatalf("expected data id derived from script, got %q", cfg.Identity.DataID)
	}
	if cfg.Identity.DataVersion != 1 {
		t.Fatalf("expected default data version 1, got %d", cfg.Identity.DataVersion)
	}
	if cfg.Supervision.MetaGrace != 60*time.Second || cfg.Supervision.ExpGrace != 30*time.Second {
		t.Fatalf("unexpected grace periods: %+v", cfg.Supervision)
	}
	if cfg.Supervision.PollInterval != 2500*time.Millisecond {
		t.Fatalf("unexpected poll interval: %s", cfg.Supervision.PollInterval)
	}
	if cfg.Experiment.Size != 3072 {
		t.Fatalf("unexpected size: %d", cfg.Experiment.Size)
	}
	if cfg.Experiment.Time != 10*time.Minute {
		t.Fatalf("unexpected time: %s", cfg.Experiment.Time)
	}
	if cfg.ProbeBudget() != 10*time.Minute+30*time.Second {
		t.Fatalf("unexpected probe budget: %s", cfg.ProbeBudget())
	}
	if cfg.Feed.ModemTopic != "MONROE.META.DEVICE.MODEM" || cfg.Feed.LocationTopic != "MONROE.META.DEVICE.GPS" {
		t.Fatalf("expected default topics, got %+v", cfg.Feed)
	}
	if cfg.Output.Postgres.Table != "probe_results" {
		t.Fatalf("expected default postgres table, got %q", cfg.Output.Postgres.Table)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "config.json", sampleJSON)
	t.Setenv("CELLPROBE_OPERATOR", "Tre SE")
	t.Setenv("CELLPROBE_META_GRACE", "15")
	t.Setenv("CELLPROBE_TERMINATE_GRACE", "750ms")
	t.Setenv("CELLPROBE_INFLUXDB_URL", "http://influx:8086")

	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Experiment.Operator != "Tre SE" {
		t.Fatalf("unexpected operator: %q", cfg.Experiment.Operator)
	}
	if cfg.Supervision.MetaGrace != 15*time.Second {
		t.Fatalf("unexpected meta grace: %s", cfg.Supervision.MetaGrace)
	}
	if cfg.Supervision.TerminateGrace != 750*time.Millisecond {
		t.Fatalf("unexpected terminate grace: %s", cfg.Supervision.TerminateGrace)
	}
	if !cfg.Output.InfluxDB.Enabled() {
		t.Fatalf("expected influx sink enabled from env")
	}
}

func TestLoadResolvedFromEnv(t *testing.T) {
	path := writeFile(t, "config.json", sampleJSON)
	t.Setenv(envConfigPath, path)

	cfg, err := Load(context.Background(), ResolvePath(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Output.ResultDir != "/tmp/results/" {
		t.Fatalf("unexpected result dir: %s", cfg.Output.ResultDir)
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv(envConfigPath, "")
	if got := ResolvePath(""); got != DefaultConfigPath {
		t.Fatalf("expected default path, got %q", got)
	}
	t.Setenv(envConfigPath, "/etc/cellprobe.json")
	if got := ResolvePath(""); got != "/etc/cellprobe.json" {
		t.Fatalf("expected env path, got %q", got)
	}
	if got := ResolvePath("/tmp/explicit"); got != "/tmp/explicit" {
		t.Fatalf("expected explicit path, got %q", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(context.Background(), filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func TestLoadRejectsBadSize(t *testing.T) {
	path := writeFile(t, "config.json", `{"size": "lots"}`)
	if _, err := Load(context.Background(), path); err == nil {
		t.Fatalf("expected parse error for bad size")
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	path := writeFile(t, "config.json", sampleJSON)
	cfg, err := Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	cfg.Experiment.Operator = ""
	cfg.Supervision.PollInterval = 0
	cfg.Feed.LocationTopic = cfg.Feed.ModemTopic
	cfg.Observability.Verbosity = 7
	cfg.Output.Postgres.DSN = "postgres://x"
	cfg.Output.Postgres.Table = "drop table;"

	err = cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := []string{"operator", "meta_interval_check", "must differ", "postgres.table", "verbosity"}
	if len(verr.Problems) != len(want) {
		t.Fatalf("expected %d problems, got %v", len(want), verr.Problems)
	}
	for i, fragment := range want {
		if !strings.Contains(verr.Problems[i], fragment) {
			t.Fatalf("problem %d = %q, want mention of %q", i, verr.Problems[i], fragment)
		}
	}
}

func TestWriteRoundTrip(t *testing.T) {
	src := writeFile(t, "config.json", sampleJSON)
	cfg, err := Load(context.Background(), src)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	out := filepath.Join(t.TempDir(), "nested", "effective.yaml")
	if err := Write(out, cfg); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, err := os.Stat(out + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected temp file to be renamed away, stat err=%v", err)
	}

	reloaded, err := Load(context.Background(), out)
	if err != nil {
		t.Fatalf("reload returned error: %v", err)
	}
	if diff := cmp.Diff(cfg, reloaded); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRedactedHidesSecrets(t *testing.T) {
	var cfg Config
	cfg.Output.InfluxDB.Token = "s3cret"
	cfg.Output.Postgres.DSN = "postgres://user:pw@db/x"

	var buf strings.Builder
	if err := Encode(&buf, cfg.Redacted()); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Contains(buf.String(), "s3cret") || strings.Contains(buf.String(), "pw@db") {
		t.Fatalf("secrets leaked: %s", buf.String())
	}
	if cfg.Output.InfluxDB.Token != "s3cret" {
		t.Fatalf("Redacted mutated the receiver")
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input    string
		expected ByteSize
	}{
		{"3072", 3072},
		{"3KiB", 3 * 1024},
		{"3 kib", 3 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"1.5GB", ByteSize(1.5 * 1000 * 1000 * 1000)},
		{"10b", 10},
	}

	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if err != nil {
			t.Fatalf("ParseSize(%q) returned error: %v", tt.input, err)
		}
		if got != tt.expected {
			t.Fatalf("ParseSize(%q) = %d want %d", tt.input, got, tt.expected)
		}
	}
}

func TestParseSizeRejects(t *testing.T) {
	for _, input := range []string{"", "-5", "-1KiB", "3 parsecs", "KiB"} {
		if _, err := ParseSize(input); err == nil {
			t.Fatalf("ParseSize(%q) should fail", input)
		}
	}
}
