package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "curl")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestCurlArgs(t *testing.T) {
	args := CurlExecutor{}.Args(Request{Interface: "op0", URL: "http://example.net/1M", MaxBytes: 3072, MaxTime: 90 * time.Second})
	joined := strings.Join(args, " ")
	for _, want := range []string{"--raw", "--silent", "--interface op0", "--max-time 90", "--range 0-3071", "--output " + os.DevNull} {
		if !strings.Contains(joined, want) {
			t.Fatalf("args %q missing %q", joined, want)
		}
	}
	if args[len(args)-1] != "http://example.net/1M" {
		t.Fatalf("URL must be the last argument, got %q", args[len(args)-1])
	}
}

func TestCurlExecutorRunsBinary(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := writeScript(t, `echo "$@" > `+argsFile+`
printf '{ "Host": "10.0.0.1", "Port": "80", "Speed": 100, "Bytes": 10, "TotalTime": 1, "SetupTime": 0.25 }'`)

	out, err := CurlExecutor{Binary: script}.Execute(context.Background(), Request{Interface: "op0", URL: "http://x", MaxBytes: 10, MaxTime: time.Second})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	m, err := ParseMetrics(out)
	if err != nil {
		t.Fatalf("ParseMetrics: %v", err)
	}
	if m.SetupTime != 0.25 {
		t.Fatalf("unexpected metrics %+v", m)
	}
	recorded, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if !strings.Contains(string(recorded), "--interface op0") {
		t.Fatalf("unexpected args %q", recorded)
	}
}

func TestCurlExecutorNonZeroExit(t *testing.T) {
	script := writeScript(t, `echo "curl: (7) Failed to connect" >&2
exit 7`)
	_, err := CurlExecutor{Binary: script}.Execute(context.Background(), Request{Interface: "op0", URL: "http://x", MaxTime: time.Second})
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if !strings.Contains(err.Error(), "Failed to connect") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

func TestCurlExecutorMissingBinary(t *testing.T) {
	_, err := CurlExecutor{Binary: filepath.Join(t.TempDir(), "nope")}.Execute(context.Background(), Request{Interface: "op0"})
	if !errors.Is(err, ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
}

func TestCurlExecutorCancelKillsProcess(t *testing.T) {
	script := writeScript(t, `exec sleep 30`)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := CurlExecutor{Binary: script, KillGrace: 500 * time.Millisecond}.Execute(ctx, Request{Interface: "op0"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("process was not stopped promptly")
	}
}
