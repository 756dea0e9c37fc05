package probe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

var (
	// ErrExecution means the probe tool could not run or exited non-zero.
	ErrExecution = errors.New("probe execution failed")
	// ErrParse means the probe tool's report was unreadable or incomplete.
	ErrParse = errors.New("probe output unparseable")
	// ErrInterfaceChanged means the modem moved to another interface while
	// the probe was running; the measurement is discarded.
	ErrInterfaceChanged = errors.New("interface changed during probe")
)

// WriteOut is the curl --write-out template. It renders the measurement as a
// single JSON object on stdout.
const WriteOut = `{ "Host": "%{remote_ip}", "Port": "%{remote_port}", "Speed": %{speed_download}, "Bytes": %{size_download}, "TotalTime": %{time_total}, "SetupTime": %{time_starttransfer} }`

const (
	defaultCurlBinary = "curl"
	defaultKillGrace  = 2 * time.Second
)

// Request describes one bounded download bound to an interface.
type Request struct {
	Interface string
	URL       string
	MaxBytes  int64
	MaxTime   time.Duration
}

// Executor runs the probe collaborator and returns its raw report.
type Executor interface {
	Execute(ctx context.Context, req Request) ([]byte, error)
}

// CurlExecutor runs curl. Cancelling the context sends SIGTERM and, after
// KillGrace, SIGKILL.
type CurlExecutor struct {
	Binary    string
	KillGrace time.Duration
}

func (e CurlExecutor) binary() string {
	if e.Binary == "" {
		return defaultCurlBinary
	}
	return e.Binary
}

// Args returns the curl argument list for req.
func (e CurlExecutor) Args(req Request) []string {
	args := []string{
		"--raw",
		"--silent",
		"--output", os.DevNull,
		"--write-out", WriteOut,
		"--interface", req.Interface,
		"--max-time", strconv.FormatFloat(req.MaxTime.Seconds(), 'f', -1, 64),
	}
	if req.MaxBytes > 0 {
		args = append(args, "--range", fmt.Sprintf("0-%d", req.MaxBytes-1))
	}
	return append(args, req.URL)
}

func (e CurlExecutor) Execute(ctx context.Context, req Request) ([]byte, error) {
	if req.Interface == "" {
		return nil, fmt.Errorf("%w: no interface", ErrExecution)
	}
	cmd := exec.CommandContext(ctx, e.binary(), e.Args(req)...)
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = e.KillGrace
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = defaultKillGrace
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("%w: %v: %s", ErrExecution, err, msg)
		}
		return nil, fmt.Errorf("%w: %v", ErrExecution, err)
	}
	return stdout.Bytes(), nil
}
