package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitOK          = 0
	exitAborted     = 1
	exitConfigError = 2
)

// exitError carries the process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error {
	return &exitError{code: exitConfigError, err: err}
}

type rootOptions struct {
	configPath string
	stdout     io.Writer
	stderr     io.Writer
}

// newRootCommand builds the CLI. Without a subcommand it behaves like `run`.
func newRootCommand(opts *rootOptions) *cobra.Command {
	var flags runFlags
	root := &cobra.Command{
		Use:           "cellprobe",
		Short:         "Run one bounded download probe over a mobile-network interface",
		Args:          cobra.NoArgs,
		RunE:          runE(opts, &flags),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags.register(root)
	root.SetOut(opts.stdout)
	root.SetErr(opts.stderr)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to the experiment configuration (default $CELLPROBE_CONFIG or /monroe/config)")

	root.AddCommand(
		newRunCommand(opts),
		newConfigCommand(opts),
	)
	return root
}

// Execute runs the CLI and returns the process exit status.
func Execute(ctx context.Context, args []string) int {
	return execute(ctx, args, os.Stdout, os.Stderr)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts := &rootOptions{stdout: stdout, stderr: stderr}
	root := newRootCommand(opts)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(stderr, "cellprobe: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(stderr, "cellprobe: %v\n", err)
	return exitAborted
}
