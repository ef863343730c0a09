package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return runContext(ctx, os.Args[1:], os.Stdout, os.Stderr)
}

func runWithArgs(args []string, stdout, stderr io.Writer) int {
	return runContext(context.Background(), args, stdout, stderr)
}

func runContext(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			if writeErr := writef(stderr, "error: %v\n", exit.err); writeErr != nil {
				return 1
			}
		}
		return exit.code
	}
	// anything cobra reports itself is a usage problem
	if writeErr := writef(stderr, "error: %v\n", err); writeErr != nil {
		return 1
	}
	if writeErr := writef(stderr, "Run '%s --help' for usage.\n", root.Name()); writeErr != nil {
		return 1
	}
	return 2
}

// exitError carries the process exit code out of a command. A nil err means
// the command already reported the failure.
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

func failed(err error) error {
	return &exitError{code: 1, err: err}
}

type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	var flags globalFlags
	root := &cobra.Command{
		Use:   "xmlhub",
		Short: "Route XML elements to pluggable handlers",
		Long: `xmlhub streams XML documents and hands every registered element, with
everything nested inside it, to a freshly created handler.

Handlers are bound to element names in a config file or with --bind:

  xmlhub process --bind order=json orders.xml
  xmlhub process --bind line=lua:scripts/line.lua --jobs 4 *.xml
  xmlhub serve --config xmlhub.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to a TOML or YAML config file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "log format (text, json)")

	root.AddCommand(
		newProcessCmd(&flags, stdout, stderr),
		newServeCmd(&flags, stderr),
		newVersionCmd(stdout),
	)
	return root
}

func writef(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

func writeln(w io.Writer, args ...any) error {
	_, err := fmt.Fprintln(w, args...)
	return err
}
