// Command ledgerimport runs ledger imports from the shell: dry runs,
// ranged commits, full imports and inventory queries. Without DATABASE_URL
// it works against an in-memory ledger, which is enough for a dry run.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/golab-ledger/internal/application"
	"github.com/JonMunkholm/golab-ledger/internal/config"
	"github.com/JonMunkholm/golab-ledger/internal/core"
	"github.com/JonMunkholm/golab-ledger/internal/logging"
)

const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitValidation = 3
	exitDB         = 4
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeFor maps a command error to a process exit code.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	code := core.MapError(err).Code
	switch {
	case strings.HasPrefix(code, "DB"):
		return exitDB
	case strings.HasPrefix(code, "IMP"), strings.HasPrefix(code, "LAY"),
		strings.HasPrefix(code, "FILE"), strings.HasPrefix(code, "ITM"):
		return exitValidation
	}
	return exitFailure
}

// cli carries the process-wide state shared by every command.
type cli struct {
	out    io.Writer
	errOut io.Writer

	// open builds the application on first use.
	open func(ctx context.Context) (*application.App, error)
	app  *application.App
	cfg  *config.Config
}

func (c *cli) service(ctx context.Context) (*core.Service, error) {
	if c.app == nil {
		app, err := c.open(ctx)
		if err != nil {
			return nil, withCode(exitDB, err)
		}
		c.app = app
	}
	return c.app.Service, nil
}

func (c *cli) close() {
	if c.app != nil {
		c.app.Close()
	}
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadLocal()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitUsage)
	}

	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	c := &cli{
		out:    os.Stdout,
		errOut: os.Stderr,
		cfg:    cfg,
		open: func(ctx context.Context) (*application.App, error) {
			return application.Open(ctx, cfg, logger)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err = newRootCmd(c).ExecuteContext(ctx)
	if err != nil {
		reportError(c.errOut, err)
	}
	c.close()
	stop()
	os.Exit(exitCodeFor(err))
}

// reportError prints the user-facing form of err.
func reportError(w io.Writer, err error) {
	var ee *exitError
	if errors.As(err, &ee) && ee.code == exitUsage {
		fmt.Fprintf(w, "error: %v\n", err)
		return
	}
	msg := core.MapError(err)
	fmt.Fprintf(w, "error [%s]: %s\n", msg.Code, msg.Message)
	if msg.Action != "" {
		fmt.Fprintf(w, "  %s\n", msg.Action)
	}
	slog.Debug("command failed", "error", err)
}

// cliContext tags the command context so audit events record the CLI as
// their source.
func cliContext(cmd *cobra.Command) context.Context {
	host, _ := os.Hostname()
	return core.ContextWithRequestMeta(cmd.Context(), core.RequestMeta{
		IPAddress: host,
		UserAgent: "ledgerimport",
		Source:    "cli",
	})
}
