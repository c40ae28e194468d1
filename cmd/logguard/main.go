package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SteelMorgan/cluster-log-guard/internal/config"
	"github.com/SteelMorgan/cluster-log-guard/internal/observability"
	"github.com/SteelMorgan/cluster-log-guard/pkg/logguard"
)

const version = "0.1.0"

// errFound marks a run that completed but found unexpected errors or unmet
// expectations; it maps to exit code 1
var errFound = errors.New("log check failed")

// app carries the state shared by all subcommands
type app struct {
	cfg      *config.Config
	guard    *logguard.Guard
	shutdown func(context.Context) error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCommand(a).ExecuteContext(ctx)
	// flush spans before os.Exit, failed runs included
	a.close()

	switch {
	case err == nil:
	case errors.Is(err, errFound):
		os.Exit(1)
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

// newRootCommand constructs the `logguard` command tree. The caller must
// call a.close once the command returns.
func newRootCommand(a *app) *cobra.Command {

	root := &cobra.Command{
		Use:   "logguard",
		Short: "Error surveillance for local cluster log artifacts",
		Long: `logguard scans the log files of a local cluster instance for unexpected
error lines, remembering how far each file has been read across rotations.

Configuration comes from LOGGUARD_* environment variables; flags override them.

Exit codes:
  0  no unexpected errors, all expectations met
  1  unexpected errors found or an expectation was not met
  2  usage or runtime failure`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("state-dir", "", "Cluster state directory (LOGGUARD_STATE_DIR)")
	flags.String("instance", "", "Cluster instance id (LOGGUARD_INSTANCE)")
	flags.String("log-level", "", "Log level: debug, info, warn, error (LOG_LEVEL)")

	root.AddCommand(
		newSweepCommand(a),
		newWatchCommand(a),
		newExpectCommand(a),
		newRulesCommand(a),
		newBookmarksCommand(a),
	)

	return root
}

// setup applies flag overrides to the environment configuration and builds the guard
func (a *app) setup(cmd *cobra.Command) error {
	cfg := config.FromEnv()
	if v, _ := cmd.Flags().GetString("state-dir"); v != "" {
		cfg.StateDir = v
	}
	if v, _ := cmd.Flags().GetString("instance"); v != "" {
		cfg.Instance = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	a.cfg = cfg

	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	shutdown, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    observability.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.TracingEndpoint,
		Protocol:       cfg.TracingProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		a.shutdown = shutdown
	}

	guard, err := logguard.FromConfig(cfg)
	if err != nil {
		return err
	}
	a.guard = guard

	log.Debug().
		Str("state_dir", cfg.StateDir).
		Str("instance", cfg.Instance).
		Str("lock", guard.LockPath()).
		Msg("Log guard initialized")

	return nil
}

// close shuts the tracer provider down; it is safe to call more than once
func (a *app) close() {
	if a.shutdown == nil {
		return
	}
	if err := a.shutdown(context.Background()); err != nil {
		log.Error().Err(err).Msg("Failed to shut down tracer")
	}
	a.shutdown = nil
}
