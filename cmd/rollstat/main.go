package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ethpandaops/rollstat/internal/agent"
	"github.com/ethpandaops/rollstat/internal/migrate"
	"github.com/ethpandaops/rollstat/internal/version"
)

var (
	cfgFile  string
	logLevel string
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollstat",
		Short: "Rolling min/max/avg statistics over named intervals",
		Long: `rollstat keeps lock-free rolling statistics of counters and
durations over several named intervals at once, and reports them on
wall-clock aligned boundaries to logs, Prometheus, ClickHouse, HTTP
and OTLP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	cmd.PersistentFlags().StringVar(
		&cfgFile, "config", "",
		"path to config file",
	)
	cmd.PersistentFlags().StringVar(
		&logLevel, "log-level", "",
		"override log level (debug, info, warn, error)",
	)

	cmd.AddCommand(versionCmd(), simulateCmd(), migrateCmd())

	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version.FullWithPlatform())
		},
	}
}

func simulateCmd() *cobra.Command {
	var (
		duration time.Duration
		rate     float64
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the agent against a synthetic workload",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(false)
			if err != nil {
				return err
			}

			cfg.Loadgen.Enabled = true

			if rate > 0 {
				cfg.Loadgen.Rate = rate
			}

			if workers > 0 {
				cfg.Loadgen.Workers = workers
				cfg.Loadgen.Burst = workers
			}

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc

				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			return runAgent(ctx, log, cfg)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 runs until interrupted)")
	cmd.Flags().Float64Var(&rate, "rate", 0, "operations per second")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent workers")

	return cmd
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Manage the ClickHouse schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, cfg, err := setup(true)
			if err != nil {
				return err
			}

			ch := cfg.Exporters.ClickHouse
			if ch.Endpoint == "" {
				return fmt.Errorf("exporters.clickhouse.endpoint is required")
			}

			m := migrate.New(log, ch.DSN())
			ctx := cmd.Context()

			switch args[0] {
			case "up":
				return m.Up(ctx)
			case "down":
				return m.Down(ctx)
			case "status":
				v, dirty, err := m.Status(ctx)
				if err != nil {
					return err
				}

				fmt.Printf("version=%d dirty=%t\n", v, dirty)

				return nil
			default:
				return fmt.Errorf("unknown migrate action %q", args[0])
			}
		},
	}

	return cmd
}

// setup builds the logger and loads the configuration. Without a config
// file the defaults are used unless requireConfig is set.
func setup(requireConfig bool) (*logrus.Logger, *agent.Config, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	var (
		cfg *agent.Config
		err error
	)

	switch {
	case cfgFile != "":
		cfg, err = agent.LoadConfig(cfgFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config: %w", err)
		}
	case requireConfig:
		return nil, nil, fmt.Errorf("--config is required")
	default:
		cfg = agent.DefaultConfig()
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("validating default config: %w", err)
		}
	}

	// CLI flag overrides config file.
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing log level %q: %w", cfg.LogLevel, err)
	}

	log.SetLevel(level)

	return log, cfg, nil
}

func run(cmd *cobra.Command, args []string) error {
	log, cfg, err := setup(true)
	if err != nil {
		return err
	}

	return runAgent(cmd.Context(), log, cfg)
}

func runAgent(parent context.Context, log logrus.FieldLogger, cfg *agent.Config) error {
	if parent == nil {
		parent = context.Background()
	}

	ctx, cancel := signal.NotifyContext(
		parent,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer cancel()

	a, err := agent.New(log, cfg)
	if err != nil {
		return fmt.Errorf("creating agent: %w", err)
	}

	log.WithField("version", version.Full()).Info("Starting rollstat agent")

	if err := a.Start(ctx); err != nil {
		_ = a.Stop()

		return fmt.Errorf("starting agent: %w", err)
	}

	<-ctx.Done()

	log.Info("Shutting down rollstat agent")

	if err := a.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
		return fmt.Errorf("stopping agent: %w", err)
	}

	log.Info("Shutdown complete")

	return nil
}
