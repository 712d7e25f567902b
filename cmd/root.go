package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-harvester/internal/app"
	"github.com/JakeFAU/catalog-harvester/internal/config"
	"github.com/JakeFAU/catalog-harvester/internal/crawler"
	"github.com/JakeFAU/catalog-harvester/internal/logging"
)

// skipAppAnnotation marks commands that only need config and a logger.
const skipAppAnnotation = "harvester/skip-app"

// Harvester is what the subcommands need from the application container.
type Harvester interface {
	Run(ctx context.Context) (crawler.RunSummary, error)
	Plan(ctx context.Context) ([]crawler.Decision, error)
	Close() error
}

// invocation holds what one CLI call shares with its subcommand.
type invocation struct {
	cfg    config.Config
	logger *zap.Logger
	app    Harvester
}

type invocationKey struct{}

// newApp is the application factory; tests replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Harvester, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// newLogger is the logger factory; tests replace it.
var newLogger = func(cfg config.LoggingConfig) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Development: cfg.Development,
		Level:       cfg.Level,
		OutputPaths: cfg.OutputPaths,
	})
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Incrementally harvests a paginated restaurant catalog.",
		Long: `harvester walks every (area, genre) listing of the catalog, records how many
items each listing reports, and stores item profiles it has not seen before.
Progress is kept per listing, so an interrupted run resumes where it stopped.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			if err := applyFlagOverrides(cmd, &cfg); err != nil {
				return err
			}
			logger, err := newLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt := &invocation{cfg: cfg, logger: logger}
			if cmd.Annotations[skipAppAnnotation] == "" {
				rt.app, err = newApp(cmd.Context(), cfg, logger)
				if err != nil {
					_ = logger.Sync()
					return fmt.Errorf("failed to initialize application services: %w", err)
				}
			}
			cmd.SetContext(context.WithValue(cmd.Context(), invocationKey{}, rt))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newRunCmd(), newTargetsCmd(), newMigrateCmd())
	return cmd
}

// applyFlagOverrides copies harvest flags the user set onto cfg.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	overrides := []struct {
		name string
		dst  *int
	}{
		{"min-priority", &cfg.Harvest.MinPriority},
		{"limit", &cfg.Harvest.LimitTargets},
		{"max-pages", &cfg.Harvest.MaxPages},
	}
	for _, o := range overrides {
		if flags.Lookup(o.name) == nil || !flags.Changed(o.name) {
			continue
		}
		v, err := flags.GetInt(o.name)
		if err != nil {
			return fmt.Errorf("read --%s: %w", o.name, err)
		}
		*o.dst = v
	}
	return cfg.Validate()
}

// withInvocation hands the invocation to fn and releases it when fn
// returns, whether or not fn failed.
func withInvocation(needsApp bool, fn func(*cobra.Command, *invocation) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		rt, ok := cmd.Context().Value(invocationKey{}).(*invocation)
		if !ok || rt == nil {
			return errors.New("application services not initialized")
		}
		defer rt.close()
		if needsApp && rt.app == nil {
			return errors.New("application services not initialized")
		}
		return fn(cmd, rt)
	}
}

func (rt *invocation) close() {
	if rt.app != nil {
		if err := rt.app.Close(); err != nil {
			rt.logger.Warn("error closing application services", zap.Error(err))
		}
	}
	_ = rt.logger.Sync()
}

// Execute runs the CLI until it finishes or the process is signaled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "harvester:", err)
		os.Exit(1)
	}
}
