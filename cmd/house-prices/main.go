package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"house-prices-etl/internal/app"
	"house-prices-etl/internal/config"
	"house-prices-etl/internal/fetcher"
	"house-prices-etl/internal/observability"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		os.Exit(1)
	}
}

// session зависимости одной команды
type session struct {
	cfg      *config.Config
	logger   *observability.Logger
	pipeline *app.Pipeline
	ctx      context.Context
	close    func()
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		maxRuntime time.Duration
	)

	setup := func(withSource bool) (*session, error) {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}

		logger, err := observability.NewLogger(observability.Options{
			LogPath:    cfg.Observability.LogPath,
			LogLevel:   cfg.Observability.LogLevel,
			MaxSizeMB:  cfg.Observability.MaxSizeMB,
			MaxBackups: cfg.Observability.MaxBackups,
			MaxAgeDays: cfg.Observability.MaxAgeDays,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init logger: %w", err)
		}

		var (
			source fetcher.PageSource
			closer io.Closer = io.NopCloser(nil)
		)
		if withSource {
			source, closer, err = app.NewPageSource(cfg, logger)
			if err != nil {
				_ = logger.Sync()
				return nil, fmt.Errorf("failed to init page source: %w", err)
			}
		}

		ctx, cancel := app.GracefulShutdown(logger, maxRuntime)

		return &session{
			cfg:      cfg,
			logger:   logger,
			pipeline: app.NewPipeline(cfg, logger, source),
			ctx:      ctx,
			close: func() {
				cancel()
				if err := closer.Close(); err != nil {
					logger.Warn("Failed to close page source", "error", err.Error())
				}
				_ = logger.Sync()
			},
		}, nil
	}

	runAll := func(cmd *cobra.Command, args []string) error {
		rt, err := setup(true)
		if err != nil {
			return err
		}
		defer rt.close()

		started := time.Now()
		rt.logger.Info("Pipeline started", "config", configPath, "sources", len(rt.cfg.Sources))

		final, err := rt.pipeline.Run(rt.ctx)
		if err != nil {
			rt.logger.Error("Pipeline failed", "error", err.Error())
			return err
		}

		rt.logger.Info("Pipeline completed",
			"rows", final.Len(),
			"final_csv", rt.cfg.Storage.FinalCSV,
			"duration", time.Since(started).String(),
		)
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           "house-prices",
		Short:         "Crawl listing sites, clean and merge house prices",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE:          runAll,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "Path to config YAML")
	rootCmd.PersistentFlags().DurationVar(&maxRuntime, "max-runtime", 0, "Abort the run after this duration (0 = no limit)")

	crawlCmd := &cobra.Command{
		Use:   "crawl [source...]",
		Short: "Crawl sources and write their raw CSV tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(true)
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.pipeline.Crawl(rt.ctx, args...); err != nil {
				rt.logger.Error("Crawl failed", "error", err.Error())
				return err
			}
			return nil
		},
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Normalize and merge the raw CSV tables into the final dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(false)
			if err != nil {
				return err
			}
			defer rt.close()

			final, err := rt.pipeline.Clean(rt.ctx)
			if err != nil {
				rt.logger.Error("Clean failed", "error", err.Error())
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows\n", rt.cfg.Storage.FinalCSV, final.Len())
			return nil
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Crawl all sources, then clean and merge",
		Args:  cobra.NoArgs,
		RunE:  runAll,
	}

	rootCmd.AddCommand(crawlCmd, cleanCmd, runCmd)
	return rootCmd
}
