package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platewise/platewise-api/internal/config"
	"github.com/platewise/platewise-api/internal/infrastructure/server"
	"github.com/platewise/platewise-api/internal/sweep"
	"github.com/platewise/platewise-api/internal/usecase/association"
	"github.com/platewise/platewise-api/internal/usecase/heroimage"
	"github.com/platewise/platewise-api/internal/usecase/integration"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		timeout    time.Duration
	)

	rootCmd := &cobra.Command{
		Use:          "sweeper",
		Short:        "Batch jobs for the Platewise restaurant store",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Sweep config file (YAML)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Overall run timeout")

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Aggregate every configured area that is due",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(configPath, timeout, func(ctx context.Context, sc *sweep.Config, c *server.Components, _ *config.Config) error {
				state, err := sweep.NewFileStateStore(sc.StateFile)
				if err != nil {
					return fmt.Errorf("failed to initialize state: %w", err)
				}
				_, err = RunSweep(ctx, sc, c.Engine, state)
				return err
			})
		},
	}

	var fromStart bool
	associateCmd := &cobra.Command{
		Use:   "associate <mentions.jsonl>",
		Short: "Link content mentions to canonical restaurants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(configPath, timeout, func(ctx context.Context, sc *sweep.Config, c *server.Components, _ *config.Config) error {
				src, err := sweep.NewMentionFile(args[0], sc.PageSize)
				if err != nil {
					return err
				}
				state, err := sweep.NewFileStateStore(sc.StateFile)
				if err != nil {
					return fmt.Errorf("failed to initialize state: %w", err)
				}
				if fromStart {
					state.SetMentionCursor("")
				}
				_, err = RunAssociate(ctx, association.NewSweeper(src, c.Resolver, c.Graph, sc.MaxPages), state)
				return err
			})
		},
	}
	associateCmd.Flags().BoolVar(&fromStart, "from-start", false, "Ignore the saved cursor")

	connectCmd := &cobra.Command{
		Use:   "connect <records.jsonl>",
		Short: "Attach reservation links from an integration export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(configPath, timeout, func(ctx context.Context, _ *sweep.Config, c *server.Components, cfg *config.Config) error {
				records, err := sweep.ReadRecords(args[0])
				if err != nil {
					return err
				}
				_, err = RunConnect(ctx, integration.NewConnector(c.Resolver, c.Store, cfg.ReservationDelay), records)
				return err
			})
		},
	}

	backfillCmd := &cobra.Command{
		Use:   "backfill-hero <overrides.jsonl>",
		Short: "Store manually chosen hero images",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(configPath, timeout, func(ctx context.Context, _ *sweep.Config, c *server.Components, _ *config.Config) error {
				overrides, err := sweep.ReadOverrides(args[0])
				if err != nil {
					return err
				}
				_, err = RunBackfill(ctx, c.Store, overrides)
				return err
			})
		},
	}

	rootCmd.AddCommand(sweepCmd, associateCmd, connectCmd, backfillCmd)
	return rootCmd
}

// withComponents loads both config layers, wires the backends and runs fn under a
// context that ends on timeout or SIGINT/SIGTERM.
func withComponents(configPath string, timeout time.Duration, fn func(context.Context, *sweep.Config, *server.Components, *config.Config) error) error {
	sc, err := sweep.LoadConfig(configPath)
	if err != nil {
		return err
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	components, err := server.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer components.Close()

	return fn(ctx, sc, components, cfg)
}

// RunSweep executes one area sweep. Exposed for testing.
func RunSweep(ctx context.Context, cfg *sweep.Config, engine sweep.Aggregator, state *sweep.FileStateStore) (sweep.Summary, error) {
	log.Printf("Starting area sweep (%d areas configured)...", len(cfg.Areas))
	summary, err := sweep.NewWorker(cfg, engine, state).Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("sweep failed: %w", err)
	}
	log.Printf("Sweep complete. New-to-total ratio: %.2f", summary.Report.NewRatio)
	return summary, nil
}

// RunAssociate resumes the association sweep from the saved cursor and stores where it stopped.
func RunAssociate(ctx context.Context, sweeper *association.Sweeper, state *sweep.FileStateStore) (association.Report, error) {
	start := state.MentionCursor()
	if start != "" {
		log.Printf("Resuming association sweep at cursor %s", start)
	}
	report, runErr := sweeper.RunFrom(ctx, start)

	state.SetMentionCursor(report.Resume)
	if err := state.Save(); err != nil {
		log.Printf("Warning: failed to save association cursor: %v", err)
	}
	if runErr != nil {
		return report, fmt.Errorf("association sweep failed: %w", runErr)
	}
	return report, nil
}

// RunConnect processes integration records sequentially.
func RunConnect(ctx context.Context, connector *integration.Connector, records []integration.Record) (integration.Report, error) {
	if len(records) == 0 {
		log.Println("No integration records found. Exiting.")
		return integration.Report{}, nil
	}
	log.Printf("Connecting %d integration records...", len(records))
	report, err := connector.Connect(ctx, records)
	log.Printf("Connect complete. Connected: %d, Unresolved: %d, Failed: %d", report.Connected, report.Unresolved, report.Failed)
	if err != nil {
		return report, fmt.Errorf("connect interrupted: %w", err)
	}
	return report, nil
}

// RunBackfill applies hero image overrides one record at a time.
func RunBackfill(ctx context.Context, store heroimage.RecordStore, overrides []heroimage.Override) (heroimage.BackfillReport, error) {
	if len(overrides) == 0 {
		log.Println("No hero image overrides found. Exiting.")
		return heroimage.BackfillReport{}, nil
	}
	report, err := heroimage.Backfill(ctx, store, overrides)
	log.Printf("Backfill complete. Applied: %d, Unchanged: %d, Missing: %d, Failed: %d", report.Applied, report.Unchanged, report.Missing, report.Failed)
	if err != nil {
		return report, fmt.Errorf("backfill interrupted: %w", err)
	}
	return report, nil
}
