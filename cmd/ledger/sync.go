package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-ledger-must-balance/internal/cli"
	"github.com/Veraticus/the-ledger-must-balance/internal/dwolla"
	syncer "github.com/Veraticus/the-ledger-must-balance/internal/sync"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync transfers from the payment processor",
		Long: `Fetch ACH transfers from the payment processor, resolve counterparties and
return codes, and upsert them into the local database.

Syncs are idempotent: re-running over an overlapping date range updates
existing rows instead of duplicating them.`,
		RunE: runSync,
	}

	// Date range flags
	cmd.Flags().StringP("start-date", "s", "", "Start date for transfer sync (format: 2006-01-02)")
	cmd.Flags().StringP("end-date", "e", "", "End date for transfer sync (format: 2006-01-02)")
	cmd.Flags().IntP("days", "d", 30, "Number of days to sync (used if start/end dates not specified)")

	// Other options
	cmd.Flags().IntP("limit", "l", 0, "Maximum number of transfers to sync (0 = unbounded)")
	cmd.Flags().Bool("dry-run", false, "Fetch and enrich without saving to the database")

	// Bind to viper
	_ = viper.BindPFlag("sync.start_date", cmd.Flags().Lookup("start-date"))
	_ = viper.BindPFlag("sync.end_date", cmd.Flags().Lookup("end-date"))
	_ = viper.BindPFlag("sync.days", cmd.Flags().Lookup("days"))
	_ = viper.BindPFlag("sync.limit", cmd.Flags().Lookup("limit"))
	_ = viper.BindPFlag("sync.dry_run", cmd.Flags().Lookup("dry-run"))

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	client, err := dwolla.NewClient(providerConfig())
	if err != nil {
		return fmt.Errorf("failed to create Dwolla client: %w", err)
	}

	startDate, endDate, err := parseDateRange(
		viper.GetString("sync.start_date"),
		viper.GetString("sync.end_date"),
		viper.GetInt("sync.days"))
	if err != nil {
		return err
	}

	slog.Info(cli.FormatTitle("Syncing transfers"))
	slog.Info("Date range", "start", startDate.Format("2006-01-02"), "end", endDate.Format("2006-01-02"))

	store, err := openStorage("")
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	total := viper.GetInt("sync.limit")
	if total == 0 {
		total = -1 // unknown, render a spinner
	}
	bar := cli.NewSyncProgressBar(total, "Syncing transfers...", nil)

	coordinator := syncer.NewCoordinator(client, dwolla.NewEnricher(client), store,
		syncer.WithProgress(func(done int) { _ = bar.Set(done) }))

	result, err := coordinator.Run(ctx, syncer.Options{
		StartDate: &startDate,
		EndDate:   &endDate,
		Limit:     viper.GetInt("sync.limit"),
		DryRun:    viper.GetBool("sync.dry_run"),
	})
	_ = bar.Finish()
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	slog.Info(cli.FormatSuccess(fmt.Sprintf("✓ Synced %d transfers (%d skipped, %d failed)",
		result.SyncedCount, result.SkippedCount, result.FailedCount)))

	for _, msg := range result.Errors {
		slog.Warn(cli.FormatWarning(msg))
	}

	if viper.GetBool("sync.dry_run") {
		slog.Info(cli.FormatWarning("Dry run mode - nothing was saved"))
	}

	return nil
}
