package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/the-ledger-must-balance/internal/cli"
	"github.com/Veraticus/the-ledger-must-balance/internal/dwolla"
	"github.com/Veraticus/the-ledger-must-balance/internal/model"
	"github.com/Veraticus/the-ledger-must-balance/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func transfersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfers [id]",
		Short: "List synced transfers",
		Long: `Display transfers from the local database, newest first. With a transfer id,
fetch that transfer live from the payment processor and show its enriched
form.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runTransfers,
	}

	cmd.Flags().String("status", "", "Filter by status (pending, processed, failed, cancelled, returned)")
	cmd.Flags().IntP("days", "d", 30, "Show transfers from the last N days")
	cmd.Flags().IntP("limit", "l", 50, "Maximum number of transfers to display")

	_ = viper.BindPFlag("transfers.status", cmd.Flags().Lookup("status"))
	_ = viper.BindPFlag("transfers.days", cmd.Flags().Lookup("days"))
	_ = viper.BindPFlag("transfers.limit", cmd.Flags().Lookup("limit"))

	return cmd
}

func runTransfers(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if len(args) == 1 {
		return inspectTransfer(ctx, args[0])
	}

	store, err := openStorage("")
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	start := time.Now().AddDate(0, 0, -viper.GetInt("transfers.days"))
	transfers, err := store.GetTransfers(ctx, service.TransferFilter{
		StartDate: &start,
		Status:    model.TransferStatus(viper.GetString("transfers.status")),
		Limit:     viper.GetInt("transfers.limit"),
	})
	if err != nil {
		return fmt.Errorf("failed to load transfers: %w", err)
	}

	if len(transfers) == 0 {
		slog.Info(cli.FormatInfo("No transfers found. Run 'ledger sync' first."))
		return nil
	}

	slog.Info(cli.FormatTitle(fmt.Sprintf("%d transfers", len(transfers))))
	for _, t := range transfers {
		slog.Info(formatTransferLine(&t))
	}

	return nil
}

// inspectTransfer fetches one transfer live from the provider and renders its
// enriched form.
func inspectTransfer(ctx context.Context, id string) error {
	client, err := dwolla.NewClient(providerConfig())
	if err != nil {
		return fmt.Errorf("failed to create Dwolla client: %w", err)
	}

	raw, err := client.Transfer(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to fetch transfer %s: %w", id, err)
	}

	tx, err := dwolla.NewEnricher(client).Enrich(ctx, *raw)
	if err != nil {
		return fmt.Errorf("failed to enrich transfer %s: %w", id, err)
	}
	if tx == nil {
		slog.Info(cli.FormatInfo("Transfer " + id + " is operator-initiated and excluded from sync."))
		return nil
	}

	body := fmt.Sprintf("Status:       %s\nAmount:       %.2f %s\nNet amount:   %.2f %s\nCreated:      %s\nCounterparty: %s",
		tx.Status, tx.Amount, tx.Currency, tx.NetAmount, tx.Currency,
		tx.Created.Format("2006-01-02 15:04"), tx.Counterparty.DisplayName())
	if tx.Failure != nil {
		body += fmt.Sprintf("\nFailure:      %s %s\nAction:       %s",
			tx.Failure.ReturnCode, tx.Failure.Title, tx.Failure.UserAction)
	}

	slog.Info(cli.RenderBox("Transfer "+tx.ID, body))
	return nil
}

// formatTransferLine renders one transfer for terminal display.
func formatTransferLine(t *model.EnrichedTransaction) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %-10s  %8.2f %s",
		t.Created.Format("2006-01-02"),
		t.Status,
		t.NetAmount,
		t.Currency)

	if name := t.Counterparty.DisplayName(); name != "Unknown" {
		fmt.Fprintf(&b, "  %s", name)
	}

	if t.Direction == model.DirectionCredit {
		b.WriteString("  " + cli.StyleSubtle("← in"))
	} else if t.Direction == model.DirectionDebit {
		b.WriteString("  " + cli.StyleSubtle("→ out"))
	}

	line := b.String()
	if t.Failure != nil {
		line = cli.StyleError(line + "  [" + t.Failure.ReturnCode + " " + t.Failure.Title + "]")
	}
	return line
}
