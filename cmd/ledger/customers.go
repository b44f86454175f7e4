package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-ledger-must-balance/internal/cli"
	"github.com/Veraticus/the-ledger-must-balance/internal/dwolla"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func customersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "customers",
		Short: "List customers from the payment processor",
		RunE:  runCustomers,
	}

	cmd.Flags().IntP("limit", "l", 100, "Maximum number of customers to list (0 = all)")
	_ = viper.BindPFlag("customers.limit", cmd.Flags().Lookup("limit"))

	return cmd
}

func runCustomers(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	client, err := dwolla.NewClient(providerConfig())
	if err != nil {
		return fmt.Errorf("failed to create Dwolla client: %w", err)
	}

	customers, err := client.ListCustomers(ctx, viper.GetInt("customers.limit"))
	if err != nil {
		return fmt.Errorf("failed to list customers: %w", err)
	}

	if len(customers) == 0 {
		slog.Info(cli.FormatInfo("No customers found."))
		return nil
	}

	slog.Info(cli.FormatTitle(fmt.Sprintf("%d customers", len(customers))))
	for _, c := range customers {
		name := c.BusinessName
		if name == "" {
			name = c.FirstName + " " + c.LastName
		}
		slog.Info(fmt.Sprintf("%-38s %-30s %-10s %s", c.ID, name, c.Status, c.Email))
	}

	return nil
}
