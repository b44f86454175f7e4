package main

import (
	"fmt"
	"log/slog"

	"github.com/Veraticus/the-ledger-must-balance/internal/cli"
	"github.com/Veraticus/the-ledger-must-balance/internal/dwolla"
	"github.com/spf13/cobra"
)

func codesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "codes [code]",
		Short: "Look up ACH return codes",
		Long: `Explain ACH return codes: what they mean, whether the transfer can be
retried, and what to tell the customer. With no argument, lists every known
code.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCodes,
	}
}

func runCodes(_ *cobra.Command, args []string) error {
	if len(args) == 1 {
		info := dwolla.Classify(args[0])
		slog.Info(cli.RenderBox(info.ReturnCode+" — "+info.Title,
			fmt.Sprintf("Category:  %s\nRetryable: %v\nAction:    %s",
				info.Category, info.Retryable, info.UserAction)))
		return nil
	}

	slog.Info(cli.FormatTitle("ACH return codes"))
	for _, info := range dwolla.ReturnCodes() {
		retry := " "
		if info.Retryable {
			retry = "retryable"
		}
		slog.Info(fmt.Sprintf("%-4s %-55s %s", info.ReturnCode, info.Title, retry))
	}

	return nil
}
