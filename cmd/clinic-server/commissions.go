package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clinic/clinic/internal/domain/commission"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/validate"
)

// systemActor runs batch jobs started from the command line.
var systemActor = auth.NewActor(uuid.MustParse("00000000-0000-0000-0000-0000000051a0"), auth.RoleSupervisor)

func commissionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "commissions",
		Short: "Manage practitioner commissions",
	}

	calcCmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate the commissions of a period from a JSON batch",
		Long: `Reads a batch of the form
  {"currency": "EUR", "items": [{"practitioner_id": "...", "invoice_id": "...", "base_amount": "200.00"}]}
and stores one commission per item. Re-running a period recomputes due
commissions and fails on paid ones.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			period, _ := cmd.Flags().GetString("period")
			input, _ := cmd.Flags().GetString("input")
			if period == "" {
				return fmt.Errorf("--period is required")
			}

			batch, err := readBatch(cmd.InOrStdin(), input)
			if err != nil {
				return err
			}

			logger := newLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			inputs, err := batch.Inputs(cfg.Currency)
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := openPool(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			locks, closeLocks, err := newLocker(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeLocks()

			svcs, err := newServices(pool, locks, cfg, logger)
			if err != nil {
				return err
			}
			items, err := svcs.commissions.CalculatePeriod(ctx, systemActor, period, inputs)
			if err != nil {
				return err
			}
			return printCommissions(cmd.OutOrStdout(), items)
		},
	}
	calcCmd.Flags().String("period", "", "Period to calculate, YYYY-MM")
	calcCmd.Flags().String("input", "-", "Path to the JSON batch, - for stdin")

	cmd.AddCommand(calcCmd)
	return cmd
}

func readBatch(stdin io.Reader, path string) (*commission.BatchRequest, error) {
	r := stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open batch: %w", err)
		}
		defer f.Close()
		r = f
	}

	batch := &commission.BatchRequest{}
	if err := json.NewDecoder(r).Decode(batch); err != nil {
		return nil, fmt.Errorf("decode batch: %w", err)
	}
	if err := validate.New().Validate(batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func printCommissions(w io.Writer, items []*commission.Commission) error {
	fmt.Fprintf(w, "%-36s %-36s %-12s %-6s\n", "PRACTITIONER", "INVOICE", "AMOUNT", "STATUS")
	for _, c := range items {
		invoice := "-"
		if c.InvoiceID != nil {
			invoice = c.InvoiceID.String()
		}
		fmt.Fprintf(w, "%-36s %-36s %12s %-6s\n", c.PractitionerID, invoice, c.Amount.StringFixed(), c.Status)
	}
	_, err := fmt.Fprintf(w, "%d commission(s) calculated.\n", len(items))
	return err
}
