package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/springboardpro/clearbooks/internal/report"
	"github.com/springboardpro/clearbooks/pkg/clearbooks"
)

const (
	moneyLookbackDays     = 28
	timesheetLookbackDays = 365
)

func init() {
	rootCmd.AddCommand(
		moneyCommand("bills", "Prints recent bills with total VAT and net averages.", clearbooks.Bills),
		moneyCommand("invoices", "Prints recent invoices with total VAT and net averages.", clearbooks.Invoices),
		moneyCommand("purchase-orders", "Prints recent purchase orders with total VAT and net averages.", clearbooks.PurchaseOrders),
		timesheetsCmd,
	)
}

func moneyCommand(use, short string, resource clearbooks.Resource) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t, err := fetch(cmd, resource, moneyLookbackDays)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			renderHead(out, t, headFlag)

			summary, err := report.Money(t)
			if err != nil {
				return fmt.Errorf("summarise %s: %w", resource, err)
			}
			renderMoney(out, summary)
			return nil
		},
	}
}

var timesheetsCmd = &cobra.Command{
	Use:   "timesheets",
	Short: "Prints timesheet entries and the working days booked per employee.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		t, err := fetch(cmd, clearbooks.Timesheets, timesheetLookbackDays)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		renderHead(out, t, headFlag)

		days, err := report.WorkingDaysByEmployee(t)
		if err != nil {
			return fmt.Errorf("summarise timesheets: %w", err)
		}
		renderEmployeeDays(out, days)
		return nil
	},
}
