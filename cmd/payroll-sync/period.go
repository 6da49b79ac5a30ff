package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-sync/generic"
)

var periodCmd = &cobra.Command{
	Use:   "period [date]",
	Short: "Print the pay period and payment date for a date",
	Long: `Prints the canonical bi-weekly period containing the date (default:
today in the business timezone) and the Monday it is paid on.

Accepts YYYY-MM-DD or M/D/YYYY.`,
	Args: cobra.MaximumNArgs(1),
	RunE: printPeriod,
}

func printPeriod(cmd *cobra.Command, args []string) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	cal, err := cfg.Calendar()
	if err != nil {
		return err
	}

	date := generic.DayOf(time.Now().In(loc))
	if len(args) == 1 {
		if date, err = generic.ParseDate(args[0]); err != nil {
			return err
		}
	}

	p := cal.PeriodFor(date)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Date:          %s\n", date)
	fmt.Fprintf(out, "Pay period:    %s to %s\n", p.Start, p.End)
	fmt.Fprintf(out, "Payment date:  %s\n", cal.PaymentDate(p.End))
	fmt.Fprintf(out, "Cycle:         %d (reference %s)\n", cal.CycleIndex(date), cal.Reference)
	return nil
}
