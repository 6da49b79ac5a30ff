package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/warp/payroll-sync/store/sqlite"
)

var (
	historyStatus string
	historyLimit  int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List recent runs, or show one run's outcomes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  showHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status (running, completed, failed)")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum runs to list")
}

func showHistory(cmd *cobra.Command, args []string) error {
	store, err := sqlite.New(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	defer w.Flush()

	if len(args) == 1 {
		run, err := store.GetRun(ctx, args[0])
		if err != nil {
			return err
		}
		outcomes, err := store.ListOutcomes(ctx, run.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Run %s\t%s\tperiod %s\n\n", run.ID, run.Status, run.Period)
		fmt.Fprintln(w, "PIN\tPASS\tACTION\tRESULT\tPAYROLL\tHOURS\tREASON")
		for _, o := range outcomes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				o.EmployeePIN, o.Pass, o.Action, o.Result, o.PayrollID, o.TotalHours.String(), o.Reason)
		}
		return nil
	}

	runs, err := store.ListRuns(ctx, historyStatus, historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintln(w, "STARTED\tRUN\tSTATUS\tPERIOD\tCREATED\tUPDATED\tUNCHANGED\tSKIPPED\tFAILED")
	for _, r := range runs {
		id := r.ID
		if r.DryRun {
			id += " (dry run)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			r.StartedAt.Local().Format(time.DateTime), id, r.Status, r.Period,
			r.Counts.Created, r.Counts.Updated, r.Counts.Unchanged, r.Counts.Skipped, r.Counts.Failed)
	}
	return nil
}
