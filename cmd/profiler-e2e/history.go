package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded runs, newest first",
	RunE:  runHistory,
}

var (
	historyLimit int
	historyPrune time.Duration
)

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to list")
	historyCmd.Flags().DurationVar(&historyPrune, "prune", 0, "Delete runs older than this age, e.g. 720h")
}

func runHistory(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	defer application.Close()

	if application.Runs == nil {
		return errors.New("run ledger is disabled (store.enabled = false)")
	}

	ctx, cancel := signalContext()
	defer cancel()

	if historyPrune > 0 {
		deleted, err := application.Runs.DeleteRunsBefore(ctx, time.Now().Add(-historyPrune))
		if err != nil {
			return err
		}
		logger.Info().Int("deleted", deleted).Str("older_than", historyPrune.String()).Msg("Pruned run history")
	}

	runs, err := application.Runs.ListRuns(ctx, historyLimit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tTRIGGER\tRESULT\tDURATION\tFAILED")
	for _, run := range runs {
		result := "PASS"
		if !run.Passed {
			result = "FAIL"
		}
		failed := ""
		for i, s := range run.FailedScenarios() {
			if i > 0 {
				failed += ","
			}
			failed += fmt.Sprintf("%02d:%s", s.Number, s.Step)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			run.ID, run.StartedAt.Local().Format("2006-01-02 15:04:05"), run.Trigger, result,
			run.Duration().Round(time.Second), failed)
	}
	return w.Flush()
}
