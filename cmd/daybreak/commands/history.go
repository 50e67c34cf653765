package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/daybreak/internal/history"
)

var (
	historyLimitFlag    int
	historyProviderFlag string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent runs",
	Long:  `Show recent runs recorded in the local history database.`,
	RunE:  runHistory,
}

var historyTotalsCmd = &cobra.Command{
	Use:   "totals",
	Short: "Show aggregate usage per provider",
	RunE:  runHistoryTotals,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of runs to show")
	historyCmd.Flags().StringVarP(&historyProviderFlag, "provider", "p", "", "Filter by provider")
	historyCmd.AddCommand(historyTotalsCmd)
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.Recent(context.Background(), historyProviderFlag, historyLimitFlag)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPROVIDER\tEXIT\tTOKENS\tCOST\tDURATION")
	for _, rec := range records {
		cost := "-"
		if rec.Cost != nil {
			cost = fmt.Sprintf("$%.4f", *rec.Cost)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
			rec.CreatedAt.Local().Format("2006-01-02 15:04"),
			rec.Provider,
			rec.ExitCode,
			rec.InputTokens+rec.OutputTokens,
			cost,
			time.Duration(rec.DurationMs)*time.Millisecond,
		)
	}
	return w.Flush()
}

func runHistoryTotals(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return err
	}
	defer store.Close()

	totals, err := store.ProviderTotals(context.Background(), time.Time{})
	if err != nil {
		return err
	}
	if len(totals) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tRUNS\tFAILURES\tIN TOKENS\tOUT TOKENS\tCOST")
	for _, name := range names {
		t := totals[name]
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t$%.4f\n",
			name, t.Runs, t.Failures, t.InputTokens, t.OutputTokens, t.Cost)
	}
	return w.Flush()
}
