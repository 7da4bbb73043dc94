package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/pipeline"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Detailed usage summary with costs",
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(_ *cobra.Command, _ []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}

	if len(result.Sessions) == 0 {
		fmt.Println("\n  No generation sessions found.")
		fmt.Printf("  Expected JSONL logs under %s/sessions/\n", flagDataDir)
		return nil
	}

	filtered, since, until := applyFilters(result.Sessions)
	totals := pipeline.Aggregate(filtered, since, until)

	if totals.Sessions == 0 {
		fmt.Println("\n  No sessions found in the selected time range.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("GENERATION USAGE  Last %dd", flagDays)))
	fmt.Println()

	rows := [][]string{
		{"Sessions", cli.FormatNumber(int64(totals.Sessions))},
		{"Active", cli.FormatNumber(int64(totals.ActiveSessions))},
		{"Tasks", cli.FormatNumber(int64(totals.TaskCount))},
		{"Completed", cli.FormatNumber(int64(totals.CompletedTasks))},
		{"Success Rate", cli.FormatPercent(totals.SuccessRate)},
		{"---"},
		{"Tokens", cli.FormatTokens(totals.TotalTokens)},
		{"Total Cost", cli.FormatCost(totals.TotalCost)},
		{"Cost/day", cli.FormatCost(totals.CostPerDay)},
		{"Active Days", cli.FormatNumber(int64(totals.ActiveDays))},
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Metric", "Value"},
		Rows:    rows,
	}))

	if len(totals.SubstitutedModels) > 0 {
		fmt.Fprintf(os.Stderr, "\n  Fallback pricing used for: %s\n",
			strings.Join(totals.SubstitutedModels, ", "))
	}
	if result.FileErrors > 0 {
		fmt.Fprintf(os.Stderr, "\n  %d files could not be parsed\n", result.FileErrors)
	}
	if result.ParseErrors > 0 {
		fmt.Fprintf(os.Stderr, "  %d malformed log lines skipped\n", result.ParseErrors)
	}

	return nil
}
