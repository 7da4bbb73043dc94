package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pipeline"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Usage breakdown by model",
	RunE:  runModels,
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "Usage breakdown by task category",
	RunE:  runCategories,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(categoriesCmd)
}

func runModels(_ *cobra.Command, _ []string) error {
	return runBreakdown("MODELS", "Model", pipeline.ByModel)
}

func runCategories(_ *cobra.Command, _ []string) error {
	return runBreakdown("CATEGORIES", "Category", pipeline.ByCategory)
}

func runBreakdown(title, keyHeader string, dim pipeline.Dimension) error {
	result, err := loadData()
	if err != nil {
		return err
	}
	if len(result.Sessions) == 0 {
		fmt.Println("\n  No sessions found.")
		return nil
	}

	filtered, since, until := applyFilters(result.Sessions)
	buckets := pipeline.AggregateBuckets(filtered, dim, since, until)

	if len(buckets) == 0 {
		fmt.Println("\n  No tasks in the selected time range.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("%s  Last %dd", title, flagDays)))
	fmt.Println()

	var totalCost float64
	for _, b := range buckets {
		totalCost += b.TotalCost
	}

	rows := make([][]string, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, bucketRow(b, totalCost))
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{keyHeader, "Tasks", "Success", "Tokens", "Avg Dur", "Cost", "Share"},
		Rows:    rows,
	}))

	return nil
}

func bucketRow(b model.RollupBucket, totalCost float64) []string {
	share := ""
	if totalCost > 0 {
		share = cli.FormatPercent(b.TotalCost / totalCost)
	}
	return []string{
		cli.Truncate(b.Key, 24),
		cli.FormatNumber(int64(b.TaskCount)),
		cli.FormatPercent(b.SuccessRate()),
		cli.FormatTokens(b.TotalTokens),
		cli.FormatMillis(b.AvgDurationMs),
		cli.FormatCost(b.TotalCost),
		share,
	}
}
