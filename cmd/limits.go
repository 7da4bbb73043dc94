package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/pipeline"
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Check sessions against configured soft budgets",
	RunE:  runLimits,
}

var (
	flagMaxSessionCost float64
	flagMaxTaskCost    float64
)

func init() {
	limitsCmd.Flags().Float64Var(&flagMaxSessionCost, "max-session-cost", 0, "Per-session budget in USD (overrides config)")
	limitsCmd.Flags().Float64Var(&flagMaxTaskCost, "max-task-cost", 0, "Per-task budget in USD (overrides config)")
	rootCmd.AddCommand(limitsCmd)
}

func runLimits(_ *cobra.Command, _ []string) error {
	cfg := loadedConfig()
	maxSession, maxTask := budgetLimits(cfg)
	if flagMaxSessionCost > 0 {
		maxSession = flagMaxSessionCost
	}
	if flagMaxTaskCost > 0 {
		maxTask = flagMaxTaskCost
	}

	if maxSession <= 0 && maxTask <= 0 {
		fmt.Println("\n  No budgets configured.")
		fmt.Println("  Set [budget] max_session_cost_usd / max_task_cost_usd in the config,")
		fmt.Println("  or pass --max-session-cost / --max-task-cost.")
		return nil
	}

	result, err := loadData()
	if err != nil {
		return err
	}

	filtered, since, until := applyFilters(result.Sessions)
	sessions := pipeline.FilterByTime(filtered, since, until)
	pipeline.SortSessionsByStart(sessions)

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("BUDGET CHECK  Last %dd", flagDays)))
	fmt.Println()

	var warned int
	for _, sr := range sessions {
		warnings := analytics.CheckStoredLimits(sr.Summary, sr.Tasks, maxSession, maxTask)
		if len(warnings) == 0 {
			continue
		}
		warned++

		fmt.Printf("  %s (%s, %s)\n",
			cli.Truncate(sr.Summary.SessionID, 20),
			sr.Summary.Project,
			cli.FormatCost(sr.Summary.TotalCost),
		)
		for _, w := range warnings {
			fmt.Print("    ")
			fmt.Print(cli.RenderWarning(w))
		}
	}

	if warned == 0 {
		fmt.Printf("  All %d sessions within budget.\n", len(sessions))
	} else {
		fmt.Printf("\n  %d of %d sessions raised warnings.\n", warned, len(sessions))
	}
	fmt.Println()

	return nil
}
