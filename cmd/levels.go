package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/config"
	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pipeline"
)

var levelsCmd = &cobra.Command{
	Use:   "levels",
	Short: "Hierarchy health by classification level",
	RunE:  runLevels,
}

func init() {
	rootCmd.AddCommand(levelsCmd)
}

func runLevels(_ *cobra.Command, _ []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}
	if len(result.Sessions) == 0 {
		fmt.Println("\n  No sessions found.")
		return nil
	}

	cfg := loadedConfig()
	base := baseLevels(cfg)
	weights := config.HealthWeights(cfg)

	filtered, since, until := applyFilters(result.Sessions)
	health := pipeline.AggregateHealth(filtered, base, weights, since, until)

	if len(health.Levels) == 0 {
		fmt.Println("\n  No classified tasks in the selected time range.")
		return nil
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("HIERARCHY HEALTH  Last %dd", flagDays)))
	fmt.Println()

	fmt.Print(cli.RenderTable(levelTable(health, base)))

	assessment := analytics.AssessHealth(health, base)

	fmt.Println()
	fmt.Printf("  Reusability index: %s   Tier: %s   Base ratio: %s\n",
		cli.FormatScore(health.ReusabilityIndex),
		cli.RenderTier(assessment.Tier),
		cli.FormatPercent(health.BaseRatio),
	)
	for _, rec := range assessment.Recommendations {
		fmt.Printf("  • %s\n", rec)
	}
	fmt.Println()

	return nil
}

// levelTable renders per-level health stats with base levels first, then
// composites alphabetically.
func levelTable(health model.HierarchyHealth, base map[string]bool) cli.Table {
	levels := make([]string, 0, len(health.Levels))
	for level := range health.Levels {
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool {
		bi, bj := base[levels[i]], base[levels[j]]
		if bi != bj {
			return bi
		}
		return levels[i] < levels[j]
	})

	rows := make([][]string, 0, len(levels))
	for _, level := range levels {
		ls := health.Levels[level]

		kind := "composite"
		if base[level] {
			kind = "base"
		}
		reuse := "-"
		if ls.ReuseArtifacts > 0 {
			reuse = cli.FormatScore(ls.AvgReusability)
		}
		complexity := "-"
		if ls.ComplexityArtifacts > 0 {
			complexity = cli.FormatScore(ls.AvgComplexity)
		}

		rows = append(rows, []string{
			level,
			kind,
			cli.FormatNumber(int64(ls.Tasks)),
			cli.FormatNumber(int64(ls.Artifacts)),
			reuse,
			complexity,
			cli.FormatCost(ls.CostPerArtifact),
			cli.FormatCost(ls.TotalCost),
		})
	}

	return cli.Table{
		Headers: []string{"Level", "Kind", "Tasks", "Artifacts", "Reuse", "Complexity", "$/Artifact", "Cost"},
		Rows:    rows,
	}
}
