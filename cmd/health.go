package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/analytics"
	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/pipeline"
)

var healthCmd = &cobra.Command{
	Use:   "health <session-id>",
	Short: "Hierarchy health assessment for one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHealth,
}

func init() {
	rootCmd.AddCommand(healthCmd)
}

func runHealth(_ *cobra.Command, args []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}

	var found *pipeline.SessionRecord
	for i := range result.Sessions {
		if strings.HasPrefix(result.Sessions[i].Summary.SessionID, args[0]) {
			if found != nil {
				return fmt.Errorf("session id %q is ambiguous", args[0])
			}
			found = &result.Sessions[i]
		}
	}
	if found == nil {
		return fmt.Errorf("no session matching %q", args[0])
	}

	s := found.Summary
	base := baseLevels(loadedConfig())

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("HEALTH  %s (%s)", cli.Truncate(s.SessionID, 20), s.Project)))
	fmt.Println()

	if len(s.Health.Levels) == 0 {
		fmt.Println("  No classified tasks in this session.")
		fmt.Println()
		return nil
	}

	fmt.Print(cli.RenderTable(levelTable(s.Health, base)))

	assessment := analytics.AssessHealth(s.Health, base)

	fmt.Println()
	fmt.Printf("  Reusability index: %s   Tier: %s   Base ratio: %s\n",
		cli.FormatScore(s.Health.ReusabilityIndex),
		cli.RenderTier(assessment.Tier),
		cli.FormatPercent(s.Health.BaseRatio),
	)
	fmt.Printf("  Base-first: %s   Reusability focus: %s   Simplicity: %s\n",
		yesNo(assessment.BaseFirst),
		yesNo(assessment.ReusabilityFocus),
		yesNo(assessment.SimplicityMaintained),
	)
	for _, rec := range assessment.Recommendations {
		fmt.Printf("  • %s\n", rec)
	}
	fmt.Println()

	return nil
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
