package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/pipeline"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session list with details",
	RunE:  runSessions,
}

var sessionsLimit int

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "l", 20, "Number of sessions to show")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(_ *cobra.Command, _ []string) error {
	result, err := loadData()
	if err != nil {
		return err
	}
	if len(result.Sessions) == 0 {
		fmt.Println("\n  No sessions found.")
		return nil
	}

	filtered, since, until := applyFilters(result.Sessions)
	sessions := pipeline.FilterByTime(filtered, since, until)

	if len(sessions) == 0 {
		fmt.Println("\n  No sessions in the selected time range.")
		return nil
	}

	pipeline.SortSessionsByStart(sessions)
	if sessionsLimit > 0 && len(sessions) > sessionsLimit {
		sessions = sessions[:sessionsLimit]
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("SESSIONS  Last %dd (showing %d)", flagDays, len(sessions))))
	fmt.Println()

	rows := make([][]string, 0, len(sessions))
	for _, sr := range sessions {
		s := sr.Summary

		startStr := ""
		if !s.StartedAt.IsZero() {
			startStr = s.StartedAt.Local().Format("Jan 02 15:04")
		}

		state := "ended"
		if s.Active {
			state = "active"
		}

		var elapsed time.Duration
		if s.Active {
			elapsed = time.Since(s.StartedAt)
		} else {
			elapsed = s.EndedAt.Sub(s.StartedAt)
		}

		rows = append(rows, []string{
			startStr,
			cli.Truncate(s.Project, 14),
			cli.Truncate(s.SessionID, 12),
			state,
			fmt.Sprintf("%d/%d", s.CompletedCount, s.TaskCount),
			cli.FormatDuration(elapsed),
			cli.FormatTokens(s.TotalTokens),
			cli.FormatCost(s.TotalCost),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Start", "Project", "Session", "State", "Tasks", "Duration", "Tokens", "Cost"},
		Rows:    rows,
	}))

	return nil
}
