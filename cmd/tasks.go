package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/pipeline"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks <session-id>",
	Short: "Task audit trail for one session",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasks,
}

var tasksLimit int

func init() {
	tasksCmd.Flags().IntVarP(&tasksLimit, "limit", "l", 50, "Number of tasks to show")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(_ *cobra.Command, args []string) error {
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
	tasks := found.Tasks
	if tasksLimit > 0 && len(tasks) > tasksLimit {
		tasks = tasks[:tasksLimit]
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle(fmt.Sprintf("TASKS  %s (%s)", cli.Truncate(s.SessionID, 20), s.Project)))
	fmt.Println()

	rows := make([][]string, 0, len(tasks))
	for _, t := range tasks {
		outcome := "ok"
		if !t.Succeeded {
			outcome = "fail"
		}

		modelName := t.Model
		if t.Substituted {
			modelName += "*"
		}

		rows = append(rows, []string{
			t.CompletedAt.Local().Format("15:04:05"),
			cli.Truncate(t.TaskID, 16),
			cli.Truncate(modelName, 18),
			cli.Truncate(t.Category, 12),
			t.Level,
			outcome,
			cli.FormatTokens(t.TotalTokens()),
			cli.FormatMillis(float64(t.DurationMs)),
			cli.FormatCost(t.TotalCost),
		})
	}

	fmt.Print(cli.RenderTable(cli.Table{
		Headers: []string{"Completed", "Task", "Model", "Category", "Level", "Result", "Tokens", "Duration", "Cost"},
		Rows:    rows,
	}))

	if len(s.SubstitutedModels) > 0 {
		fmt.Println("  * priced with fallback entry")
	}
	fmt.Printf("\n  %d completed, %d pending, total %s\n\n",
		s.CompletedCount, s.PendingCount, cli.FormatCost(s.TotalCost))

	return nil
}
