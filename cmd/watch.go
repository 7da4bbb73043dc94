package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/config"
	"github.com/AngeloRai/genmeter/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Interactive live usage monitor",
	RunE:  runWatch,
}

var flagWatchInterval time.Duration

func init() {
	watchCmd.Flags().DurationVar(&flagWatchInterval, "interval", 30*time.Second, "Refresh interval")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(_ *cobra.Command, _ []string) error {
	cfg := loadedConfig()
	maxSession, maxTask := budgetLimits(cfg)

	m := tui.NewMonitor(tui.Options{
		DataDir:           flagDataDir,
		Days:              flagDays,
		Project:           flagProject,
		UseCache:          !flagNoCache,
		RefreshInterval:   flagWatchInterval,
		ParseOptions:      parseOptions(cfg),
		MaxSessionCostUSD: maxSession,
		MaxTaskCostUSD:    maxTask,
		BaseLevels:        baseLevels(cfg),
		Weights:           config.HealthWeights(cfg),
	})

	p := tea.NewProgram(m, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running monitor: %w", err)
	}
	return nil
}
