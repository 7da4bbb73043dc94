package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/config"
	"github.com/AngeloRai/genmeter/internal/source"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "First-time setup wizard",
	RunE:  runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(_ *cobra.Command, _ []string) error {
	cfg, _ := config.Load()

	files, _ := source.ScanDir(flagDataDir)
	projectCount := source.CountProjects(files)

	fmt.Println()
	fmt.Println("  Welcome to genmeter!")
	if len(files) > 0 {
		fmt.Printf("  Found %d session logs in %s (%d projects)\n",
			len(files), flagDataDir, projectCount)
	}
	fmt.Println()

	days := strconv.Itoa(cfg.General.DefaultDays)
	dataDir := cfg.General.DataDir

	sessionBudget := ""
	if cfg.Budget.MaxSessionCostUSD != nil {
		sessionBudget = fmt.Sprintf("%.2f", *cfg.Budget.MaxSessionCostUSD)
	}
	taskBudget := ""
	if cfg.Budget.MaxTaskCostUSD != nil {
		taskBudget = fmt.Sprintf("%.2f", *cfg.Budget.MaxTaskCostUSD)
	}

	validateBudget := func(s string) error {
		if strings.TrimSpace(s) == "" {
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || v < 0 {
			return fmt.Errorf("enter a non-negative dollar amount")
		}
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default time range").
				Options(
					huh.NewOption("7 days", "7"),
					huh.NewOption("30 days", "30"),
					huh.NewOption("90 days", "90"),
				).
				Value(&days),
			huh.NewInput().
				Title("Session log directory").
				Description("Leave blank to use ~/.genmeter").
				Value(&dataDir),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Per-session budget (USD)").
				Description("Soft limit; warnings only. Blank disables.").
				Validate(validateBudget).
				Value(&sessionBudget),
			huh.NewInput().
				Title("Per-task budget (USD)").
				Description("Soft limit over recent tasks. Blank disables.").
				Validate(validateBudget).
				Value(&taskBudget),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup form: %w", err)
	}

	if n, err := strconv.Atoi(days); err == nil {
		cfg.General.DefaultDays = n
	}
	cfg.General.DataDir = strings.TrimSpace(dataDir)
	cfg.Budget.MaxSessionCostUSD = parseBudget(sessionBudget)
	cfg.Budget.MaxTaskCostUSD = parseBudget(taskBudget)

	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Println()
	fmt.Printf("  Saved to %s\n", config.ConfigPath())
	fmt.Println("  Run `genmeter setup` anytime to reconfigure.")
	fmt.Println()

	return nil
}

func parseBudget(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}
