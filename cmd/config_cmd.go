// Package cmd implements the genmeter CLI commands.
package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show current configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.ConfigPath())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Println("  [General]")
	fmt.Printf("    Default days:  %d\n", cfg.General.DefaultDays)
	fmt.Printf("    Data dir:      %s\n", config.DataDir(cfg))
	fmt.Println()

	fmt.Println("  [Budget]")
	if cfg.Budget.MaxSessionCostUSD != nil {
		fmt.Printf("    Session limit: $%.2f\n", *cfg.Budget.MaxSessionCostUSD)
	} else {
		fmt.Println("    Session limit: not set")
	}
	if cfg.Budget.MaxTaskCostUSD != nil {
		fmt.Printf("    Task limit:    $%.2f\n", *cfg.Budget.MaxTaskCostUSD)
	} else {
		fmt.Println("    Task limit:    not set")
	}
	if cfg.Budget.MonthlyUSD != nil {
		fmt.Printf("    Monthly:       $%.0f\n", *cfg.Budget.MonthlyUSD)
	} else {
		fmt.Println("    Monthly:       not set")
	}
	fmt.Println()

	fmt.Println("  [Governance]")
	weights := config.HealthWeights(cfg)
	fmt.Printf("    Index weights: reuse %.1f, ratio %.1f, simplicity %.1f\n",
		weights.BaseReusability, weights.BaseRatio, weights.CompositeSimplicity)
	levels := cfg.Governance.BaseLevels
	if len(levels) == 0 {
		fmt.Println("    Base levels:   atom, base (default)")
	} else {
		fmt.Printf("    Base levels:   %s\n", strings.Join(levels, ", "))
	}
	fmt.Println()

	if len(cfg.Pricing.Overrides) > 0 {
		fmt.Println("  [Pricing overrides]")
		models := make([]string, 0, len(cfg.Pricing.Overrides))
		for m := range cfg.Pricing.Overrides {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			ov := cfg.Pricing.Overrides[m]
			parts := []string{}
			if ov.InputPerMTok != nil {
				parts = append(parts, fmt.Sprintf("in $%.2f/MTok", *ov.InputPerMTok))
			}
			if ov.OutputPerMTok != nil {
				parts = append(parts, fmt.Sprintf("out $%.2f/MTok", *ov.OutputPerMTok))
			}
			fmt.Printf("    %s: %s\n", m, strings.Join(parts, ", "))
		}
		fmt.Println()
	}

	fmt.Println("  Run `genmeter setup` to reconfigure.")
	return nil
}
