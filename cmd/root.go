package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AngeloRai/genmeter/internal/cli"
	"github.com/AngeloRai/genmeter/internal/config"
	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pipeline"
	"github.com/AngeloRai/genmeter/internal/source"
	"github.com/AngeloRai/genmeter/internal/store"
)

var (
	flagDays    int
	flagProject string
	flagModel   string
	flagNoCache bool
	flagDataDir string
	flagQuiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "genmeter",
	Short: "Generation usage accounting CLI",
	Long:  "Meter cost, tokens, and hierarchy health across component generation sessions.",
	RunE:  runSummary,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cfg := loadedConfig()

	rootCmd.PersistentFlags().IntVarP(&flagDays, "days", "n", cfg.General.DefaultDays, "Time window in days")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "", "Filter to project (substring match)")
	rootCmd.PersistentFlags().StringVarP(&flagModel, "model", "m", "", "Filter to model (substring match)")
	rootCmd.PersistentFlags().BoolVar(&flagNoCache, "no-cache", false, "Skip SQLite cache, reparse everything")
	rootCmd.PersistentFlags().StringVarP(&flagDataDir, "data-dir", "d", config.DataDir(cfg), "Session log directory")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// loadedConfig reads the config once, falling back to defaults on error so
// the CLI always starts.
func loadedConfig() config.Config {
	cfg, err := config.Load()
	if err != nil {
		return config.DefaultConfig()
	}
	return cfg
}

func parseOptions(cfg config.Config) source.ParseOptions {
	return source.ParseOptions{
		PricingOverrides: config.PricingEntries(cfg),
		Weights:          config.HealthWeights(cfg),
		BaseLevels:       cfg.Governance.BaseLevels,
	}
}

// loadData is the shared data loading path used by all commands.
// Uses the SQLite cache when available for fast subsequent runs.
func loadData() (*pipeline.LoadResult, error) {
	cfg := loadedConfig()
	opts := parseOptions(cfg)

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Scanning session logs...\n")
	}

	progressFn := func(current, total int) {
		if flagQuiet {
			return
		}
		if current%100 == 0 || current == total {
			fmt.Fprintf(os.Stderr, "\r  Parsing [%d/%d]", current, total)
		}
	}

	// Try cached load unless --no-cache
	if !flagNoCache {
		cache, err := store.Open(pipeline.CachePath())
		if err != nil {
			if !flagQuiet {
				fmt.Fprintf(os.Stderr, "  Cache unavailable, doing full parse\n")
			}
		} else {
			defer func() { _ = cache.Close() }()

			cr, err := pipeline.LoadWithCache(flagDataDir, opts, cache, progressFn)
			if err != nil {
				if !flagQuiet {
					fmt.Fprintf(os.Stderr, "\n  Cache error, falling back to full parse\n")
				}
			} else {
				if !flagQuiet && cr.TotalFiles > 0 {
					if cr.Reparsed == 0 {
						fmt.Fprintf(os.Stderr, "\r  Loaded %s sessions from cache (%d projects)    \n",
							cli.FormatNumber(int64(len(cr.Sessions))),
							cr.ProjectCount,
						)
					} else {
						fmt.Fprintf(os.Stderr, "\r  %s cached + %d reparsed (%d projects)    \n",
							cli.FormatNumber(int64(cr.CacheHits)),
							cr.Reparsed,
							cr.ProjectCount,
						)
					}
				}
				return &cr.LoadResult, nil
			}
		}
	}

	result, err := pipeline.Load(flagDataDir, opts, progressFn)
	if err != nil {
		return nil, err
	}

	if !flagQuiet && result.TotalFiles > 0 {
		fmt.Fprintf(os.Stderr, "\r  Parsed %s sessions across %d projects    \n",
			cli.FormatNumber(int64(result.ParsedFiles)),
			result.ProjectCount,
		)
	}

	return result, nil
}

// applyFilters returns filtered sessions and the computed time range.
func applyFilters(sessions []pipeline.SessionRecord) ([]pipeline.SessionRecord, time.Time, time.Time) {
	now := time.Now()
	since := now.AddDate(0, 0, -flagDays)
	until := now

	filtered := sessions
	if flagProject != "" {
		filtered = pipeline.FilterByProject(filtered, flagProject)
	}
	if flagModel != "" {
		filtered = pipeline.FilterByModel(filtered, flagModel)
	}

	return filtered, since, until
}

// budgetLimits resolves the configured soft limits.
func budgetLimits(cfg config.Config) (maxSession, maxTask float64) {
	if cfg.Budget.MaxSessionCostUSD != nil {
		maxSession = *cfg.Budget.MaxSessionCostUSD
	}
	if cfg.Budget.MaxTaskCostUSD != nil {
		maxTask = *cfg.Budget.MaxTaskCostUSD
	}
	return maxSession, maxTask
}

func baseLevels(cfg config.Config) map[string]bool {
	if levels := config.BaseLevels(cfg); levels != nil {
		return levels
	}
	return model.DefaultBaseLevels
}
