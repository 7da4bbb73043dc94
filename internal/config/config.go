// Package config loads and saves genmeter's TOML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/AngeloRai/genmeter/internal/model"
	"github.com/AngeloRai/genmeter/internal/pricing"
)

// Config holds all genmeter configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Budget     BudgetConfig     `toml:"budget"`
	Governance GovernanceConfig `toml:"governance"`
	Pricing    PricingOverrides `toml:"pricing"`
}

// GeneralConfig holds general preferences.
type GeneralConfig struct {
	DefaultDays int    `toml:"default_days"`
	DataDir     string `toml:"data_dir,omitempty"`
}

// BudgetConfig holds soft spending limits. All limits are advisory; zero or
// absent disables the respective check.
type BudgetConfig struct {
	MaxSessionCostUSD *float64 `toml:"max_session_cost_usd,omitempty"`
	MaxTaskCostUSD    *float64 `toml:"max_task_cost_usd,omitempty"`
	MonthlyUSD        *float64 `toml:"monthly_usd,omitempty"`
}

// GovernanceConfig tunes the hierarchy-health scoring. The coefficients are
// empirically chosen; override them only with your own calibration data.
type GovernanceConfig struct {
	BaseReuseWeight     *float64 `toml:"base_reuse_weight,omitempty"`
	BaseRatioWeight     *float64 `toml:"base_ratio_weight,omitempty"`
	SimplicityWeight    *float64 `toml:"simplicity_weight,omitempty"`
	ConfidenceTaskFloor *float64 `toml:"confidence_task_floor,omitempty"`
	BaseLevels          []string `toml:"base_levels,omitempty"`
}

// PricingOverrides allows user-defined pricing for specific models.
type PricingOverrides struct {
	Overrides map[string]ModelPricingOverride `toml:"overrides,omitempty"`
}

// ModelPricingOverride holds per-model pricing overrides.
type ModelPricingOverride struct {
	InputPerMTok  *float64 `toml:"input_per_mtok,omitempty"`
	OutputPerMTok *float64 `toml:"output_per_mtok,omitempty"`
	MaxTokens     *int     `toml:"max_tokens,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			DefaultDays: 30,
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "genmeter")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "genmeter")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(ConfigPath())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(ConfigPath(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}

// DataDir resolves the session-log directory: GENMETER_DATA_DIR env var,
// then config, then ~/.genmeter.
func DataDir(cfg Config) string {
	if dir := os.Getenv("GENMETER_DATA_DIR"); dir != "" {
		return dir
	}
	if cfg.General.DataDir != "" {
		return cfg.General.DataDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".genmeter")
}

// PricingEntries converts configured overrides into pricing table entries.
// Fields left unset fall back to the built-in entry for that model, or to
// zero when the model is unknown.
func PricingEntries(cfg Config) map[string]pricing.Entry {
	if len(cfg.Pricing.Overrides) == 0 {
		return nil
	}

	entries := make(map[string]pricing.Entry, len(cfg.Pricing.Overrides))
	for name, ov := range cfg.Pricing.Overrides {
		base := pricing.DefaultEntries[name]
		if ov.InputPerMTok != nil {
			base.InputPerMTok = *ov.InputPerMTok
		}
		if ov.OutputPerMTok != nil {
			base.OutputPerMTok = *ov.OutputPerMTok
		}
		if ov.MaxTokens != nil {
			base.MaxTokens = *ov.MaxTokens
		}
		entries[name] = base
	}
	return entries
}

// HealthWeights converts configured governance coefficients into scoring
// weights, filling gaps from the defaults.
func HealthWeights(cfg Config) model.HealthWeights {
	w := model.DefaultHealthWeights
	if cfg.Governance.BaseReuseWeight != nil {
		w.BaseReusability = *cfg.Governance.BaseReuseWeight
	}
	if cfg.Governance.BaseRatioWeight != nil {
		w.BaseRatio = *cfg.Governance.BaseRatioWeight
	}
	if cfg.Governance.SimplicityWeight != nil {
		w.CompositeSimplicity = *cfg.Governance.SimplicityWeight
	}
	return w
}

// ConfidenceFloor returns the configured projection confidence task floor,
// or 0 when unset. Zero tells analytics.ProjectWithFloor to use its default.
func ConfidenceFloor(cfg Config) float64 {
	if cfg.Governance.ConfidenceTaskFloor != nil {
		return *cfg.Governance.ConfidenceTaskFloor
	}
	return 0
}

// BaseLevels returns the configured base hierarchy levels, or the defaults.
func BaseLevels(cfg Config) map[string]bool {
	if len(cfg.Governance.BaseLevels) == 0 {
		return nil
	}
	levels := make(map[string]bool, len(cfg.Governance.BaseLevels))
	for _, l := range cfg.Governance.BaseLevels {
		levels[l] = true
	}
	return levels
}
