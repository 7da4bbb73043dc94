package config

import (
	"testing"

	"github.com/AngeloRai/genmeter/internal/model"
)

func f(v float64) *float64 { return &v }

func TestPricingEntriesLayersOverDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Pricing.Overrides = map[string]ModelPricingOverride{
		"gpt-4o":       {InputPerMTok: f(1.25)},
		"custom-model": {InputPerMTok: f(5), OutputPerMTok: f(20)},
	}

	entries := PricingEntries(cfg)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	// Partial override keeps the built-in output rate.
	if entries["gpt-4o"].InputPerMTok != 1.25 || entries["gpt-4o"].OutputPerMTok != 10.00 {
		t.Fatalf("gpt-4o = %+v", entries["gpt-4o"])
	}
	if entries["custom-model"].OutputPerMTok != 20 {
		t.Fatalf("custom-model = %+v", entries["custom-model"])
	}
}

func TestPricingEntriesEmpty(t *testing.T) {
	if got := PricingEntries(DefaultConfig()); got != nil {
		t.Fatalf("PricingEntries = %v, want nil", got)
	}
}

func TestHealthWeightsFillsDefaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Governance.BaseRatioWeight = f(2.5)

	w := HealthWeights(cfg)
	if w.BaseRatio != 2.5 {
		t.Fatalf("BaseRatio = %v, want 2.5", w.BaseRatio)
	}
	if w.BaseReusability != model.DefaultHealthWeights.BaseReusability {
		t.Fatalf("BaseReusability = %v, want default", w.BaseReusability)
	}
}

func TestConfidenceFloor(t *testing.T) {
	cfg := DefaultConfig()
	if got := ConfidenceFloor(cfg); got != 0 {
		t.Fatalf("ConfidenceFloor = %v, want 0 when unset", got)
	}

	cfg.Governance.ConfidenceTaskFloor = f(8)
	if got := ConfidenceFloor(cfg); got != 8 {
		t.Fatalf("ConfidenceFloor = %v, want 8", got)
	}
}

func TestBaseLevels(t *testing.T) {
	cfg := DefaultConfig()
	if BaseLevels(cfg) != nil {
		t.Fatal("unset base levels should return nil")
	}

	cfg.Governance.BaseLevels = []string{"primitive", "token"}
	levels := BaseLevels(cfg)
	if !levels["primitive"] || !levels["token"] || levels["atom"] {
		t.Fatalf("levels = %v", levels)
	}
}
