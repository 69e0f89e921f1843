package config

import (
	"errors"
	"testing"
	"time"

	"quant-decision-core/pkg/types"
)

func validSignalConfig() types.SignalConfig {
	return types.SignalConfig{
		TrendWeight:       0.30,
		MomentumWeight:    0.25,
		VolumeWeight:      0.20,
		VolatilityWeight:  0.10,
		DerivativesWeight: 0.15,

		WeakThreshold:   1.5,
		MediumThreshold: 2.5,
		StrongThreshold: 3.5,

		MinConfidence:       0.6,
		ExpiryMinutes:       60,
		StopLossATRMultiple: 2.0,
		TakeProfitRatio:     2.0,
		MaxLeverage:         10,
	}
}

func validRiskConfig() types.RiskConfig {
	return types.RiskConfig{
		InitialBalance:         10000,
		MaxRiskPerTrade:        0.02,
		MaxTotalRisk:           0.06,
		MaxPositions:           3,
		MaxDrawdown:            0.20,
		EmergencyStopDrawdown:  0.30,
		LeverageReduceDrawdown: 0.10,
		CooldownAfterLosses:    3,
		CooldownDuration:       4 * time.Hour,
		MinAccountBalance:      100,
		MaxLeverage:            10,
	}
}

func TestValidateSignalOK(t *testing.T) {
	cfg := validSignalConfig()
	if err := ValidateSignal(&cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

// 权重之和偏离1.0超过0.001必须拒绝，不做静默归一化
func TestValidateSignalWeightSum(t *testing.T) {
	cfg := validSignalConfig()
	cfg.TrendWeight = 0.20 // 总和0.9

	err := ValidateSignal(&cfg)
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateSignalNegativeWeight(t *testing.T) {
	cfg := validSignalConfig()
	cfg.TrendWeight = -0.1
	cfg.MomentumWeight = 0.65 // 总和仍为1.0

	if err := ValidateSignal(&cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateSignalThresholdOrder(t *testing.T) {
	cfg := validSignalConfig()
	cfg.WeakThreshold = 3.0
	cfg.MediumThreshold = 2.0

	if err := ValidateSignal(&cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateSignalConfidenceRange(t *testing.T) {
	cfg := validSignalConfig()
	cfg.MinConfidence = 1.5

	if err := ValidateSignal(&cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err = %v, want ErrInvalidConfig", err)
	}
}

func TestValidateRiskOK(t *testing.T) {
	cfg := validRiskConfig()
	if err := ValidateRisk(&cfg); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestValidateRisk(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*types.RiskConfig)
	}{
		{"zero initial balance", func(c *types.RiskConfig) { c.InitialBalance = 0 }},
		{"total below per-trade", func(c *types.RiskConfig) { c.MaxTotalRisk = 0.01 }},
		{"zero positions", func(c *types.RiskConfig) { c.MaxPositions = 0 }},
		{"drawdown out of range", func(c *types.RiskConfig) { c.MaxDrawdown = 1.2 }},
		{"emergency below max drawdown", func(c *types.RiskConfig) { c.EmergencyStopDrawdown = 0.1 }},
		{"zero cooldown duration", func(c *types.RiskConfig) { c.CooldownDuration = 0 }},
		{"zero leverage", func(c *types.RiskConfig) { c.MaxLeverage = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validRiskConfig()
			tc.mutate(&cfg)
			if err := ValidateRisk(&cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}
