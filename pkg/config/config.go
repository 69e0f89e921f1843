package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/spf13/viper"

	"quant-decision-core/pkg/types"
)

// ErrInvalidConfig 配置校验失败，加载时立即返回
var ErrInvalidConfig = errors.New("invalid configuration")

// Load 加载配置并校验
func Load() (*types.Config, error) {
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// 设置默认值
	setDefaults()

	// 读取环境变量
	viper.AutomaticEnv()

	// 优先尝试读取本地配置文件
	viper.SetConfigName("config.local")
	if err := viper.ReadInConfig(); err != nil {
		// 如果本地配置文件不存在，尝试读取默认配置文件
		viper.SetConfigName("config")
		if err := viper.ReadInConfig(); err != nil {
			var configFileNotFoundError viper.ConfigFileNotFoundError
			if !errors.As(err, &configFileNotFoundError) {
				return nil, err
			}
		}
	}

	var config types.Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if err := Validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验信号与风险配置，畸形配置在加载阶段失败而不是深入评估后失败
func Validate(cfg *types.Config) error {
	if err := ValidateSignal(&cfg.Signal); err != nil {
		return err
	}
	if err := ValidateRisk(&cfg.Risk); err != nil {
		return err
	}
	return nil
}

// ValidateSignal 校验信号配置。权重之和必须为1.0±0.001，
// 不做静默归一化，避免掩盖运维配置错误
func ValidateSignal(sc *types.SignalConfig) error {
	if sum := sc.WeightSum(); math.Abs(sum-1.0) > 1e-3 {
		return fmt.Errorf("%w: factor weights sum to %.4f, want 1.0", ErrInvalidConfig, sum)
	}
	for name, w := range map[string]float64{
		"trend":       sc.TrendWeight,
		"momentum":    sc.MomentumWeight,
		"volume":      sc.VolumeWeight,
		"volatility":  sc.VolatilityWeight,
		"derivatives": sc.DerivativesWeight,
	} {
		if w < 0 {
			return fmt.Errorf("%w: %s weight is negative", ErrInvalidConfig, name)
		}
	}
	if !(sc.WeakThreshold > 0 && sc.WeakThreshold <= sc.MediumThreshold && sc.MediumThreshold <= sc.StrongThreshold) {
		return fmt.Errorf("%w: thresholds must satisfy 0 < weak <= medium <= strong", ErrInvalidConfig)
	}
	if sc.MinConfidence < 0 || sc.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence out of [0,1]", ErrInvalidConfig)
	}
	if sc.StopLossATRMultiple <= 0 || sc.TakeProfitRatio <= 0 || sc.MaxLeverage <= 0 {
		return fmt.Errorf("%w: stop/target/leverage parameters must be positive", ErrInvalidConfig)
	}
	if sc.ExpiryMinutes <= 0 {
		return fmt.Errorf("%w: expiry_minutes must be positive", ErrInvalidConfig)
	}
	return nil
}

// ValidateRisk 校验风险配置
func ValidateRisk(rc *types.RiskConfig) error {
	if rc.InitialBalance <= 0 {
		return fmt.Errorf("%w: initial_balance must be positive", ErrInvalidConfig)
	}
	if rc.MaxRiskPerTrade <= 0 || rc.MaxRiskPerTrade > 1 {
		return fmt.Errorf("%w: max_risk_per_trade out of (0,1]", ErrInvalidConfig)
	}
	if rc.MaxTotalRisk < rc.MaxRiskPerTrade {
		return fmt.Errorf("%w: max_total_risk below max_risk_per_trade", ErrInvalidConfig)
	}
	if rc.MaxPositions <= 0 {
		return fmt.Errorf("%w: max_positions must be positive", ErrInvalidConfig)
	}
	if rc.MaxDrawdown <= 0 || rc.MaxDrawdown >= 1 {
		return fmt.Errorf("%w: max_drawdown out of (0,1)", ErrInvalidConfig)
	}
	if rc.EmergencyStopDrawdown < rc.MaxDrawdown {
		return fmt.Errorf("%w: emergency_stop_drawdown below max_drawdown", ErrInvalidConfig)
	}
	if rc.CooldownAfterLosses <= 0 || rc.CooldownDuration <= 0 {
		return fmt.Errorf("%w: cooldown parameters must be positive", ErrInvalidConfig)
	}
	if rc.MaxLeverage <= 0 {
		return fmt.Errorf("%w: max_leverage must be positive", ErrInvalidConfig)
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.file_path", "logs")
	viper.SetDefault("log.max_size", 200)
	viper.SetDefault("log.max_age", 30)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.compress", false)
	viper.SetDefault("log.console", true)

	viper.SetDefault("redis.url", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("network.proxy", "")
	viper.SetDefault("network.timeout", 30*time.Second)

	viper.SetDefault("engine.symbols", []string{"BTC-USDT-SWAP", "ETH-USDT-SWAP"})
	viper.SetDefault("engine.interval", "15m")
	viper.SetDefault("engine.buffer_size", 300)
	viper.SetDefault("engine.signal_chan_cap", 256)
	viper.SetDefault("engine.event_chan_cap", 256)

	viper.SetDefault("fetch.enabled", true)
	viper.SetDefault("fetch.interval", time.Minute)

	viper.SetDefault("signal.trend_weight", 0.30)
	viper.SetDefault("signal.momentum_weight", 0.25)
	viper.SetDefault("signal.volume_weight", 0.20)
	viper.SetDefault("signal.volatility_weight", 0.10)
	viper.SetDefault("signal.derivatives_weight", 0.15)
	viper.SetDefault("signal.strong_threshold", 3.5)
	viper.SetDefault("signal.medium_threshold", 2.5)
	viper.SetDefault("signal.weak_threshold", 1.5)
	viper.SetDefault("signal.min_confidence", 0.6)
	viper.SetDefault("signal.require_trend_confirm", true)
	viper.SetDefault("signal.require_volume_confirm", false)
	viper.SetDefault("signal.expiry_minutes", 60)
	viper.SetDefault("signal.stop_loss_atr_multiple", 2.0)
	viper.SetDefault("signal.take_profit_ratio", 2.0)
	viper.SetDefault("signal.max_leverage", 10)

	viper.SetDefault("risk.initial_balance", 10000)
	viper.SetDefault("risk.max_risk_per_trade", 0.02)
	viper.SetDefault("risk.max_total_risk", 0.06)
	viper.SetDefault("risk.max_positions", 3)
	viper.SetDefault("risk.max_drawdown", 0.20)
	viper.SetDefault("risk.emergency_stop_drawdown", 0.30)
	viper.SetDefault("risk.leverage_reduce_drawdown", 0.10)
	viper.SetDefault("risk.cooldown_after_losses", 3)
	viper.SetDefault("risk.cooldown_duration", 4*time.Hour)
	viper.SetDefault("risk.min_account_balance", 100)
	viper.SetDefault("risk.max_leverage", 10)

	viper.SetDefault("backtest.initial_balance", 10000)
	viper.SetDefault("backtest.commission_rate", 0.0005)
	viper.SetDefault("backtest.max_positions", 3)
	viper.SetDefault("backtest.max_risk_per_trade", 0.02)
	viper.SetDefault("backtest.snapshot_interval", 100)
	viper.SetDefault("backtest.progress_interval", 100)
}
