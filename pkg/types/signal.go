package types

import "time"

// 信号方向
const (
	SignalLong       = "LONG"
	SignalShort      = "SHORT"
	SignalNeutral    = "NEUTRAL"
	SignalCloseLong  = "CLOSE_LONG"
	SignalCloseShort = "CLOSE_SHORT"
)

// 信号强度档位
const (
	StrengthWeak       = "WEAK"
	StrengthMedium     = "MEDIUM"
	StrengthStrong     = "STRONG"
	StrengthVeryStrong = "VERY_STRONG"
)

// 因子名称
const (
	FactorTrend       = "trend"
	FactorMomentum    = "momentum"
	FactorVolume      = "volume"
	FactorVolatility  = "volatility"
	FactorDerivatives = "derivatives"
)

// FactorScore 单因子评分，每次评估新建，不复用
type FactorScore struct {
	Name       string             `json:"name"`
	Raw        float64            `json:"raw"`      // 原始分，限制在[-5, +5]
	Weight     float64            `json:"weight"`   // 配置权重
	Weighted   float64            `json:"weighted"` // raw * weight
	Reasons    []string           `json:"reasons"`  // 可读的评分依据
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// TradingSignal 交易信号，只追加不修改（过期清扫和显式失效除外）
type TradingSignal struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval"`
	Timestamp  time.Time `json:"timestamp"`
	Price      float64   `json:"price"`
	SignalType string    `json:"signal_type"` // LONG, SHORT, NEUTRAL, CLOSE_LONG, CLOSE_SHORT
	Strength   string    `json:"strength"`    // WEAK, MEDIUM, STRONG, VERY_STRONG
	Confidence float64   `json:"confidence"`  // [0, 1]
	TotalScore float64   `json:"total_score"`

	TrendScore       float64 `json:"trend_score"`
	MomentumScore    float64 `json:"momentum_score"`
	VolumeScore      float64 `json:"volume_score"`
	VolatilityScore  float64 `json:"volatility_score"`
	DerivativesScore float64 `json:"derivatives_score"`

	Indicators map[string]float64 `json:"indicators,omitempty"` // 评估时使用的指标值快照

	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	Leverage   float64 `json:"leverage"`
	RiskReward float64 `json:"risk_reward"`

	Active    bool      `json:"active"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsLong 是否做多方向
func (s *TradingSignal) IsLong() bool {
	return s.SignalType == SignalLong
}

// IsShort 是否做空方向
func (s *TradingSignal) IsShort() bool {
	return s.SignalType == SignalShort
}
