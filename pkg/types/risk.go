package types

import "time"

// 风险事件类型
const (
	RiskEventLimitExceeded   = "RISK_LIMIT_EXCEEDED"
	RiskEventMaxPositions    = "MAX_POSITIONS_REACHED"
	RiskEventDrawdownWarning = "DRAWDOWN_WARNING"
	RiskEventEmergencyStop   = "EMERGENCY_STOP"
	RiskEventCooldown        = "COOLDOWN_ACTIVATED"
	RiskEventLeverageReduced = "LEVERAGE_REDUCED"
)

// 风险事件级别
const (
	SeverityInfo     = "INFO"
	SeverityWarning  = "WARNING"
	SeverityCritical = "CRITICAL"
)

// 账户状态机状态
const (
	AccountActive    = "ACTIVE"
	AccountCooldown  = "COOLDOWN"
	AccountEmergency = "EMERGENCY"
)

// AccountStatus 账户状态，单账户一行，开平仓时串行修改
type AccountStatus struct {
	TotalBalance     float64 `json:"total_balance"`
	AvailableBalance float64 `json:"available_balance"`
	UnrealizedPnl    float64 `json:"unrealized_pnl"`
	RealizedPnl      float64 `json:"realized_pnl"`
	CurrentRisk      float64 `json:"current_risk"` // 聚合风险占比
	PeakBalance      float64 `json:"peak_balance"`
	MaxDrawdown      float64 `json:"max_drawdown"` // 距峰值最大回撤占比

	OpenPositions     int `json:"open_positions"`
	TotalTrades       int `json:"total_trades"`
	WinningTrades     int `json:"winning_trades"`
	LosingTrades      int `json:"losing_trades"`
	ConsecutiveLosses int `json:"consecutive_losses"`

	State           string    `json:"state"` // ACTIVE, COOLDOWN, EMERGENCY
	CooldownActive  bool      `json:"cooldown_active"`
	CooldownEndTime time.Time `json:"cooldown_end_time"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// DrawdownFromPeak 当前距峰值回撤占比
func (a *AccountStatus) DrawdownFromPeak() float64 {
	if a.PeakBalance <= 0 {
		return 0
	}
	dd := (a.PeakBalance - a.TotalBalance) / a.PeakBalance
	if dd < 0 {
		return 0
	}
	return dd
}

// RiskEvent 风险审计事件，只追加
type RiskEvent struct {
	EventType string    `json:"event_type"`
	Severity  string    `json:"severity"` // INFO, WARNING, CRITICAL
	Symbol    string    `json:"symbol"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`     // 触发值
	Threshold float64   `json:"threshold"` // 对应阈值
	Timestamp time.Time `json:"timestamp"`
}

// RiskCheckResult 开仓校验结果，拒绝是正常返回值而非错误
type RiskCheckResult struct {
	Approved           bool     `json:"approved"`
	Reason             string   `json:"reason"` // 拒绝原因，通过时为空
	Warnings           []string `json:"warnings,omitempty"`
	RecommendLeverage  float64  `json:"recommend_leverage,omitempty"` // 回撤触发的降杠杆建议
	TradeRiskPct       float64  `json:"trade_risk_pct"`               // 本笔风险占比
	RequiredMargin     float64  `json:"required_margin"`
	AggregateAfterOpen float64  `json:"aggregate_after_open"` // 开仓后的聚合风险占比
}
