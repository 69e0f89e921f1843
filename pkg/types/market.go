package types

import "time"

// KLine K线数据结构（已收盘K线，含衍生CVD）
type KLine struct {
	Symbol    string    `json:"symbol"`
	OpenTime  time.Time `json:"open_time"`
	CloseTime time.Time `json:"close_time"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	CVD       float64   `json:"cvd"`      // 累计成交量差额
	Interval  string    `json:"interval"` // 15m
}

// DerivativesMetrics 衍生品指标数据（资金费率、持仓量）
type DerivativesMetrics struct {
	Symbol           string    `json:"symbol"`
	FundingRate      float64   `json:"funding_rate"`       // 当前资金费率
	OpenInterest     float64   `json:"open_interest"`      // 当前持仓量
	PrevOpenInterest float64   `json:"prev_open_interest"` // 上一周期持仓量
	UpdatedAt        time.Time `json:"updated_at"`
}

// OpenInterestChangePct 持仓量变化百分比
func (d *DerivativesMetrics) OpenInterestChangePct() float64 {
	if d.PrevOpenInterest == 0 {
		return 0
	}
	return (d.OpenInterest - d.PrevOpenInterest) / d.PrevOpenInterest * 100
}
