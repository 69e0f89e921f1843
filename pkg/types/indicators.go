package types

import "time"

// IndicatorSnapshot 指标快照，每个(symbol, interval, 收盘K线)一份，计算后不可变
type IndicatorSnapshot struct {
	Symbol    string    `json:"symbol"`
	Interval  string    `json:"interval"`
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Volume    float64   `json:"volume"`

	EMA12  float64  `json:"ema12"`
	EMA26  float64  `json:"ema26"`
	EMA50  *float64 `json:"ema50,omitempty"`  // 历史不足时为空
	EMA200 *float64 `json:"ema200,omitempty"` // 历史不足时为空
	SMA20  float64  `json:"sma20"`

	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`

	RSI float64 `json:"rsi"`
	ATR float64 `json:"atr"`

	BollUpper  float64 `json:"boll_upper"`
	BollMiddle float64 `json:"boll_middle"`
	BollLower  float64 `json:"boll_lower"`

	VWAP float64 `json:"vwap"`
	CVD  float64 `json:"cvd"`
}

// BollWidth 布林带宽度
func (s *IndicatorSnapshot) BollWidth() float64 {
	return s.BollUpper - s.BollLower
}

// PercentB 价格在布林带内的位置，0=下轨 1=上轨
func (s *IndicatorSnapshot) PercentB() float64 {
	width := s.BollWidth()
	if width == 0 {
		return 0.5
	}
	return (s.Price - s.BollLower) / width
}
