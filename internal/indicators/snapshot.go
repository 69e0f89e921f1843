package indicators

import "quant-decision-core/pkg/types"

// 各指标默认周期
const (
	emaFast    = 12
	emaSlow    = 26
	emaMid     = 50
	emaLong    = 200
	macdSignal = 9
	rsiPeriod  = 14
	atrPeriod  = 14
	bollPeriod = 20
	bollK      = 2.0
	vwapPeriod = 20
)

// MinBars 计算一份完整快照所需的最小K线数量（受MACD信号线约束）
const MinBars = emaSlow + macdSignal - 1

// Calculator 指标快照计算器，无状态，批量模式
type Calculator struct{}

// NewCalculator 创建指标计算器
func NewCalculator() *Calculator {
	return &Calculator{}
}

// Snapshot 基于时间升序K线序列计算最新一根的指标快照。
// EMA50/EMA200在历史不足时留空，其余指标不足时返回ErrInsufficientHistory
func (c *Calculator) Snapshot(klines []*types.KLine) (*types.IndicatorSnapshot, error) {
	if len(klines) < MinBars {
		return nil, ErrInsufficientHistory
	}

	latest := klines[len(klines)-1]
	prices := make([]float64, len(klines))
	for i, k := range klines {
		prices[i] = k.Close
	}

	ema12, err := EMA(prices, emaFast)
	if err != nil {
		return nil, err
	}
	ema26, err := EMA(prices, emaSlow)
	if err != nil {
		return nil, err
	}
	macd, err := MACD(prices, emaFast, emaSlow, macdSignal)
	if err != nil {
		return nil, err
	}
	rsi, err := RSI(prices, rsiPeriod)
	if err != nil {
		return nil, err
	}
	atr, err := ATR(klines, atrPeriod)
	if err != nil {
		return nil, err
	}
	boll, err := Bollinger(prices, bollPeriod, bollK)
	if err != nil {
		return nil, err
	}
	vwap, err := VWAP(klines, vwapPeriod)
	if err != nil {
		return nil, err
	}

	snapshot := &types.IndicatorSnapshot{
		Symbol:     latest.Symbol,
		Interval:   latest.Interval,
		Timestamp:  latest.CloseTime,
		Price:      latest.Close,
		Volume:     latest.Volume,
		EMA12:      ema12,
		EMA26:      ema26,
		SMA20:      SMA(prices[len(prices)-bollPeriod:]),
		MACD:       macd.MACD,
		MACDSignal: macd.Signal,
		MACDHist:   macd.Histogram,
		RSI:        rsi,
		ATR:        atr,
		BollUpper:  boll.Upper,
		BollMiddle: boll.Middle,
		BollLower:  boll.Lower,
		VWAP:       vwap,
		CVD:        latest.CVD,
	}

	// 长周期EMA可选，历史不足不视为错误
	if v, err := EMA(prices, emaMid); err == nil {
		snapshot.EMA50 = &v
	}
	if v, err := EMA(prices, emaLong); err == nil {
		snapshot.EMA200 = &v
	}

	return snapshot, nil
}
