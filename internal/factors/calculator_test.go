package factors

import (
	"math"
	"testing"

	"quant-decision-core/pkg/types"
)

func f64(v float64) *float64 { return &v }

// 完整多头排列 + 价格站上短期均线 + 均线同步上行 = +5
func TestTrendFactorFullBullish(t *testing.T) {
	c := NewCalculator()
	current := &types.IndicatorSnapshot{
		Price:  106,
		EMA12:  105,
		EMA26:  104,
		EMA50:  f64(103),
		EMA200: f64(102),
	}
	history := []*types.IndicatorSnapshot{
		{EMA12: 104, EMA26: 103},
	}

	score := c.TrendFactor(current, history, 0.3)
	if score.Raw != 5 {
		t.Fatalf("raw = %v, want 5", score.Raw)
	}
	if math.Abs(score.Weighted-1.5) > 1e-12 {
		t.Errorf("weighted = %v, want 1.5", score.Weighted)
	}
	if score.Name != types.FactorTrend {
		t.Errorf("name = %q, want %q", score.Name, types.FactorTrend)
	}
}

// 长周期EMA缺失时退化为短期排列打分
func TestTrendFactorPartialStack(t *testing.T) {
	c := NewCalculator()
	current := &types.IndicatorSnapshot{
		Price: 103.5, // 位于EMA12与EMA26之间，位置分为0
		EMA12: 104,
		EMA26: 103,
	}

	score := c.TrendFactor(current, nil, 1.0)
	if score.Raw != 1 {
		t.Fatalf("raw = %v, want 1", score.Raw)
	}
}

// 动量因子原始分超过+5时必须被限幅
func TestMomentumFactorClampedHigh(t *testing.T) {
	c := NewCalculator()
	current := &types.IndicatorSnapshot{
		Price:      90,
		MACD:       1.0,
		MACDSignal: 0.2,
		MACDHist:   0.8,
		RSI:        25,
	}
	// 价格新低且RSI未创新低：底背离+2；金叉零轴上+2；柱状图增强+1；超卖+1 = 6
	history := []*types.IndicatorSnapshot{
		{Price: 100, RSI: 20, MACDHist: 0.3},
		{Price: 95, RSI: 22, MACDHist: 0.1},
	}

	score := c.MomentumFactor(current, history, 0.25)
	if score.Raw != 5 {
		t.Fatalf("raw = %v, want clamped to 5", score.Raw)
	}
	if math.Abs(score.Weighted-1.25) > 1e-12 {
		t.Errorf("weighted = %v, want 1.25", score.Weighted)
	}
}

func TestMomentumFactorClampedLow(t *testing.T) {
	c := NewCalculator()
	current := &types.IndicatorSnapshot{
		Price:      100,
		MACD:       -1.0,
		MACDSignal: -0.2,
		MACDHist:   -0.8,
		RSI:        75,
	}
	// 价格新高且RSI未创新高：顶背离-2；死叉零轴下-2；柱状图增强-1；超买-1 = -6
	history := []*types.IndicatorSnapshot{
		{Price: 90, RSI: 80, MACDHist: -0.3},
		{Price: 95, RSI: 78, MACDHist: -0.1},
	}

	score := c.MomentumFactor(current, history, 1.0)
	if score.Raw != -5 {
		t.Fatalf("raw = %v, want clamped to -5", score.Raw)
	}
}

// 无衍生品数据按中性处理，不是错误
func TestDerivativesFactorNilNeutral(t *testing.T) {
	c := NewCalculator()
	score := c.DerivativesFactor(nil, 0.15)
	if score.Raw != 0 || score.Weighted != 0 {
		t.Fatalf("raw = %v, weighted = %v, want zeros", score.Raw, score.Weighted)
	}
}

func TestDerivativesFactorScoring(t *testing.T) {
	c := NewCalculator()
	deriv := &types.DerivativesMetrics{
		FundingRate:      0.02, // 极端正费率 -2
		OpenInterest:     112,
		PrevOpenInterest: 100, // +12% 持仓量大增 +1
	}

	score := c.DerivativesFactor(deriv, 0.15)
	if score.Raw != -1 {
		t.Fatalf("raw = %v, want -1", score.Raw)
	}
	if math.Abs(score.Weighted-(-0.15)) > 1e-12 {
		t.Errorf("weighted = %v, want -0.15", score.Weighted)
	}
}

// CVD与价格同向（无论涨跌）为确认，反向为背离
func TestVolumeFactorCVDAlignment(t *testing.T) {
	c := NewCalculator()
	current := &types.IndicatorSnapshot{Price: 99, Volume: 100}

	confirm := []*types.KLine{
		{Close: 100, CVD: 50},
		{Close: 99, CVD: 40}, // 价格与CVD同步下行
	}
	score := c.VolumeFactor(current, confirm, 1.0)
	if score.Raw != 1 {
		t.Fatalf("confirm raw = %v, want 1", score.Raw)
	}

	diverge := []*types.KLine{
		{Close: 100, CVD: 40},
		{Close: 99, CVD: 50}, // 价格下行而CVD上行
	}
	score = c.VolumeFactor(current, diverge, 1.0)
	if score.Raw != -1 {
		t.Fatalf("diverge raw = %v, want -1", score.Raw)
	}
}

func TestVolatilityFactorPercentB(t *testing.T) {
	c := NewCalculator()

	nearUpper := &types.IndicatorSnapshot{Price: 109.5, BollUpper: 110, BollLower: 100}
	if score := c.VolatilityFactor(nearUpper, nil, 1.0); score.Raw != -1 {
		t.Fatalf("near upper raw = %v, want -1", score.Raw)
	}

	midBand := &types.IndicatorSnapshot{Price: 105, BollUpper: 110, BollLower: 100}
	if score := c.VolatilityFactor(midBand, nil, 1.0); score.Raw != 0 {
		t.Fatalf("mid band raw = %v, want 0", score.Raw)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{7, 5},
		{-7, -5},
		{3.5, 3.5},
	}
	for _, tc := range cases {
		if got := clamp(tc.in); got != tc.want {
			t.Errorf("clamp(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
