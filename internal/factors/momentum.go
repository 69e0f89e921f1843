package factors

import "quant-decision-core/pkg/types"

// RSI分界
const (
	rsiOverbought = 70.0
	rsiOversold   = 30.0
	rsiNeutral    = 50.0
)

// MomentumFactor 动量因子：MACD交叉 + 柱状图动能 + RSI分区 + 背离检测
func (c *Calculator) MomentumFactor(current *types.IndicatorSnapshot, history []*types.IndicatorSnapshot, weight float64) types.FactorScore {
	raw := 0.0
	var reasons []string

	indicators := map[string]float64{
		"macd":        current.MACD,
		"macd_signal": current.MACDSignal,
		"macd_hist":   current.MACDHist,
		"rsi":         current.RSI,
	}

	// 1. MACD与信号线交叉，零轴同侧时权重翻倍
	if current.MACD > current.MACDSignal {
		if current.MACD > 0 {
			raw += 2
			reasons = append(reasons, "MACD金叉且位于零轴上方")
		} else {
			raw += 1
			reasons = append(reasons, "MACD金叉")
		}
	} else if current.MACD < current.MACDSignal {
		if current.MACD < 0 {
			raw -= 2
			reasons = append(reasons, "MACD死叉且位于零轴下方")
		} else {
			raw -= 1
			reasons = append(reasons, "MACD死叉")
		}
	}

	// 2. 柱状图沿既有方向增强/减弱
	if len(history) > 0 {
		prevHist := history[0].MACDHist
		if current.MACDHist > 0 && current.MACDHist > prevHist {
			raw += 1
			reasons = append(reasons, "MACD柱状图多头动能增强")
		} else if current.MACDHist < 0 && current.MACDHist < prevHist {
			raw -= 1
			reasons = append(reasons, "MACD柱状图空头动能增强")
		}
	}

	// 3. RSI分区
	switch {
	case current.RSI > rsiOverbought:
		raw -= 1
		reasons = append(reasons, "RSI超买")
	case current.RSI >= rsiNeutral:
		raw += 1
		reasons = append(reasons, "RSI偏多区间")
	case current.RSI < rsiOversold:
		raw += 1
		reasons = append(reasons, "RSI超卖反弹预期")
	}

	// 4. 价格与RSI背离
	if div, reason := c.detectDivergence(current, history); div != 0 {
		raw += div
		reasons = append(reasons, reason)
	}

	return newScore(types.FactorMomentum, raw, weight, reasons, indicators)
}

// detectDivergence 背离检测：价格创新高而RSI未创新高（且RSI>70）为顶背离-2，
// 价格创新低而RSI未创新低（且RSI<30）为底背离+2
func (c *Calculator) detectDivergence(current *types.IndicatorSnapshot, history []*types.IndicatorSnapshot) (float64, string) {
	if len(history) < 2 {
		return 0, ""
	}

	maxPrice, minPrice := history[0].Price, history[0].Price
	maxRSI, minRSI := history[0].RSI, history[0].RSI
	for _, h := range history[1:] {
		if h.Price > maxPrice {
			maxPrice = h.Price
		}
		if h.Price < minPrice {
			minPrice = h.Price
		}
		if h.RSI > maxRSI {
			maxRSI = h.RSI
		}
		if h.RSI < minRSI {
			minRSI = h.RSI
		}
	}

	if current.Price > maxPrice && current.RSI <= maxRSI && current.RSI > rsiOverbought {
		return -2, "顶背离：价格新高而RSI未创新高"
	}
	if current.Price < minPrice && current.RSI >= minRSI && current.RSI < rsiOversold {
		return 2, "底背离：价格新低而RSI未创新低"
	}
	return 0, ""
}
