package factors

import "quant-decision-core/pkg/types"

// emaSlopeThreshold EMA斜率显著性阈值（相对变化0.1%）
const emaSlopeThreshold = 0.001

// TrendFactor 趋势因子：EMA排列 + 价格相对短期均线位置 + 均线斜率。
// history为倒序历史快照，history[0]是上一根K线
func (c *Calculator) TrendFactor(current *types.IndicatorSnapshot, history []*types.IndicatorSnapshot, weight float64) types.FactorScore {
	raw := 0.0
	var reasons []string

	indicators := map[string]float64{
		"ema12": current.EMA12,
		"ema26": current.EMA26,
		"price": current.Price,
	}
	if current.EMA50 != nil {
		indicators["ema50"] = *current.EMA50
	}
	if current.EMA200 != nil {
		indicators["ema200"] = *current.EMA200
	}

	// 1. EMA排列打分
	stack, stackReason := c.scoreEMAStack(current)
	raw += stack
	if stackReason != "" {
		reasons = append(reasons, stackReason)
	}

	// 2. 价格相对两条短期EMA的位置
	if current.Price > current.EMA12 && current.Price > current.EMA26 {
		raw += 1
		reasons = append(reasons, "价格站上EMA12/EMA26")
	} else if current.Price < current.EMA12 && current.Price < current.EMA26 {
		raw -= 1
		reasons = append(reasons, "价格跌破EMA12/EMA26")
	}

	// 3. 两条短期EMA斜率同向且显著
	if len(history) > 0 {
		prev := history[0]
		slope12 := relativeChange(current.EMA12, prev.EMA12)
		slope26 := relativeChange(current.EMA26, prev.EMA26)
		if slope12 > emaSlopeThreshold && slope26 > emaSlopeThreshold {
			raw += 1
			reasons = append(reasons, "EMA12/EMA26同步上行")
		} else if slope12 < -emaSlopeThreshold && slope26 < -emaSlopeThreshold {
			raw -= 1
			reasons = append(reasons, "EMA12/EMA26同步下行")
		}
	}

	return newScore(types.FactorTrend, raw, weight, reasons, indicators)
}

// scoreEMAStack EMA多空排列：完整多头排列+3，部分+2，仅12>26为+1，空头镜像
func (c *Calculator) scoreEMAStack(s *types.IndicatorSnapshot) (float64, string) {
	if s.EMA50 != nil && s.EMA200 != nil {
		if s.EMA12 > s.EMA26 && s.EMA26 > *s.EMA50 && *s.EMA50 > *s.EMA200 {
			return 3, "完整多头排列 12>26>50>200"
		}
		if s.EMA12 < s.EMA26 && s.EMA26 < *s.EMA50 && *s.EMA50 < *s.EMA200 {
			return -3, "完整空头排列 12<26<50<200"
		}
	}
	if s.EMA50 != nil {
		if s.EMA12 > s.EMA26 && s.EMA26 > *s.EMA50 {
			return 2, "部分多头排列 12>26>50"
		}
		if s.EMA12 < s.EMA26 && s.EMA26 < *s.EMA50 {
			return -2, "部分空头排列 12<26<50"
		}
	}
	if s.EMA12 > s.EMA26 {
		return 1, "短期金叉 12>26"
	}
	if s.EMA12 < s.EMA26 {
		return -1, "短期死叉 12<26"
	}
	return 0, ""
}

// relativeChange 相对变化率
func relativeChange(current, prev float64) float64 {
	if prev == 0 {
		return 0
	}
	return (current - prev) / prev
}
