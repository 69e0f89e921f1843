package factors

import "quant-decision-core/pkg/types"

// 波动率因子参数
const (
	atrChangeThreshold  = 0.20 // ATR相对上一根变化显著性 ±20%
	bollWidthThreshold  = 0.10 // 布林带宽变化显著性 ±10%
	percentBNearUpper   = 0.8
	percentBNearLower   = 0.2
	percentBUpperHalf   = 0.6
	percentBLowerHalf   = 0.4
)

// VolatilityFactor 波动率因子：ATR变化 + 布林带宽扩张收缩 + 带内位置
func (c *Calculator) VolatilityFactor(current *types.IndicatorSnapshot, history []*types.IndicatorSnapshot, weight float64) types.FactorScore {
	raw := 0.0
	var reasons []string

	indicators := map[string]float64{
		"atr":        current.ATR,
		"boll_upper": current.BollUpper,
		"boll_lower": current.BollLower,
		"percent_b":  current.PercentB(),
	}

	if len(history) > 0 {
		prev := history[0]

		// 1. ATR相对上一根的变化
		atrChange := relativeChange(current.ATR, prev.ATR)
		indicators["atr_change"] = atrChange
		if atrChange > atrChangeThreshold {
			raw += 1
			reasons = append(reasons, "ATR显著放大")
		} else if atrChange < -atrChangeThreshold {
			raw -= 1
			reasons = append(reasons, "ATR显著收缩")
		}

		// 2. 布林带宽扩张/收缩
		widthChange := relativeChange(current.BollWidth(), prev.BollWidth())
		indicators["boll_width_change"] = widthChange
		if widthChange > bollWidthThreshold {
			raw += 1
			reasons = append(reasons, "布林带扩张")
		} else if widthChange < -bollWidthThreshold {
			raw -= 1
			reasons = append(reasons, "布林带收缩")
		}
	}

	// 3. 价格在带内位置（percentB）
	pb := current.PercentB()
	switch {
	case pb > percentBNearUpper:
		raw -= 1
		reasons = append(reasons, "价格贴近布林上轨")
	case pb < percentBNearLower:
		raw += 1
		reasons = append(reasons, "价格贴近布林下轨")
	case pb > percentBUpperHalf:
		raw += 0.5
		reasons = append(reasons, "价格位于布林带上半区")
	case pb < percentBLowerHalf:
		raw -= 0.5
		reasons = append(reasons, "价格位于布林带下半区")
	}

	return newScore(types.FactorVolatility, raw, weight, reasons, indicators)
}
