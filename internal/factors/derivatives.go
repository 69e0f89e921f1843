package factors

import "quant-decision-core/pkg/types"

// 衍生品因子参数（资金费率与持仓量变化分档，单位均为百分比口径的小数）
const (
	fundingExtreme = 0.01  // ±1%
	fundingHigh    = 0.005 // ±0.5%
	oiChangeLarge  = 10.0  // ±10%
	oiChangeSmall  = 5.0   // ±5%
)

// DerivativesFactor 衍生品因子：资金费率分档 + 持仓量变化分档。
// deriv为空时返回零分（无数据按中性处理，非错误）
func (c *Calculator) DerivativesFactor(deriv *types.DerivativesMetrics, weight float64) types.FactorScore {
	if deriv == nil {
		return newScore(types.FactorDerivatives, 0, weight, []string{"无衍生品数据"}, nil)
	}

	raw := 0.0
	var reasons []string

	indicators := map[string]float64{
		"funding_rate":  deriv.FundingRate,
		"open_interest": deriv.OpenInterest,
	}

	// 1. 资金费率：极端正费率挤压多头，极端负费率挤压空头
	switch {
	case deriv.FundingRate > fundingExtreme:
		raw -= 2
		reasons = append(reasons, "资金费率极端偏多，多头拥挤")
	case deriv.FundingRate > fundingHigh:
		raw -= 1
		reasons = append(reasons, "资金费率偏高")
	case deriv.FundingRate < -fundingExtreme:
		raw += 2
		reasons = append(reasons, "资金费率极端偏空，空头拥挤")
	case deriv.FundingRate < -fundingHigh:
		raw += 1
		reasons = append(reasons, "资金费率偏低")
	}

	// 2. 持仓量变化分档
	oiChange := deriv.OpenInterestChangePct()
	indicators["oi_change_pct"] = oiChange
	switch {
	case oiChange > oiChangeLarge:
		raw += 1
		reasons = append(reasons, "持仓量大幅增加")
	case oiChange > oiChangeSmall:
		raw += 0.5
		reasons = append(reasons, "持仓量温和增加")
	case oiChange < -oiChangeLarge:
		raw -= 1
		reasons = append(reasons, "持仓量大幅下降")
	case oiChange < -oiChangeSmall:
		raw -= 0.5
		reasons = append(reasons, "持仓量温和下降")
	}

	return newScore(types.FactorDerivatives, raw, weight, reasons, indicators)
}
