package factors

import "quant-decision-core/pkg/types"

// 原始因子分上下限
const (
	maxRaw = 5.0
	minRaw = -5.0
)

// Calculator 五因子计算器，无状态，每次评估产出全新FactorScore
type Calculator struct{}

// NewCalculator 创建因子计算器
func NewCalculator() *Calculator {
	return &Calculator{}
}

// clamp 将原始分限制在[-5, +5]
func clamp(raw float64) float64 {
	if raw > maxRaw {
		return maxRaw
	}
	if raw < minRaw {
		return minRaw
	}
	return raw
}

// newScore 组装因子评分，完成限幅与加权
func newScore(name string, raw, weight float64, reasons []string, indicators map[string]float64) types.FactorScore {
	raw = clamp(raw)
	return types.FactorScore{
		Name:       name,
		Raw:        raw,
		Weight:     weight,
		Weighted:   raw * weight,
		Reasons:    reasons,
		Indicators: indicators,
	}
}
