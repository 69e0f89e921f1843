package factors

import (
	"quant-decision-core/pkg/types"
)

// 成交量因子参数
const (
	volumeAvgWindow    = 20
	volumeSurgeHigh    = 2.0
	volumeSurgeLow     = 1.5
	volumeDryUp        = 0.5
	vwapOffsetThreshold = 0.002 // 价格偏离VWAP的显著性阈值 ±0.2%
)

// VolumeFactor 成交量因子：量比 + CVD与价格协同 + VWAP偏离。
// candles为时间升序K线窗口，最后一根为当前K线
func (c *Calculator) VolumeFactor(current *types.IndicatorSnapshot, candles []*types.KLine, weight float64) types.FactorScore {
	raw := 0.0
	var reasons []string

	indicators := map[string]float64{
		"volume": current.Volume,
		"cvd":    current.CVD,
		"vwap":   current.VWAP,
	}

	// 1. 当前量相对近20根均量的倍数
	if len(candles) > volumeAvgWindow {
		window := candles[len(candles)-volumeAvgWindow-1 : len(candles)-1]
		sum := 0.0
		for _, k := range window {
			sum += k.Volume
		}
		avg := sum / float64(len(window))
		if avg > 0 {
			ratio := current.Volume / avg
			indicators["volume_ratio"] = ratio
			switch {
			case ratio > volumeSurgeHigh:
				raw += 2
				reasons = append(reasons, "成交量放大超过2倍均量")
			case ratio > volumeSurgeLow:
				raw += 1
				reasons = append(reasons, "成交量放大超过1.5倍均量")
			case ratio < volumeDryUp:
				raw -= 1
				reasons = append(reasons, "成交量萎缩至均量一半以下")
			}
		}
	}

	// 2. CVD与价格协同性
	if len(candles) >= 2 {
		prev := candles[len(candles)-2]
		latest := candles[len(candles)-1]
		cvdUp := latest.CVD > prev.CVD
		cvdDown := latest.CVD < prev.CVD
		priceUp := latest.Close > prev.Close
		priceDown := latest.Close < prev.Close

		switch {
		case cvdUp && priceUp:
			raw += 1
			reasons = append(reasons, "CVD与价格同步上行")
		case cvdDown && priceDown:
			raw += 1
			reasons = append(reasons, "CVD与价格同步下行")
		case cvdUp && priceDown, cvdDown && priceUp:
			raw -= 1
			reasons = append(reasons, "CVD与价格背离")
		}
	}

	// 3. 价格偏离VWAP超过±0.2%
	if current.VWAP > 0 {
		offset := (current.Price - current.VWAP) / current.VWAP
		indicators["vwap_offset"] = offset
		if offset > vwapOffsetThreshold {
			raw += 1
			reasons = append(reasons, "价格显著高于VWAP")
		} else if offset < -vwapOffsetThreshold {
			raw -= 1
			reasons = append(reasons, "价格显著低于VWAP")
		}
	}

	return newScore(types.FactorVolume, raw, weight, reasons, indicators)
}
