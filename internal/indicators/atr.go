package indicators

import (
	"math"

	"quant-decision-core/pkg/types"
)

// ATR 计算平均真实波幅（最近period个真实波幅的SMA）
func ATR(klines []*types.KLine, period int) (float64, error) {
	if len(klines) < period+1 {
		return 0, ErrInsufficientHistory
	}

	trValues := trueRanges(klines)
	if len(trValues) < period {
		return 0, ErrInsufficientHistory
	}
	return SMA(trValues[len(trValues)-period:]), nil
}

// trueRanges 计算真实波幅序列
func trueRanges(klines []*types.KLine) []float64 {
	if len(klines) < 2 {
		return nil
	}

	trValues := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		current := klines[i]
		previous := klines[i-1]

		// 真实波幅 = max(high-low, |high-prevClose|, |low-prevClose|)
		hl := current.High - current.Low
		hc := math.Abs(current.High - previous.Close)
		lc := math.Abs(current.Low - previous.Close)

		trValues = append(trValues, math.Max(hl, math.Max(hc, lc)))
	}
	return trValues
}
