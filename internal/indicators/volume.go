package indicators

import "quant-decision-core/pkg/types"

// VWAP 计算滚动成交量加权均价，典型价 = (H+L+C)/3
func VWAP(klines []*types.KLine, period int) (float64, error) {
	if len(klines) < period {
		return 0, ErrInsufficientHistory
	}

	window := klines[len(klines)-period:]
	var pvSum, volSum float64
	for _, k := range window {
		typical := (k.High + k.Low + k.Close) / 3
		pvSum += typical * k.Volume
		volSum += k.Volume
	}
	if volSum == 0 {
		return 0, ErrInsufficientHistory
	}
	return pvSum / volSum, nil
}

// CVDFromKlines 从K线重建累计成交量差额：阳线计+volume，阴线计-volume。
// 上游已带CVD的K线优先使用自带值，此函数用于回测数据补齐
func CVDFromKlines(klines []*types.KLine) float64 {
	cvd := 0.0
	for _, k := range klines {
		if k.Close >= k.Open {
			cvd += k.Volume
		} else {
			cvd -= k.Volume
		}
	}
	return cvd
}

// FillCVD 就地为缺少CVD的K线序列补上累计值
func FillCVD(klines []*types.KLine) {
	cvd := 0.0
	for _, k := range klines {
		if k.Close >= k.Open {
			cvd += k.Volume
		} else {
			cvd -= k.Volume
		}
		k.CVD = cvd
	}
}
