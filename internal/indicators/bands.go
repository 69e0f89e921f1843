package indicators

import "math"

// BollingerBands 布林带计算结果
type BollingerBands struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger 计算布林带，middle为period期SMA，上下轨偏移k倍标准差
func Bollinger(prices []float64, period int, k float64) (*BollingerBands, error) {
	if len(prices) < period {
		return nil, ErrInsufficientHistory
	}

	window := prices[len(prices)-period:]
	middle := SMA(window)

	variance := 0.0
	for _, p := range window {
		d := p - middle
		variance += d * d
	}
	stdev := math.Sqrt(variance / float64(period))

	return &BollingerBands{
		Upper:  middle + k*stdev,
		Middle: middle,
		Lower:  middle - k*stdev,
	}, nil
}
