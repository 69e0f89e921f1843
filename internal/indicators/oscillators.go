package indicators

// MACDResult MACD计算结果
type MACDResult struct {
	MACD      float64 // 快慢线差离值
	Signal    float64 // 信号线
	Histogram float64 // 柱状图
}

// MACD 计算MACD(fast, slow, signalPeriod)，取最新值
func MACD(prices []float64, fast, slow, signalPeriod int) (*MACDResult, error) {
	if len(prices) < slow+signalPeriod-1 {
		return nil, ErrInsufficientHistory
	}

	fastSeries, err := EMASeries(prices, fast)
	if err != nil {
		return nil, err
	}
	slowSeries, err := EMASeries(prices, slow)
	if err != nil {
		return nil, err
	}

	// 快线序列更长，对齐到慢线起点
	offset := len(fastSeries) - len(slowSeries)
	macdLine := make([]float64, len(slowSeries))
	for i := range slowSeries {
		macdLine[i] = fastSeries[i+offset] - slowSeries[i]
	}

	signalSeries, err := EMASeries(macdLine, signalPeriod)
	if err != nil {
		return nil, err
	}

	macd := macdLine[len(macdLine)-1]
	signal := signalSeries[len(signalSeries)-1]

	return &MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}, nil
}

// RSI 计算Wilder RSI，取最新值
func RSI(prices []float64, period int) (float64, error) {
	if len(prices) < period+1 {
		return 0, ErrInsufficientHistory
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder平滑
	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100, nil
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs), nil
}
