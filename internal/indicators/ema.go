package indicators

import "errors"

// ErrInsufficientHistory K线数量不足以计算指标，调用方按"无信号"处理，非致命错误
var ErrInsufficientHistory = errors.New("insufficient history")

// SMA 计算简单移动平均
func SMA(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// EMASeries 计算EMA序列，种子为前period个价格的SMA，
// 递推从下标period-1开始。返回序列out[i]对应prices[period-1+i]
func EMASeries(prices []float64, period int) ([]float64, error) {
	if period <= 0 || len(prices) < period {
		return nil, ErrInsufficientHistory
	}

	alpha := 2.0 / float64(period+1)
	prev := SMA(prices[:period])

	out := make([]float64, 0, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		prev = alpha*prices[i] + (1-alpha)*prev
		out = append(out, prev)
	}
	return out, nil
}

// EMA 计算最新一根K线的EMA值
func EMA(prices []float64, period int) (float64, error) {
	series, err := EMASeries(prices, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}

// EMAState 增量EMA状态，实时流场景下逐K线更新
type EMAState struct {
	period int
	alpha  float64
	value  float64
	warmup []float64
	seeded bool
}

// NewEMAState 创建增量EMA状态
func NewEMAState(period int) *EMAState {
	return &EMAState{
		period: period,
		alpha:  2.0 / float64(period+1),
		warmup: make([]float64, 0, period),
	}
}

// Update 推入一个收盘价，返回当前EMA值。预热期内返回已累计价格的SMA
func (s *EMAState) Update(price float64) float64 {
	if !s.seeded {
		s.warmup = append(s.warmup, price)
		if len(s.warmup) < s.period {
			return SMA(s.warmup)
		}
		// 种子与批量口径一致：先取SMA，再对种子窗口最后一价做一次递推
		seed := SMA(s.warmup)
		s.value = s.alpha*price + (1-s.alpha)*seed
		s.seeded = true
		s.warmup = nil
		return s.value
	}
	s.value = s.alpha*price + (1-s.alpha)*s.value
	return s.value
}

// Ready 是否已过预热期
func (s *EMAState) Ready() bool {
	return s.seeded
}

// Value 当前EMA值
func (s *EMAState) Value() float64 {
	return s.value
}
