package indicators

import (
	"errors"
	"math"
	"testing"
)

// 种子为SMA的EMA口径：[1,2,3,4,5]周期3，种子2.0，序列为2.5, 3.25, 4.125
func TestEMASeriesSeededBySMA(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5}
	series, err := EMASeries(prices, 3)
	if err != nil {
		t.Fatalf("EMASeries error: %v", err)
	}

	want := []float64{2.5, 3.25, 4.125}
	if len(series) != len(want) {
		t.Fatalf("series length = %d, want %d", len(series), len(want))
	}
	for i := range want {
		if math.Abs(series[i]-want[i]) > 1e-12 {
			t.Errorf("series[%d] = %v, want %v", i, series[i], want[i])
		}
	}
}

func TestEMAInsufficientHistory(t *testing.T) {
	if _, err := EMASeries([]float64{1, 2}, 3); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
	if _, err := EMA(nil, 5); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
	if _, err := EMASeries([]float64{1, 2, 3}, 0); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}

func TestSMA(t *testing.T) {
	if got := SMA(nil); got != 0 {
		t.Errorf("SMA(nil) = %v, want 0", got)
	}
	if got := SMA([]float64{2, 4, 6}); got != 4 {
		t.Errorf("SMA = %v, want 4", got)
	}
}

// 增量状态与批量计算必须收敛到同一数值
func TestEMAStateMatchesBatch(t *testing.T) {
	prices := []float64{100, 101, 99, 102, 104, 103, 105, 108, 107, 110}
	period := 4

	state := NewEMAState(period)
	var last float64
	for _, p := range prices {
		last = state.Update(p)
	}
	if !state.Ready() {
		t.Fatal("state not ready after full warmup")
	}

	batch, err := EMA(prices, period)
	if err != nil {
		t.Fatalf("EMA error: %v", err)
	}
	if math.Abs(last-batch) > 1e-9 {
		t.Errorf("incremental = %v, batch = %v", last, batch)
	}
	if state.Value() != last {
		t.Errorf("Value() = %v, want %v", state.Value(), last)
	}
}

// 预热期内返回已累计价格的SMA
func TestEMAStateWarmup(t *testing.T) {
	state := NewEMAState(3)
	if got := state.Update(2); got != 2 {
		t.Errorf("first warmup value = %v, want 2", got)
	}
	if got := state.Update(4); got != 3 {
		t.Errorf("second warmup value = %v, want 3", got)
	}
	if state.Ready() {
		t.Fatal("state ready before warmup complete")
	}
}

func TestRSIAllGains(t *testing.T) {
	prices := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	rsi, err := RSI(prices, 14)
	if err != nil {
		t.Fatalf("RSI error: %v", err)
	}
	if rsi != 100 {
		t.Errorf("RSI = %v, want 100", rsi)
	}
}

func TestMACDInsufficientHistory(t *testing.T) {
	prices := make([]float64, 20)
	if _, err := MACD(prices, 12, 26, 9); !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("err = %v, want ErrInsufficientHistory", err)
	}
}
