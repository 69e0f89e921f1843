package engine

import (
	"testing"
	"time"

	"quant-decision-core/pkg/types"
)

func newTestEngine(bufferSize int) *Engine {
	return NewEngine(types.EngineConfig{
		Symbols:    []string{"BTC-USDT-SWAP"},
		Interval:   "15m",
		BufferSize: bufferSize,
	}, nil, nil, nil, nil, nil)
}

func kline(symbol string, closeTime time.Time) *types.KLine {
	return &types.KLine{
		Symbol:    symbol,
		Interval:  "15m",
		OpenTime:  closeTime.Add(-15 * time.Minute),
		CloseTime: closeTime,
		Close:     100,
	}
}

// 相同或更早收盘时间的K线不入缓冲：轮询源会重复投递同一根
func TestUpdateKlineBufferDedupe(t *testing.T) {
	e := newTestEngine(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if !e.updateKlineBuffer(kline("BTC-USDT-SWAP", base)) {
		t.Fatal("first kline rejected")
	}
	if e.updateKlineBuffer(kline("BTC-USDT-SWAP", base)) {
		t.Fatal("duplicate close time accepted")
	}
	if e.updateKlineBuffer(kline("BTC-USDT-SWAP", base.Add(-15*time.Minute))) {
		t.Fatal("out-of-order kline accepted")
	}
	if !e.updateKlineBuffer(kline("BTC-USDT-SWAP", base.Add(15*time.Minute))) {
		t.Fatal("next kline rejected")
	}

	if got := len(e.getKlineHistory("BTC-USDT-SWAP")); got != 2 {
		t.Errorf("buffer length = %d, want 2", got)
	}
}

func TestUpdateKlineBufferEviction(t *testing.T) {
	e := newTestEngine(3)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		e.updateKlineBuffer(kline("BTC-USDT-SWAP", base.Add(time.Duration(i)*15*time.Minute)))
	}

	history := e.getKlineHistory("BTC-USDT-SWAP")
	if len(history) != 3 {
		t.Fatalf("buffer length = %d, want 3", len(history))
	}
	// 保留的是最新的三根
	if want := base.Add(2 * 15 * time.Minute); !history[0].CloseTime.Equal(want) {
		t.Errorf("oldest kept = %v, want %v", history[0].CloseTime, want)
	}
}

// 读取返回副本，修改副本不影响缓冲区
func TestGetKlineHistoryCopy(t *testing.T) {
	e := newTestEngine(10)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	e.updateKlineBuffer(kline("BTC-USDT-SWAP", base))
	e.updateKlineBuffer(kline("BTC-USDT-SWAP", base.Add(15*time.Minute)))

	history := e.getKlineHistory("BTC-USDT-SWAP")
	history[0] = nil

	if again := e.getKlineHistory("BTC-USDT-SWAP"); again[0] == nil {
		t.Fatal("buffer mutated through returned slice")
	}

	if got := e.getKlineHistory("ETH-USDT-SWAP"); got != nil {
		t.Errorf("unknown symbol history = %v, want nil", got)
	}
}

// 快照历史倒序，超出深度截断
func TestSnapshotHistoryOrder(t *testing.T) {
	e := newTestEngine(10)

	for i := 0; i < snapshotHistoryMax+3; i++ {
		e.pushSnapshotHistory("BTC-USDT-SWAP", &types.IndicatorSnapshot{Price: float64(i)})
	}

	history := e.snapshotHistoryFor("BTC-USDT-SWAP")
	if len(history) != snapshotHistoryMax {
		t.Fatalf("history length = %d, want %d", len(history), snapshotHistoryMax)
	}
	if history[0].Price != float64(snapshotHistoryMax+2) {
		t.Errorf("head price = %v, want latest snapshot first", history[0].Price)
	}
	if history[1].Price != float64(snapshotHistoryMax+1) {
		t.Errorf("history not in reverse-chronological order")
	}
}

func TestGetStats(t *testing.T) {
	e := newTestEngine(10)
	e.incrementKlineCount()
	e.incrementKlineCount()
	e.incrementSignalCount()
	e.incrementCheckCount(true)
	e.incrementCheckCount(false)

	stats := e.GetStats()
	if got := stats["processed_klines"].(int64); got != 2 {
		t.Errorf("processed_klines = %d, want 2", got)
	}
	if got := stats["generated_signals"].(int64); got != 1 {
		t.Errorf("generated_signals = %d, want 1", got)
	}
	if got := stats["approved_checks"].(int64); got != 1 {
		t.Errorf("approved_checks = %d, want 1", got)
	}
	if got := stats["rejected_checks"].(int64); got != 1 {
		t.Errorf("rejected_checks = %d, want 1", got)
	}
}
