package storage

import (
	"math"
	"testing"
	"time"

	"quant-decision-core/pkg/types"
)

// 未配置Redis时纯内存运行
func newMemoryStateManager() *StateManager {
	return NewStateManager(types.RedisConfig{})
}

// 更新衍生品指标时保留上一周期持仓量，供变化率计算
func TestUpdateDerivativesCarriesPrevOI(t *testing.T) {
	sm := newMemoryStateManager()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	sm.UpdateDerivatives("BTC-USDT-SWAP", 0.0001, 100, now)
	first := sm.GetDerivatives("BTC-USDT-SWAP")
	if first == nil {
		t.Fatal("derivatives nil after update")
	}
	if first.PrevOpenInterest != 0 {
		t.Errorf("prev OI = %v, want 0 on first update", first.PrevOpenInterest)
	}

	sm.UpdateDerivatives("BTC-USDT-SWAP", 0.0002, 112, now.Add(time.Minute))
	second := sm.GetDerivatives("BTC-USDT-SWAP")
	if second.PrevOpenInterest != 100 {
		t.Errorf("prev OI = %v, want 100", second.PrevOpenInterest)
	}
	if math.Abs(second.OpenInterestChangePct()-12) > 1e-9 {
		t.Errorf("OI change = %v%%, want 12%%", second.OpenInterestChangePct())
	}
}

// 读取返回副本，调用方改写不影响内部状态
func TestGetDerivativesReturnsClone(t *testing.T) {
	sm := newMemoryStateManager()
	sm.UpdateDerivatives("BTC-USDT-SWAP", 0.0001, 100, time.Now())

	clone := sm.GetDerivatives("BTC-USDT-SWAP")
	clone.OpenInterest = -1

	if sm.GetDerivatives("BTC-USDT-SWAP").OpenInterest != 100 {
		t.Fatal("internal state mutated through returned clone")
	}

	if sm.GetDerivatives("ETH-USDT-SWAP") != nil {
		t.Error("unknown symbol returned non-nil")
	}
}

func TestLastSignalRoundTrip(t *testing.T) {
	sm := newMemoryStateManager()

	if sm.GetLastSignal("BTC-USDT-SWAP") != nil {
		t.Fatal("last signal non-nil before set")
	}

	sig := &types.TradingSignal{ID: "s1", Symbol: "BTC-USDT-SWAP", SignalType: types.SignalLong}
	sm.SetLastSignal(sig)

	if got := sm.GetLastSignal("BTC-USDT-SWAP"); got != sig {
		t.Errorf("last signal = %+v, want the one set", got)
	}
}

func TestGetAllSymbolsAndStats(t *testing.T) {
	sm := newMemoryStateManager()
	now := time.Now()
	sm.UpdateDerivatives("BTC-USDT-SWAP", 0, 1, now)
	sm.UpdateDerivatives("ETH-USDT-SWAP", 0, 2, now)

	if got := len(sm.GetAllSymbols()); got != 2 {
		t.Errorf("symbols = %d, want 2", got)
	}

	stats := sm.GetRedisStats()
	if enabled := stats["redis_enabled"].(bool); enabled {
		t.Error("redis enabled without configuration")
	}
	if count := stats["memory_symbols"].(int); count != 2 {
		t.Errorf("memory symbols = %d, want 2", count)
	}

	if err := sm.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
}
