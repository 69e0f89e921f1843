package risk

import (
	"math"
	"strings"
	"testing"
	"time"

	"quant-decision-core/pkg/types"
)

func baseConfig() types.RiskConfig {
	return types.RiskConfig{
		InitialBalance:         10000,
		MaxRiskPerTrade:        0.02,
		MaxTotalRisk:           0.06,
		MaxPositions:           3,
		MaxDrawdown:            0.20,
		EmergencyStopDrawdown:  0.30,
		LeverageReduceDrawdown: 0.10,
		CooldownAfterLosses:    3,
		CooldownDuration:       4 * time.Hour,
		MinAccountBalance:      100,
		MaxLeverage:            10,
	}
}

type eventRecorder struct {
	events []*types.RiskEvent
}

func (r *eventRecorder) Publish(event *types.RiskEvent) {
	r.events = append(r.events, event)
}

func (r *eventRecorder) last() *types.RiskEvent {
	if len(r.events) == 0 {
		return nil
	}
	return r.events[len(r.events)-1]
}

// 单笔风险 = |入场价−止损价|×数量×杠杆，超过余额2%拒绝，恰好压线放行
func TestPerTradeRiskLimit(t *testing.T) {
	rec := &eventRecorder{}
	m := NewManager(baseConfig(), 10000, rec, nil)

	// 风险 1×100×3 = 300 → 3% > 2%
	result := m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 100, 100, 99, 3)
	if result.Approved {
		t.Fatal("approved, want per-trade risk rejection")
	}
	if math.Abs(result.TradeRiskPct-0.03) > 1e-9 {
		t.Errorf("trade risk pct = %v, want 0.03", result.TradeRiskPct)
	}
	event := rec.last()
	if event == nil || event.EventType != types.RiskEventLimitExceeded || event.Severity != types.SeverityWarning {
		t.Errorf("event = %+v, want WARNING RISK_LIMIT_EXCEEDED", event)
	}

	// 风险 1×100×2 = 200 → 恰好2%，边界放行
	result = m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 100, 100, 99, 2)
	if !result.Approved {
		t.Fatalf("rejected at exact limit: %s", result.Reason)
	}
	if math.Abs(result.RequiredMargin-5000) > 1e-9 {
		t.Errorf("required margin = %v, want 5000", result.RequiredMargin)
	}
}

func TestAggregateRiskLimit(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil, nil)
	m.OnPositionOpened("ETH-USDT-SWAP", 0.05, 1000)

	// 新增0.02后聚合0.07 > 0.06
	result := m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 100, 100, 99, 2)
	if result.Approved {
		t.Fatal("approved, want aggregate risk rejection")
	}
	if math.Abs(result.AggregateAfterOpen-0.07) > 1e-9 {
		t.Errorf("aggregate = %v, want 0.07", result.AggregateAfterOpen)
	}
}

func TestMaxPositionsLimit(t *testing.T) {
	rec := &eventRecorder{}
	m := NewManager(baseConfig(), 10000, rec, nil)
	for i := 0; i < 3; i++ {
		m.OnPositionOpened("BTC-USDT-SWAP", 0.01, 100)
	}

	result := m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 10, 100, 99.9, 1)
	if result.Approved {
		t.Fatal("approved, want max positions rejection")
	}
	event := rec.last()
	if event == nil || event.EventType != types.RiskEventMaxPositions || event.Severity != types.SeverityInfo {
		t.Errorf("event = %+v, want INFO MAX_POSITIONS_REACHED", event)
	}
}

func TestMarginAndLeverageLimits(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil, nil)

	// 保证金 2000×100/1 = 200000 > 可用余额
	if result := m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 2000, 100, 99.99, 1); result.Approved {
		t.Fatal("approved, want margin rejection")
	}

	// 杠杆20超过上限10
	if result := m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 10, 100, 99.99, 20); result.Approved {
		t.Fatal("approved, want leverage rejection")
	}
}

// 开平仓记账严格对称：聚合风险与可用余额可恢复
func TestRiskAccountingOnOpenClose(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil, nil)

	before := m.Account()
	m.OnPositionOpened("BTC-USDT-SWAP", 0.02, 500)
	opened := m.Account()

	if math.Abs(opened.CurrentRisk-(before.CurrentRisk+0.02)) > 1e-12 {
		t.Errorf("current risk = %v, want %v", opened.CurrentRisk, before.CurrentRisk+0.02)
	}
	if opened.AvailableBalance != 9500 {
		t.Errorf("available = %v, want 9500", opened.AvailableBalance)
	}
	if opened.OpenPositions != 1 || opened.TotalTrades != 1 {
		t.Errorf("positions = %d trades = %d, want 1/1", opened.OpenPositions, opened.TotalTrades)
	}

	m.OnPositionClosed("BTC-USDT-SWAP", 100, 0.02, 500)
	closed := m.Account()

	if closed.TotalBalance != 10100 {
		t.Errorf("total balance = %v, want 10100", closed.TotalBalance)
	}
	if closed.AvailableBalance != 10100 {
		t.Errorf("available = %v, want 10100", closed.AvailableBalance)
	}
	if closed.CurrentRisk != 0 {
		t.Errorf("current risk = %v, want 0", closed.CurrentRisk)
	}
	if closed.OpenPositions != 0 {
		t.Errorf("open positions = %d, want 0", closed.OpenPositions)
	}
	if closed.WinningTrades != 1 || closed.ConsecutiveLosses != 0 {
		t.Errorf("wins = %d losses streak = %d, want 1/0", closed.WinningTrades, closed.ConsecutiveLosses)
	}
	if closed.PeakBalance != 10100 {
		t.Errorf("peak = %v, want 10100", closed.PeakBalance)
	}
}

// 连亏触发冷却，冷却期内拒绝开仓，到期在下一次检查时就地恢复
func TestCooldownLifecycle(t *testing.T) {
	cfg := baseConfig()
	cfg.CooldownAfterLosses = 2
	cfg.CooldownDuration = time.Hour

	rec := &eventRecorder{}
	m := NewManager(cfg, 10000, rec, nil)

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	m.OnPositionClosed("BTC-USDT-SWAP", -50, 0, 0)
	if acct := m.Account(); acct.CooldownActive {
		t.Fatal("cooldown active after one loss")
	}

	m.OnPositionClosed("BTC-USDT-SWAP", -50, 0, 0)
	acct := m.Account()
	if !acct.CooldownActive || acct.State != types.AccountCooldown {
		t.Fatalf("state = %s cooldown = %v, want COOLDOWN/true", acct.State, acct.CooldownActive)
	}
	if want := base.Add(time.Hour); !acct.CooldownEndTime.Equal(want) {
		t.Errorf("cooldown end = %v, want %v", acct.CooldownEndTime, want)
	}
	event := rec.last()
	if event == nil || event.EventType != types.RiskEventCooldown {
		t.Errorf("event = %+v, want COOLDOWN_ACTIVATED", event)
	}

	// 冷却期内拒绝
	now = base.Add(30 * time.Minute)
	result := m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 50, 100, 99, 2)
	if result.Approved {
		t.Fatal("approved during cooldown")
	}
	if !strings.Contains(result.Reason, "冷却") {
		t.Errorf("reason = %q, want cooldown reason", result.Reason)
	}

	// 到期后同一调用内清除并放行：亏损后余额9900，单笔风险压在上限内
	now = base.Add(61 * time.Minute)
	result = m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 50, 100, 99, 2)
	if !result.Approved {
		t.Fatalf("rejected after cooldown expiry: %s", result.Reason)
	}
	if acct := m.Account(); acct.CooldownActive || acct.State != types.AccountActive {
		t.Errorf("state = %s cooldown = %v, want ACTIVE/false", acct.State, acct.CooldownActive)
	}
}

// 行情推动的未实现盈亏刷新不触碰已实现记账
func TestMarkUnrealized(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil, nil)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }

	m.MarkUnrealized(123.45)

	acct := m.Account()
	if acct.UnrealizedPnl != 123.45 {
		t.Errorf("unrealized = %v, want 123.45", acct.UnrealizedPnl)
	}
	if acct.TotalBalance != 10000 || acct.AvailableBalance != 10000 {
		t.Errorf("realized accounting mutated: total %v available %v",
			acct.TotalBalance, acct.AvailableBalance)
	}
	if !acct.UpdatedAt.Equal(base) {
		t.Errorf("updated at = %v, want %v", acct.UpdatedAt, base)
	}
}

func TestCheckCooldownExpiry(t *testing.T) {
	cfg := baseConfig()
	cfg.CooldownAfterLosses = 1
	cfg.CooldownDuration = time.Hour

	m := NewManager(cfg, 10000, nil, nil)
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	now := base
	m.now = func() time.Time { return now }

	m.OnPositionClosed("BTC-USDT-SWAP", -10, 0, 0)
	if acct := m.Account(); !acct.CooldownActive {
		t.Fatal("cooldown not activated")
	}

	m.CheckCooldownExpiry()
	if acct := m.Account(); !acct.CooldownActive {
		t.Fatal("cooldown cleared before expiry")
	}

	now = base.Add(2 * time.Hour)
	m.CheckCooldownExpiry()
	if acct := m.Account(); acct.CooldownActive || acct.State != types.AccountActive {
		t.Errorf("state = %s cooldown = %v, want ACTIVE/false", acct.State, acct.CooldownActive)
	}
}

// 回撤超过最大容忍：发CRITICAL事件并异步触发全平回调
func TestDrawdownEmergencyStop(t *testing.T) {
	cfg := baseConfig()
	cfg.CooldownAfterLosses = 10

	rec := &eventRecorder{}
	m := NewManager(cfg, 10000, rec, nil)

	closed := make(chan string, 2)
	m.SetCloseAllFunc(func(reason string) { closed <- reason })

	// 回撤25% ≥ 20%，未达硬停30%
	m.OnPositionClosed("BTC-USDT-SWAP", -2500, 0, 0)

	event := rec.last()
	if event == nil || event.EventType != types.RiskEventEmergencyStop || event.Severity != types.SeverityCritical {
		t.Fatalf("event = %+v, want CRITICAL EMERGENCY_STOP", event)
	}
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close-all callback not invoked")
	}
	if acct := m.Account(); acct.State == types.AccountEmergency {
		t.Fatal("entered EMERGENCY below hard-stop threshold")
	}

	// 继续亏损到回撤32.5% ≥ 30%，账户进入紧急状态
	m.OnPositionClosed("BTC-USDT-SWAP", -750, 0, 0)
	if acct := m.Account(); acct.State != types.AccountEmergency {
		t.Fatalf("state = %s, want EMERGENCY", acct.State)
	}

	result := m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 100, 100, 99, 2)
	if result.Approved {
		t.Fatal("approved in EMERGENCY state")
	}
}

func TestDrawdownWarning(t *testing.T) {
	cfg := baseConfig()
	cfg.CooldownAfterLosses = 10

	rec := &eventRecorder{}
	m := NewManager(cfg, 10000, rec, nil)

	// 回撤17% ≥ 20%×0.8，只预警不动作
	m.OnPositionClosed("BTC-USDT-SWAP", -1700, 0, 0)

	event := rec.last()
	if event == nil || event.EventType != types.RiskEventDrawdownWarning || event.Severity != types.SeverityWarning {
		t.Fatalf("event = %+v, want WARNING DRAWDOWN_WARNING", event)
	}
	if acct := m.Account(); acct.State != types.AccountActive {
		t.Errorf("state = %s, want ACTIVE", acct.State)
	}
}

// 回撤软警告：放行但附带降杠杆建议
func TestLeverageReduceRecommendation(t *testing.T) {
	cfg := baseConfig()
	cfg.CooldownAfterLosses = 10

	m := NewManager(cfg, 10000, nil, nil)
	m.OnPositionClosed("BTC-USDT-SWAP", -1200, 0, 0) // 回撤12% > 10%

	result := m.CanOpenPosition("BTC-USDT-SWAP", types.SignalLong, 80, 100, 99, 2)
	if !result.Approved {
		t.Fatalf("rejected: %s", result.Reason)
	}
	if math.Abs(result.RecommendLeverage-5.0) > 1e-9 {
		t.Errorf("recommend leverage = %v, want 5.0", result.RecommendLeverage)
	}
	if len(result.Warnings) == 0 {
		t.Error("warnings empty, want drawdown warning")
	}
}

func TestRestore(t *testing.T) {
	m := NewManager(baseConfig(), 10000, nil, nil)
	m.Restore(&types.AccountStatus{
		TotalBalance:     8000,
		AvailableBalance: 7000,
		PeakBalance:      10000,
		OpenPositions:    1,
		State:            types.AccountActive,
	})

	acct := m.Account()
	if acct.TotalBalance != 8000 || acct.OpenPositions != 1 {
		t.Errorf("restored account = %+v", acct)
	}
}

func TestPositionSize(t *testing.T) {
	if got := PositionSize(10000, 0.02, 100, 98); math.Abs(got-100) > 1e-9 {
		t.Errorf("PositionSize = %v, want 100", got)
	}
	if got := PositionSize(10000, 0.02, 100, 100); got != 0 {
		t.Errorf("zero stop distance size = %v, want 0", got)
	}
	if got := PositionSize(0, 0.02, 100, 98); got != 0 {
		t.Errorf("zero balance size = %v, want 0", got)
	}
}
