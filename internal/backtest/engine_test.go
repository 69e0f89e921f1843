package backtest

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"quant-decision-core/internal/signal"
	"quant-decision-core/pkg/types"
)

func backtestConfig() types.BacktestConfig {
	return types.BacktestConfig{
		InitialBalance:   10000,
		CommissionRate:   0.0005,
		MaxPositions:     2,
		MaxRiskPerTrade:  0.02,
		SnapshotInterval: 50,
	}
}

// 阈值放低、闸门关闭，让合成行情能稳定触发信号
func signalConfig() types.SignalConfig {
	return types.SignalConfig{
		TrendWeight:       0.30,
		MomentumWeight:    0.25,
		VolumeWeight:      0.20,
		VolatilityWeight:  0.10,
		DerivativesWeight: 0.15,

		WeakThreshold:   0.5,
		MediumThreshold: 1.0,
		StrongThreshold: 2.0,

		MinConfidence:       0,
		ExpiryMinutes:       60,
		StopLossATRMultiple: 2.0,
		TakeProfitRatio:     2.0,
		MaxLeverage:         5,
	}
}

// syntheticKlines 确定性正弦波加漂移的合成行情
func syntheticKlines(n int) []*types.KLine {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]*types.KLine, n)

	prevClose := 100.0
	cvd := 0.0
	for i := 0; i < n; i++ {
		closePrice := 100 + 10*math.Sin(float64(i)/8) + 0.05*float64(i)
		open := prevClose
		high := math.Max(open, closePrice) + 0.5
		low := math.Min(open, closePrice) - 0.5
		volume := 50 + float64(i%9)*10

		if closePrice >= open {
			cvd += volume
		} else {
			cvd -= volume
		}

		closeTime := base.Add(time.Duration(i+1) * 15 * time.Minute)
		klines[i] = &types.KLine{
			Symbol:    "BTC-USDT-SWAP",
			Interval:  "15m",
			OpenTime:  closeTime.Add(-15 * time.Minute),
			CloseTime: closeTime,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			Volume:    volume,
			CVD:       cvd,
		}
		prevClose = closePrice
	}
	return klines
}

func runOnce(t *testing.T, klines []*types.KLine) *types.BacktestResult {
	t.Helper()
	engine := NewEngine(backtestConfig(), signal.NewEngine(signalConfig(), nil, nil), nil, nil)
	result, err := engine.Run(context.Background(), "BTC-USDT-SWAP", "15m", klines)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	return result
}

// 同一(配置,数据)两次重放必须产出完全相同的结果
func TestRunDeterministic(t *testing.T) {
	klines := syntheticKlines(160)

	first := runOnce(t, klines)
	second := runOnce(t, klines)

	if first.RunID != second.RunID {
		t.Errorf("run IDs differ: %s vs %s", first.RunID, second.RunID)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("results differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

// 资金守恒：期末余额 = 期初余额 + 全部净盈亏之和
func TestRunBalanceConservation(t *testing.T) {
	result := runOnce(t, syntheticKlines(160))

	netSum := 0.0
	for _, trade := range result.Trades {
		netSum += trade.NetPnl
	}
	if diff := math.Abs(result.FinalBalance - (result.InitialBalance + netSum)); diff > 1e-6 {
		t.Errorf("final = %v, initial+net = %v, diff = %v",
			result.FinalBalance, result.InitialBalance+netSum, diff)
	}

	if result.BarsProcessed != 160 {
		t.Errorf("bars processed = %d, want 160", result.BarsProcessed)
	}
	if result.TotalTrades != len(result.Trades) {
		t.Errorf("total trades = %d, len(trades) = %d", result.TotalTrades, len(result.Trades))
	}
	if result.MaxDrawdown < 0 || result.MaxDrawdown > 1 {
		t.Errorf("max drawdown = %v, out of [0,1]", result.MaxDrawdown)
	}
	for _, trade := range result.Trades {
		if trade.Commission < 0 {
			t.Errorf("negative commission: %+v", trade)
		}
		if trade.ExitReason == "" {
			t.Errorf("trade without exit reason: %+v", trade)
		}
	}
}

func TestRunInsufficientData(t *testing.T) {
	engine := NewEngine(backtestConfig(), signal.NewEngine(signalConfig(), nil, nil), nil, nil)
	if _, err := engine.Run(context.Background(), "BTC-USDT-SWAP", "15m", syntheticKlines(10)); !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	engine := NewEngine(backtestConfig(), signal.NewEngine(signalConfig(), nil, nil), nil, nil)
	result, err := engine.Run(ctx, "BTC-USDT-SWAP", "15m", syntheticKlines(160))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if result != nil {
		t.Fatalf("result = %+v, want nil on cancellation", result)
	}
}

// 平仓记账：双边手续费，保证金连同净盈亏回到余额
func TestClosePosition(t *testing.T) {
	engine := NewEngine(backtestConfig(), nil, nil, nil)
	state := &types.BacktestState{
		Balance: 9000,
		OpenPositions: []*types.BacktestPosition{{
			Symbol:     "BTC-USDT-SWAP",
			Side:       types.SignalLong,
			EntryPrice: 100,
			Quantity:   10,
			Leverage:   5,
			Margin:     200,
			EntryBar:   3,
		}},
	}
	bar := &types.KLine{CloseTime: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}

	engine.closePosition(state, 0, 105, types.ExitTimeLimit, bar, 10)

	if len(state.OpenPositions) != 0 {
		t.Fatalf("open positions = %d, want 0", len(state.OpenPositions))
	}
	if len(state.ClosedTrades) != 1 {
		t.Fatalf("closed trades = %d, want 1", len(state.ClosedTrades))
	}

	trade := state.ClosedTrades[0]
	wantGross := 50.0                        // (105-100)×10
	wantCommission := (100 + 105.0) * 10 * 0.0005 // 1.025
	if math.Abs(trade.GrossPnl-wantGross) > 1e-9 {
		t.Errorf("gross = %v, want %v", trade.GrossPnl, wantGross)
	}
	if math.Abs(trade.Commission-wantCommission) > 1e-9 {
		t.Errorf("commission = %v, want %v", trade.Commission, wantCommission)
	}
	if math.Abs(trade.NetPnl-(wantGross-wantCommission)) > 1e-9 {
		t.Errorf("net = %v, want %v", trade.NetPnl, wantGross-wantCommission)
	}
	if trade.ExitReason != types.ExitTimeLimit {
		t.Errorf("exit reason = %s, want TIME_LIMIT", trade.ExitReason)
	}
	if trade.HoldBars != 7 {
		t.Errorf("hold bars = %d, want 7", trade.HoldBars)
	}
	if wantBalance := 9000 + 200 + trade.NetPnl; math.Abs(state.Balance-wantBalance) > 1e-9 {
		t.Errorf("balance = %v, want %v", state.Balance, wantBalance)
	}
}

// 空头止损/止盈判定与多头镜像
func TestCheckExitsShortMirror(t *testing.T) {
	engine := NewEngine(backtestConfig(), nil, nil, nil)
	state := &types.BacktestState{
		Balance: 9000,
		OpenPositions: []*types.BacktestPosition{{
			Side:       types.SignalShort,
			EntryPrice: 100,
			Quantity:   10,
			StopLoss:   104,
			TakeProfit: 92,
			Margin:     200,
		}},
	}

	// 收盘价94未触及任一价位
	engine.checkExits(state, &types.KLine{Close: 94}, 1)
	if len(state.OpenPositions) != 1 {
		t.Fatal("position closed without trigger")
	}

	// 收盘价92触发止盈
	engine.checkExits(state, &types.KLine{Close: 92}, 2)
	if len(state.ClosedTrades) != 1 {
		t.Fatal("take profit not triggered")
	}
	if state.ClosedTrades[0].ExitReason != types.ExitTakeProfit {
		t.Errorf("exit reason = %s, want TAKE_PROFIT", state.ClosedTrades[0].ExitReason)
	}
	if state.ClosedTrades[0].GrossPnl != 80 { // (100-92)×10
		t.Errorf("gross = %v, want 80", state.ClosedTrades[0].GrossPnl)
	}
}

// 保证金受余额90%约束，数量同比例缩减
func TestTryOpenMarginCap(t *testing.T) {
	engine := NewEngine(backtestConfig(), nil, nil, nil)
	state := &types.BacktestState{Balance: 1000}

	sig := &types.TradingSignal{
		Symbol:     "BTC-USDT-SWAP",
		SignalType: types.SignalLong,
		Price:      100,
		StopLoss:   99.9, // 止损极近 → 原始数量巨大
		Leverage:   2,
	}
	engine.tryOpen(state, sig, &types.KLine{CloseTime: time.Now()}, 40)

	if len(state.OpenPositions) != 1 {
		t.Fatal("position not opened")
	}
	p := state.OpenPositions[0]
	if math.Abs(p.Margin-900) > 1e-9 {
		t.Errorf("margin = %v, want 900 (90%% of balance)", p.Margin)
	}
	if math.Abs(p.Quantity-18) > 1e-9 { // 900×2/100
		t.Errorf("quantity = %v, want 18", p.Quantity)
	}
	if math.Abs(state.Balance-100) > 1e-9 {
		t.Errorf("balance = %v, want 100", state.Balance)
	}
}

func TestDeterministicRunID(t *testing.T) {
	klines := syntheticKlines(40)
	a := deterministicRunID("BTC-USDT-SWAP", "15m", klines)
	b := deterministicRunID("BTC-USDT-SWAP", "15m", klines)
	c := deterministicRunID("ETH-USDT-SWAP", "15m", klines)

	if a != b {
		t.Errorf("same input produced different IDs: %s vs %s", a, b)
	}
	if a == c {
		t.Error("different symbols produced same ID")
	}
}
