package backtest

import (
	"math"
	"testing"

	"quant-decision-core/pkg/types"
)

// 无亏损时盈利因子按无界处理，序列化为有限大数而非Inf
func TestProfitFactor(t *testing.T) {
	if got := profitFactor(10, 0); got != math.MaxFloat64 {
		t.Errorf("profitFactor(10, 0) = %v, want MaxFloat64", got)
	}
	if got := profitFactor(0, 0); got != 0 {
		t.Errorf("profitFactor(0, 0) = %v, want 0", got)
	}
	if got := profitFactor(10, 5); got != 2 {
		t.Errorf("profitFactor(10, 5) = %v, want 2", got)
	}
}

func TestStreaks(t *testing.T) {
	trades := []*types.BacktestTrade{
		{NetPnl: 10}, {NetPnl: 5}, {NetPnl: -3},
		{NetPnl: 8}, {NetPnl: -1}, {NetPnl: -2}, {NetPnl: -4},
	}
	wins, losses := streaks(trades)
	if wins != 2 {
		t.Errorf("longest win run = %d, want 2", wins)
	}
	if losses != 3 {
		t.Errorf("longest loss run = %d, want 3", losses)
	}

	// 零盈亏交易打断游程
	trades = []*types.BacktestTrade{
		{NetPnl: 10}, {NetPnl: 0}, {NetPnl: 10},
	}
	wins, _ = streaks(trades)
	if wins != 1 {
		t.Errorf("longest win run = %d, want 1 with breakeven gap", wins)
	}
}

func TestSharpeAndSortino(t *testing.T) {
	// 常数收益：标准差为0，比率按0处理
	if got := sharpe([]float64{0.1, 0.1, 0.1}); got != 0 {
		t.Errorf("constant returns sharpe = %v, want 0", got)
	}
	// 无负收益：Sortino按0处理
	if got := sortino([]float64{0.1, 0.2}); got != 0 {
		t.Errorf("no-loss sortino = %v, want 0", got)
	}
	// 常数负收益：下行标准差只剩浮点残差，同样按0处理
	if got := sortino([]float64{-0.1, -0.1, -0.1}); got != 0 {
		t.Errorf("constant-loss sortino = %v, want 0", got)
	}

	returns := []float64{0.1, -0.1}
	mean, stdev := meanStdev(returns)
	if mean != 0 || math.Abs(stdev-0.1) > 1e-12 {
		t.Fatalf("meanStdev = (%v, %v), want (0, 0.1)", mean, stdev)
	}
	if got := sharpe(returns); got != 0 {
		t.Errorf("sharpe = %v, want 0 with zero mean", got)
	}
}

func TestCalmar(t *testing.T) {
	if got := calmar(0.1, 0.2); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("calmar = %v, want 0.5", got)
	}
	if got := calmar(0.1, 0); got != 0 {
		t.Errorf("zero-drawdown calmar = %v, want 0", got)
	}
}

func TestComputeResultAggregates(t *testing.T) {
	state := &types.BacktestState{
		Balance:     10150,
		MaxDrawdown: 0.05,
		ClosedTrades: []*types.BacktestTrade{
			{NetPnl: 100, ReturnPct: 0.2, HoldBars: 4},
			{NetPnl: 100, ReturnPct: 0.2, HoldBars: 6},
			{NetPnl: -50, ReturnPct: -0.1, HoldBars: 2},
		},
	}
	klines := syntheticKlines(40)

	result := computeResult("run-1", "BTC-USDT-SWAP", "15m", 10000, state, klines)

	if result.TotalTrades != 3 || result.WinningTrades != 2 || result.LosingTrades != 1 {
		t.Fatalf("trade counts = %d/%d/%d, want 3/2/1",
			result.TotalTrades, result.WinningTrades, result.LosingTrades)
	}
	if math.Abs(result.WinRate-2.0/3.0) > 1e-12 {
		t.Errorf("win rate = %v, want 2/3", result.WinRate)
	}
	if math.Abs(result.ProfitFactor-4.0) > 1e-12 {
		t.Errorf("profit factor = %v, want 4", result.ProfitFactor)
	}
	if math.Abs(result.TotalReturnPct-0.015) > 1e-12 {
		t.Errorf("total return = %v, want 0.015", result.TotalReturnPct)
	}
	if result.AvgWin != 100 || result.AvgLoss != -50 {
		t.Errorf("avg win/loss = %v/%v, want 100/-50", result.AvgWin, result.AvgLoss)
	}
	if result.LargestWin != 100 || result.LargestLoss != -50 {
		t.Errorf("largest win/loss = %v/%v, want 100/-50", result.LargestWin, result.LargestLoss)
	}
	if result.MaxHoldBars != 6 || math.Abs(result.AvgHoldBars-4) > 1e-12 {
		t.Errorf("hold bars = max %d avg %v, want 6/4", result.MaxHoldBars, result.AvgHoldBars)
	}
	if result.LongestWinRun != 2 || result.LongestLossRun != 1 {
		t.Errorf("streaks = %d/%d, want 2/1", result.LongestWinRun, result.LongestLossRun)
	}
	if !result.StartTime.Equal(klines[0].CloseTime) || !result.EndTime.Equal(klines[39].CloseTime) {
		t.Error("result time range not taken from kline range")
	}
}
