package backtest

import (
	"math"

	"quant-decision-core/pkg/types"
)

// profitFactor 盈利因子 = 总盈利 ÷ |总亏损|，无亏损时按无界处理
func profitFactor(grossWin, grossLoss float64) float64 {
	if grossLoss <= 0 {
		if grossWin > 0 {
			return math.MaxFloat64
		}
		return 0
	}
	return grossWin / grossLoss
}

// computeResult 从已平仓交易序列汇总最终统计
func computeResult(runID, symbol, interval string, initialBalance float64, state *types.BacktestState, klines []*types.KLine) *types.BacktestResult {
	result := &types.BacktestResult{
		RunID:          runID,
		Symbol:         symbol,
		Interval:       interval,
		StartTime:      klines[0].CloseTime,
		EndTime:        klines[len(klines)-1].CloseTime,
		BarsProcessed:  len(klines),
		InitialBalance: initialBalance,
		FinalBalance:   state.Balance,
		MaxDrawdown:    state.MaxDrawdown,
		Trades:         state.ClosedTrades,
		Snapshots:      state.Snapshots,
	}
	if initialBalance > 0 {
		result.TotalReturnPct = (state.Balance - initialBalance) / initialBalance
	}

	trades := state.ClosedTrades
	result.TotalTrades = len(trades)
	if len(trades) == 0 {
		return result
	}

	grossWin, grossLoss := 0.0, 0.0
	sumWin, sumLoss := 0.0, 0.0
	totalHold, maxHold := 0, 0
	returns := make([]float64, len(trades))

	for i, t := range trades {
		returns[i] = t.ReturnPct
		totalHold += t.HoldBars
		if t.HoldBars > maxHold {
			maxHold = t.HoldBars
		}
		if t.NetPnl > 0 {
			result.WinningTrades++
			grossWin += t.NetPnl
			sumWin += t.NetPnl
			if t.NetPnl > result.LargestWin {
				result.LargestWin = t.NetPnl
			}
		} else {
			result.LosingTrades++
			grossLoss += -t.NetPnl
			sumLoss += t.NetPnl
			if t.NetPnl < result.LargestLoss {
				result.LargestLoss = t.NetPnl
			}
		}
	}

	result.WinRate = float64(result.WinningTrades) / float64(result.TotalTrades)
	result.ProfitFactor = profitFactor(grossWin, grossLoss)
	if result.WinningTrades > 0 {
		result.AvgWin = sumWin / float64(result.WinningTrades)
	}
	if result.LosingTrades > 0 {
		result.AvgLoss = sumLoss / float64(result.LosingTrades)
	}
	result.AvgHoldBars = float64(totalHold) / float64(result.TotalTrades)
	result.MaxHoldBars = maxHold

	result.SharpeRatio = sharpe(returns)
	result.SortinoRatio = sortino(returns)
	result.CalmarRatio = calmar(result.TotalReturnPct, result.MaxDrawdown)
	result.LongestWinRun, result.LongestLossRun = streaks(trades)

	return result
}

// statEpsilon 常数收益序列的标准差带浮点残差，不能与0精确比较
const statEpsilon = 1e-12

// sharpe 逐笔收益率的均值除以标准差
func sharpe(returns []float64) float64 {
	mean, stdev := meanStdev(returns)
	if stdev < statEpsilon {
		return 0
	}
	return mean / stdev
}

// sortino 均值除以仅负收益的标准差
func sortino(returns []float64) float64 {
	mean, _ := meanStdev(returns)
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) == 0 {
		return 0
	}
	_, downside := meanStdev(negatives)
	if downside < statEpsilon {
		return 0
	}
	return mean / downside
}

// calmar 总收益率除以最大回撤
func calmar(totalReturn, maxDrawdown float64) float64 {
	if maxDrawdown <= 0 {
		return 0
	}
	return totalReturn / maxDrawdown
}

// streaks 对按时间顺序的交易做游程统计，返回最长连胜与最长连亏
func streaks(trades []*types.BacktestTrade) (int, int) {
	longestWin, longestLoss := 0, 0
	currentWin, currentLoss := 0, 0
	for _, t := range trades {
		if t.NetPnl > 0 {
			currentWin++
			currentLoss = 0
			if currentWin > longestWin {
				longestWin = currentWin
			}
		} else if t.NetPnl < 0 {
			currentLoss++
			currentWin = 0
			if currentLoss > longestLoss {
				longestLoss = currentLoss
			}
		} else {
			currentWin, currentLoss = 0, 0
		}
	}
	return longestWin, longestLoss
}

func meanStdev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
