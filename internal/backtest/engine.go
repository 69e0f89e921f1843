package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quant-decision-core/internal/indicators"
	"quant-decision-core/internal/risk"
	"quant-decision-core/internal/signal"
	"quant-decision-core/internal/stream"
	"quant-decision-core/pkg/types"
)

// marginCapRatio 单笔保证金不超过余额的90%
const marginCapRatio = 0.9

// historyDepth 传给信号引擎的指标历史快照条数
const historyDepth = 10

// ErrNoData 回测数据不足
var ErrNoData = fmt.Errorf("回测K线数量不足")

// Store 回测结果持久化接口
type Store interface {
	SaveBacktestResult(result *types.BacktestResult) error
}

// Engine 回测引擎：严格按K线顺序单线程重放，结果对同一(配置,数据)可复现。
// 信号引擎作为黑盒复用，仓位公式与实盘风控共用
type Engine struct {
	config     types.BacktestConfig
	signals    *signal.Engine
	indicators *indicators.Calculator
	progress   *stream.ProgressStream
	store      Store
}

// NewEngine 创建回测引擎，progress/store可为nil
func NewEngine(config types.BacktestConfig, signals *signal.Engine, progress *stream.ProgressStream, store Store) *Engine {
	return &Engine{
		config:     config,
		signals:    signals,
		indicators: indicators.NewCalculator(),
		progress:   progress,
		store:      store,
	}
}

// Run 执行一次回测。klines必须按时间升序。
// 取消只在K线之间生效，任何K线内的意外失败中止整轮并通过进度流上报
func (e *Engine) Run(ctx context.Context, symbol, interval string, klines []*types.KLine) (result *types.BacktestResult, err error) {
	if len(klines) < indicators.MinBars {
		return nil, ErrNoData
	}

	runID := deterministicRunID(symbol, interval, klines)
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("simulation failure: %v", r)
			zap.L().Error("回测运行异常中止",
				zap.String("run_id", runID),
				zap.Any("panic", r))
		}
		if e.progress != nil {
			terminal := &types.BacktestProgress{
				RunID:     runID,
				TotalBars: len(klines),
				Done:      true,
				ElapsedMs: time.Since(started).Milliseconds(),
			}
			if err != nil {
				terminal.Error = err.Error()
			} else if result != nil {
				terminal.Bar = result.BarsProcessed
				terminal.TradeCount = result.TotalTrades
				terminal.Balance = result.FinalBalance
				terminal.Drawdown = result.MaxDrawdown
			}
			e.progress.Publish(terminal)
		}
	}()

	zap.L().Info("🚀 回测开始",
		zap.String("run_id", runID),
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("bars", len(klines)),
		zap.Float64("initial_balance", e.config.InitialBalance))

	state := &types.BacktestState{
		Balance:    e.config.InitialBalance,
		Equity:     e.config.InitialBalance,
		PeakEquity: e.config.InitialBalance,
	}

	var history []*types.IndicatorSnapshot
	signalCount := 0

	for i, bar := range klines {
		// 取消仅在K线之间检查，保证单根K线内处理完整
		select {
		case <-ctx.Done():
			err = ctx.Err()
			return nil, err
		default:
		}

		// (1) 按收盘价盯市
		e.markToClose(state, bar)

		// (2) 止损/止盈触发检查
		e.checkExits(state, bar, i)

		// (3) 信号评估与开仓
		if i+1 >= indicators.MinBars {
			snapshot, snapErr := e.indicators.Snapshot(klines[:i+1])
			if snapErr == nil {
				sig, warning := e.signals.Evaluate(snapshot, history, klines[:i+1], nil)
				if warning != "" {
					err = fmt.Errorf("simulation failure at bar %d: %s", i, warning)
					return nil, err
				}
				if sig != nil {
					signalCount++
					e.tryOpen(state, sig, bar, i)
				}
				history = prependHistory(history, snapshot)
			}
		}

		// (4) 定期快照与进度上报
		if e.config.SnapshotInterval > 0 && (i+1)%e.config.SnapshotInterval == 0 {
			state.Snapshots = append(state.Snapshots, takeSnapshot(state, bar, i))
		}
		if e.progress != nil && e.config.ProgressInterval > 0 && (i+1)%e.config.ProgressInterval == 0 {
			e.progress.Publish(&types.BacktestProgress{
				RunID:        runID,
				Bar:          i + 1,
				TotalBars:    len(klines),
				TradeCount:   len(state.ClosedTrades),
				SignalCount:  signalCount,
				Balance:      state.Balance,
				Drawdown:     drawdown(state),
				ElapsedMs:    time.Since(started).Milliseconds(),
				CurrentPrice: bar.Close,
			})
		}
	}

	// 收尾：剩余持仓按最后一根收盘价强平
	last := klines[len(klines)-1]
	for len(state.OpenPositions) > 0 {
		e.closePosition(state, 0, last.Close, types.ExitTimeLimit, last, len(klines)-1)
	}
	e.markToClose(state, last)

	result = computeResult(runID, symbol, interval, e.config.InitialBalance, state, klines)

	zap.L().Info("✅ 回测完成",
		zap.String("run_id", runID),
		zap.Int("trades", result.TotalTrades),
		zap.Float64("final_balance", result.FinalBalance),
		zap.Float64("return_pct", result.TotalReturnPct),
		zap.Float64("win_rate", result.WinRate))

	if e.store != nil {
		if saveErr := e.store.SaveBacktestResult(result); saveErr != nil {
			zap.L().Error("保存回测结果失败", zap.Error(saveErr), zap.String("run_id", runID))
		}
	}
	return result, nil
}

// markToClose 持仓按收盘价计算未实现盈亏，刷新权益与峰值
func (e *Engine) markToClose(state *types.BacktestState, bar *types.KLine) {
	equity := state.Balance
	for _, p := range state.OpenPositions {
		p.UnrealizedPnl = positionPnl(p, bar.Close)
		equity += p.Margin + p.UnrealizedPnl
	}
	state.Equity = equity
	if equity > state.PeakEquity {
		state.PeakEquity = equity
	}
	dd := drawdown(state)
	if dd > state.MaxDrawdown {
		state.MaxDrawdown = dd
	}
}

// checkExits 对收盘价做止损/止盈判定，多空镜像
func (e *Engine) checkExits(state *types.BacktestState, bar *types.KLine, barIndex int) {
	for idx := 0; idx < len(state.OpenPositions); {
		p := state.OpenPositions[idx]
		reason := ""
		if p.Side == types.SignalLong {
			if bar.Close <= p.StopLoss {
				reason = types.ExitStopLoss
			} else if bar.Close >= p.TakeProfit {
				reason = types.ExitTakeProfit
			}
		} else {
			if bar.Close >= p.StopLoss {
				reason = types.ExitStopLoss
			} else if bar.Close <= p.TakeProfit {
				reason = types.ExitTakeProfit
			}
		}
		if reason == "" {
			idx++
			continue
		}
		e.closePosition(state, idx, bar.Close, reason, bar, barIndex)
	}
}

// tryOpen 信号通过仓位上限后开模拟仓：
// 数量 = 余额×单笔风险 ÷ 止损距离，保证金受余额90%约束
func (e *Engine) tryOpen(state *types.BacktestState, sig *types.TradingSignal, bar *types.KLine, barIndex int) {
	if len(state.OpenPositions) >= e.config.MaxPositions {
		return
	}

	qty := risk.PositionSize(state.Balance, e.config.MaxRiskPerTrade, sig.Price, sig.StopLoss)
	if qty <= 0 || sig.Leverage <= 0 {
		return
	}

	margin := qty * sig.Price / sig.Leverage
	if maxMargin := state.Balance * marginCapRatio; margin > maxMargin {
		margin = maxMargin
		qty = margin * sig.Leverage / sig.Price
	}
	if margin <= 0 || margin > state.Balance {
		return
	}

	state.Balance -= margin
	state.OpenPositions = append(state.OpenPositions, &types.BacktestPosition{
		Symbol:     sig.Symbol,
		Side:       sig.SignalType,
		EntryPrice: sig.Price,
		Quantity:   qty,
		Leverage:   sig.Leverage,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Margin:     margin,
		EntryTime:  bar.CloseTime,
		EntryBar:   barIndex,
	})
}

// closePosition 平仓：双边手续费，保证金连同净盈亏回到余额
func (e *Engine) closePosition(state *types.BacktestState, idx int, exitPrice float64, reason string, bar *types.KLine, barIndex int) {
	p := state.OpenPositions[idx]

	gross := positionPnl(p, exitPrice)
	commission := (p.EntryPrice + exitPrice) * p.Quantity * e.config.CommissionRate
	net := gross - commission

	returnPct := 0.0
	if p.Margin > 0 {
		returnPct = net / p.Margin
	}

	state.Balance += p.Margin + net
	state.ClosedTrades = append(state.ClosedTrades, &types.BacktestTrade{
		Symbol:     p.Symbol,
		Side:       p.Side,
		EntryPrice: p.EntryPrice,
		ExitPrice:  exitPrice,
		Quantity:   p.Quantity,
		Leverage:   p.Leverage,
		GrossPnl:   gross,
		Commission: commission,
		NetPnl:     net,
		ReturnPct:  returnPct,
		ExitReason: reason,
		EntryTime:  p.EntryTime,
		ExitTime:   bar.CloseTime,
		HoldBars:   barIndex - p.EntryBar,
	})

	state.OpenPositions = append(state.OpenPositions[:idx], state.OpenPositions[idx+1:]...)
}

// positionPnl 持仓相对给定价格的盈亏，多空镜像
func positionPnl(p *types.BacktestPosition, price float64) float64 {
	if p.Side == types.SignalLong {
		return (price - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - price) * p.Quantity
}

func drawdown(state *types.BacktestState) float64 {
	if state.PeakEquity <= 0 {
		return 0
	}
	dd := (state.PeakEquity - state.Equity) / state.PeakEquity
	if dd < 0 {
		return 0
	}
	return dd
}

func takeSnapshot(state *types.BacktestState, bar *types.KLine, barIndex int) *types.BacktestSnapshot {
	wins, total := 0, len(state.ClosedTrades)
	grossWin, grossLoss := 0.0, 0.0
	for _, t := range state.ClosedTrades {
		if t.NetPnl > 0 {
			wins++
			grossWin += t.NetPnl
		} else {
			grossLoss += -t.NetPnl
		}
	}
	winRate := 0.0
	if total > 0 {
		winRate = float64(wins) / float64(total)
	}
	return &types.BacktestSnapshot{
		Bar:          barIndex + 1,
		Timestamp:    bar.CloseTime,
		Balance:      state.Balance,
		Equity:       state.Equity,
		Drawdown:     drawdown(state),
		WinRate:      winRate,
		ProfitFactor: profitFactor(grossWin, grossLoss),
		TradeCount:   total,
	}
}

// prependHistory 新快照放在头部（历史为倒序），超深度截断
func prependHistory(history []*types.IndicatorSnapshot, s *types.IndicatorSnapshot) []*types.IndicatorSnapshot {
	history = append([]*types.IndicatorSnapshot{s}, history...)
	if len(history) > historyDepth {
		history = history[:historyDepth]
	}
	return history
}

// deterministicRunID 由(交易对,周期,数据范围)派生，同一输入必得同一ID
func deterministicRunID(symbol, interval string, klines []*types.KLine) string {
	seed := fmt.Sprintf("%s|%s|%d|%d|%d",
		symbol, interval, len(klines),
		klines[0].CloseTime.UnixMilli(),
		klines[len(klines)-1].CloseTime.UnixMilli())
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(seed)).String()
}
