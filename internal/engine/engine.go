package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"quant-decision-core/internal/fetcher"
	"quant-decision-core/internal/indicators"
	"quant-decision-core/internal/risk"
	"quant-decision-core/internal/signal"
	"quant-decision-core/internal/storage"
	"quant-decision-core/pkg/types"
)

const (
	defaultBufferSize  = 200
	symbolChanCap      = 64
	persistInterval    = 30 * time.Second
	snapshotHistoryMax = 10
)

// Engine 实时决策引擎：K线收盘事件驱动，按交易对分管道串行处理。
// 同一交易对的信号评估与风控检查在同一协程内顺序执行，不会交叉
type Engine struct {
	config       types.EngineConfig
	signalEngine *signal.Engine
	riskManager  *risk.Manager
	dbManager    *storage.Manager
	state        *storage.StateManager
	indicators   *indicators.Calculator

	historyFetcher *fetcher.HistoryKlineFetcher

	// K线缓冲区，按交易对分桶，读取返回副本
	klineBuffer map[string][]*types.KLine
	bufferMutex sync.RWMutex

	// 指标快照历史（倒序），仅由对应交易对的worker访问
	snapshotHistory map[string][]*types.IndicatorSnapshot
	historyMutex    sync.Mutex

	// 按交易对的处理管道，首次收到该交易对的K线时创建
	pipelines     map[string]chan *types.KLine
	pipelineMutex sync.Mutex

	// 控制
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 统计
	processedKlines  int64
	generatedSignals int64
	approvedChecks   int64
	rejectedChecks   int64
	statsMutex       sync.RWMutex
}

// NewEngine 创建实时决策引擎
func NewEngine(
	config types.EngineConfig,
	signalEngine *signal.Engine,
	riskManager *risk.Manager,
	dbManager *storage.Manager,
	state *storage.StateManager,
	historyFetcher *fetcher.HistoryKlineFetcher,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		config:          config,
		signalEngine:    signalEngine,
		riskManager:     riskManager,
		dbManager:       dbManager,
		state:           state,
		indicators:      indicators.NewCalculator(),
		historyFetcher:  historyFetcher,
		klineBuffer:     make(map[string][]*types.KLine),
		snapshotHistory: make(map[string][]*types.IndicatorSnapshot),
		pipelines:       make(map[string]chan *types.KLine),
		ctx:             ctx,
		cancel:          cancel,
	}
}

// Start 启动引擎：预热历史数据后开始接收K线
func (e *Engine) Start() error {
	zap.L().Info("🚀 启动实时决策引擎",
		zap.Strings("symbols", e.config.Symbols),
		zap.String("interval", e.config.Interval))

	if e.historyFetcher != nil {
		if err := e.initializeHistoryData(); err != nil {
			return fmt.Errorf("初始化历史数据失败: %v", err)
		}
	}

	// 已配置的交易对预先建好管道
	for _, symbol := range e.config.Symbols {
		e.pipelineFor(symbol)
	}

	e.wg.Add(1)
	go e.databasePersister()

	zap.L().Info("✅ 实时决策引擎启动成功")
	return nil
}

// Submit 投递一根已收盘K线，按交易对路由到对应管道。
// 管道满时丢弃并告警，不阻塞上游
func (e *Engine) Submit(kline *types.KLine) {
	if kline == nil {
		return
	}

	select {
	case e.pipelineFor(kline.Symbol) <- kline:
	default:
		zap.L().Warn("K线处理管道满，丢弃数据",
			zap.String("symbol", kline.Symbol))
	}
}

// pipelineFor 获取或创建某交易对的处理管道，首次访问即启动worker
func (e *Engine) pipelineFor(symbol string) chan *types.KLine {
	e.pipelineMutex.Lock()
	defer e.pipelineMutex.Unlock()

	ch, ok := e.pipelines[symbol]
	if ok {
		return ch
	}

	ch = make(chan *types.KLine, symbolChanCap)
	e.pipelines[symbol] = ch

	e.wg.Add(1)
	go e.symbolWorker(symbol, ch)

	zap.L().Debug("启动交易对处理管道", zap.String("symbol", symbol))
	return ch
}

// symbolWorker 单交易对处理循环：缓冲更新 → 指标快照 → 信号评估 → 风控检查
func (e *Engine) symbolWorker(symbol string, klineCh <-chan *types.KLine) {
	defer e.wg.Done()

	for {
		select {
		case <-e.ctx.Done():
			return
		case kline := <-klineCh:
			if kline == nil {
				continue
			}
			e.processKline(symbol, kline)
		}
	}
}

// processKline 处理单根K线，同一交易对内严格顺序执行
func (e *Engine) processKline(symbol string, kline *types.KLine) {
	if !e.updateKlineBuffer(kline) {
		return
	}
	e.incrementKlineCount()

	klines := e.getKlineHistory(symbol)
	if len(klines) < indicators.MinBars {
		zap.L().Debug("历史数据不足，跳过评估",
			zap.String("symbol", symbol),
			zap.Int("available", len(klines)),
			zap.Int("required", indicators.MinBars))
		return
	}

	snapshot, err := e.indicators.Snapshot(klines)
	if err != nil {
		zap.L().Warn("计算指标快照失败", zap.String("symbol", symbol), zap.Error(err))
		return
	}

	history := e.snapshotHistoryFor(symbol)
	deriv := e.state.GetDerivatives(symbol)

	sig := e.signalEngine.Process(snapshot, history, klines, deriv)
	e.pushSnapshotHistory(symbol, snapshot)

	if sig == nil {
		return
	}
	e.incrementSignalCount()
	e.state.SetLastSignal(sig)

	// 信号通过即做一次风控预检，同一交易对内评估与检查不交叉
	e.runRiskCheck(sig)
}

// runRiskCheck 按统一仓位公式对信号做开仓预检
func (e *Engine) runRiskCheck(sig *types.TradingSignal) {
	account := e.riskManager.Account()
	qty := risk.PositionSize(account.TotalBalance, e.riskManager.Config().MaxRiskPerTrade, sig.Price, sig.StopLoss)
	if qty <= 0 {
		return
	}

	result := e.riskManager.CanOpenPosition(sig.Symbol, sig.SignalType, qty, sig.Price, sig.StopLoss, sig.Leverage)
	if result.Approved {
		e.incrementCheckCount(true)
		zap.L().Info("✅ 风控检查通过",
			zap.String("symbol", sig.Symbol),
			zap.String("signal_id", sig.ID),
			zap.Float64("qty", qty),
			zap.Float64("trade_risk_pct", result.TradeRiskPct),
			zap.Strings("warnings", result.Warnings))
	} else {
		e.incrementCheckCount(false)
		zap.L().Info("🚫 风控检查拒绝",
			zap.String("symbol", sig.Symbol),
			zap.String("signal_id", sig.ID),
			zap.String("reason", result.Reason))
	}
}

// updateKlineBuffer 更新K线缓冲区，超出容量淘汰最旧。
// 重复K线（按收盘时间）不入缓冲，返回false
func (e *Engine) updateKlineBuffer(kline *types.KLine) bool {
	e.bufferMutex.Lock()
	defer e.bufferMutex.Unlock()

	symbol := kline.Symbol

	if buffer := e.klineBuffer[symbol]; len(buffer) > 0 &&
		!kline.CloseTime.After(buffer[len(buffer)-1].CloseTime) {
		return false
	}
	e.klineBuffer[symbol] = append(e.klineBuffer[symbol], kline)

	maxBuffer := e.config.BufferSize
	if maxBuffer <= 0 {
		maxBuffer = defaultBufferSize
	}
	if len(e.klineBuffer[symbol]) > maxBuffer {
		e.klineBuffer[symbol] = e.klineBuffer[symbol][len(e.klineBuffer[symbol])-maxBuffer:]
	}
	return true
}

// getKlineHistory 获取K线历史副本，避免并发修改
func (e *Engine) getKlineHistory(symbol string) []*types.KLine {
	e.bufferMutex.RLock()
	defer e.bufferMutex.RUnlock()

	klines := e.klineBuffer[symbol]
	if klines == nil {
		return nil
	}

	result := make([]*types.KLine, len(klines))
	copy(result, klines)
	return result
}

func (e *Engine) snapshotHistoryFor(symbol string) []*types.IndicatorSnapshot {
	e.historyMutex.Lock()
	defer e.historyMutex.Unlock()

	history := e.snapshotHistory[symbol]
	result := make([]*types.IndicatorSnapshot, len(history))
	copy(result, history)
	return result
}

// pushSnapshotHistory 新快照插入头部（历史为倒序），超深度截断
func (e *Engine) pushSnapshotHistory(symbol string, snapshot *types.IndicatorSnapshot) {
	e.historyMutex.Lock()
	defer e.historyMutex.Unlock()

	history := append([]*types.IndicatorSnapshot{snapshot}, e.snapshotHistory[symbol]...)
	if len(history) > snapshotHistoryMax {
		history = history[:snapshotHistoryMax]
	}
	e.snapshotHistory[symbol] = history
}

// databasePersister 周期性批量持久化最近K线
func (e *Engine) databasePersister() {
	defer e.wg.Done()

	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.persistKlineData()
		}
	}
}

// persistKlineData 每个交易对只保存最近几根K线
func (e *Engine) persistKlineData() {
	if e.dbManager == nil {
		return
	}

	e.bufferMutex.RLock()
	var klinesToSave []*types.KLine
	for _, klines := range e.klineBuffer {
		start := len(klines) - 5
		if start < 0 {
			start = 0
		}
		klinesToSave = append(klinesToSave, klines[start:]...)
	}
	e.bufferMutex.RUnlock()

	if len(klinesToSave) == 0 {
		return
	}

	// 异步保存，失败只记日志
	go func() {
		if err := e.dbManager.BatchSaveKlines(klinesToSave); err != nil {
			zap.L().Debug("保存K线数据失败", zap.Error(err))
		}
	}()
}

// initializeHistoryData 启动时预热各交易对的历史K线
func (e *Engine) initializeHistoryData() error {
	historyLimit := e.config.BufferSize
	if historyLimit <= 0 {
		historyLimit = defaultBufferSize
	}

	zap.L().Info("📚 开始初始化历史K线数据",
		zap.Strings("symbols", e.config.Symbols),
		zap.Int("limit", historyLimit))

	historyData, err := e.historyFetcher.FetchMultipleSymbolsHistory(
		e.config.Symbols,
		e.config.Interval,
		historyLimit,
	)
	if err != nil {
		return err
	}

	e.bufferMutex.Lock()
	totalKlines := 0
	for symbol, klines := range historyData {
		if len(klines) == 0 {
			zap.L().Warn("⚠️ 历史数据为空", zap.String("symbol", symbol))
			continue
		}
		e.klineBuffer[symbol] = klines
		totalKlines += len(klines)
	}
	e.bufferMutex.Unlock()

	if e.dbManager != nil {
		for symbol, klines := range historyData {
			if err := e.dbManager.BatchSaveKlines(klines); err != nil {
				zap.L().Error("批量保存历史K线失败",
					zap.String("symbol", symbol),
					zap.Error(err))
			}
		}
	}

	zap.L().Info("🎉 历史K线数据初始化完成",
		zap.Int("symbols_count", len(historyData)),
		zap.Int("total_klines", totalKlines))

	return nil
}

func (e *Engine) incrementKlineCount() {
	e.statsMutex.Lock()
	e.processedKlines++
	e.statsMutex.Unlock()
}

func (e *Engine) incrementSignalCount() {
	e.statsMutex.Lock()
	e.generatedSignals++
	e.statsMutex.Unlock()
}

func (e *Engine) incrementCheckCount(approved bool) {
	e.statsMutex.Lock()
	if approved {
		e.approvedChecks++
	} else {
		e.rejectedChecks++
	}
	e.statsMutex.Unlock()
}

// GetStats 引擎运行统计
func (e *Engine) GetStats() map[string]interface{} {
	e.statsMutex.RLock()
	processed := e.processedKlines
	generated := e.generatedSignals
	approved := e.approvedChecks
	rejected := e.rejectedChecks
	e.statsMutex.RUnlock()

	e.bufferMutex.RLock()
	bufferSizes := make(map[string]int)
	for symbol, klines := range e.klineBuffer {
		bufferSizes[symbol] = len(klines)
	}
	e.bufferMutex.RUnlock()

	return map[string]interface{}{
		"processed_klines":  processed,
		"generated_signals": generated,
		"approved_checks":   approved,
		"rejected_checks":   rejected,
		"buffer_sizes":      bufferSizes,
		"symbols":           e.config.Symbols,
		"interval":          e.config.Interval,
	}
}

// Stop 停止引擎，等待工作协程退出，超时强制返回
func (e *Engine) Stop() error {
	zap.L().Info("🛑 停止实时决策引擎")

	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ 所有工作协程已停止")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 停止超时，强制退出")
	}

	return nil
}
