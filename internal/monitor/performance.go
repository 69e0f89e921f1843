package monitor

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"quant-decision-core/internal/engine"
	"quant-decision-core/internal/risk"
	"quant-decision-core/internal/storage"
	"quant-decision-core/pkg/types"
)

const (
	metricsInterval = 30 * time.Second
	reportInterval  = 5 * time.Minute
	signalQueryMax  = 100
)

// PerformanceMonitor 决策引擎性能监控器
type PerformanceMonitor struct {
	dbManager   *storage.Manager
	engine      *engine.Engine
	riskManager *risk.Manager
	symbols     []string

	ctx    context.Context
	cancel context.CancelFunc

	metrics *PerformanceMetrics
}

// PerformanceMetrics 性能指标
type PerformanceMetrics struct {
	StartTime        time.Time                 `json:"start_time"`
	TotalSignals     int64                     `json:"total_signals"`
	LongSignals      int64                     `json:"long_signals"`
	ShortSignals     int64                     `json:"short_signals"`
	ProcessedKlines  int64                     `json:"processed_klines"`
	ApprovedChecks   int64                     `json:"approved_checks"`
	RejectedChecks   int64                     `json:"rejected_checks"`
	AvgConfidence    float64                   `json:"avg_confidence"`
	SignalFrequency  float64                   `json:"signal_frequency"` // 信号/小时
	AccountState     string                    `json:"account_state"`
	CurrentDrawdown  float64                   `json:"current_drawdown"`
	SymbolStats      map[string]*SymbolMetrics `json:"symbol_stats"`
	LastUpdateTime   time.Time                 `json:"last_update_time"`
}

// SymbolMetrics 单交易对的信号指标
type SymbolMetrics struct {
	Symbol          string    `json:"symbol"`
	TotalSignals    int       `json:"total_signals"`
	LongSignals     int       `json:"long_signals"`
	ShortSignals    int       `json:"short_signals"`
	AvgConfidence   float64   `json:"avg_confidence"`
	LastSignalTime  time.Time `json:"last_signal_time"`
	LastSignalType  string    `json:"last_signal_type"`
	LastSignalPrice float64   `json:"last_signal_price"`
}

// NewPerformanceMonitor 创建性能监控器
func NewPerformanceMonitor(dbManager *storage.Manager, decisionEngine *engine.Engine, riskManager *risk.Manager, symbols []string) *PerformanceMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	return &PerformanceMonitor{
		dbManager:   dbManager,
		engine:      decisionEngine,
		riskManager: riskManager,
		symbols:     symbols,
		ctx:         ctx,
		cancel:      cancel,
		metrics: &PerformanceMetrics{
			StartTime:   time.Now(),
			SymbolStats: make(map[string]*SymbolMetrics),
		},
	}
}

// Start 启动监控循环
func (pm *PerformanceMonitor) Start() {
	zap.L().Info("📊 启动性能监控器")

	for _, symbol := range pm.symbols {
		pm.metrics.SymbolStats[symbol] = &SymbolMetrics{Symbol: symbol}
	}

	go pm.monitorLoop()
	go pm.reportLoop()
}

func (pm *PerformanceMonitor) monitorLoop() {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.updateMetrics()
		}
	}
}

func (pm *PerformanceMonitor) reportLoop() {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pm.ctx.Done():
			return
		case <-ticker.C:
			pm.generateReport()
		}
	}
}

// updateMetrics 刷新性能指标
func (pm *PerformanceMonitor) updateMetrics() {
	engineStats := pm.engine.GetStats()

	if v, ok := engineStats["processed_klines"].(int64); ok {
		pm.metrics.ProcessedKlines = v
	}
	if v, ok := engineStats["generated_signals"].(int64); ok {
		pm.metrics.TotalSignals = v
	}
	if v, ok := engineStats["approved_checks"].(int64); ok {
		pm.metrics.ApprovedChecks = v
	}
	if v, ok := engineStats["rejected_checks"].(int64); ok {
		pm.metrics.RejectedChecks = v
	}

	runTime := time.Since(pm.metrics.StartTime).Hours()
	if runTime > 0 {
		pm.metrics.SignalFrequency = float64(pm.metrics.TotalSignals) / runTime
	}

	account := pm.riskManager.Account()
	pm.metrics.AccountState = account.State
	pm.metrics.CurrentDrawdown = account.DrawdownFromPeak()

	pm.updateSymbolMetrics()
	pm.metrics.LastUpdateTime = time.Now()
}

// updateSymbolMetrics 按交易对刷新信号统计
func (pm *PerformanceMonitor) updateSymbolMetrics() {
	if pm.dbManager == nil {
		zap.L().Debug("数据库管理器未初始化，跳过交易对指标更新")
		return
	}

	pm.metrics.LongSignals = 0
	pm.metrics.ShortSignals = 0

	for _, symbol := range pm.symbols {
		signals, err := pm.dbManager.GetSignalHistory(symbol, signalQueryMax)
		if err != nil {
			zap.L().Warn("获取信号历史失败",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		if len(signals) == 0 {
			continue
		}

		symbolMetrics := pm.metrics.SymbolStats[symbol]
		if symbolMetrics == nil {
			symbolMetrics = &SymbolMetrics{Symbol: symbol}
			pm.metrics.SymbolStats[symbol] = symbolMetrics
		}

		symbolMetrics.TotalSignals = len(signals)
		symbolMetrics.LongSignals = 0
		symbolMetrics.ShortSignals = 0

		totalConfidence := 0.0
		for _, sig := range signals {
			switch sig.SignalType {
			case types.SignalLong:
				symbolMetrics.LongSignals++
			case types.SignalShort:
				symbolMetrics.ShortSignals++
			}
			totalConfidence += sig.Confidence
		}
		symbolMetrics.AvgConfidence = totalConfidence / float64(len(signals))

		// 按时间倒序，第一个是最新的
		latest := signals[0]
		symbolMetrics.LastSignalTime = latest.Timestamp
		symbolMetrics.LastSignalType = latest.SignalType
		symbolMetrics.LastSignalPrice = latest.Price

		pm.metrics.LongSignals += int64(symbolMetrics.LongSignals)
		pm.metrics.ShortSignals += int64(symbolMetrics.ShortSignals)
	}

	// 全局平均置信度按信号量加权
	totalConfidence := 0.0
	count := 0
	for _, symbolMetrics := range pm.metrics.SymbolStats {
		if symbolMetrics.TotalSignals > 0 {
			totalConfidence += symbolMetrics.AvgConfidence * float64(symbolMetrics.TotalSignals)
			count += symbolMetrics.TotalSignals
		}
	}
	if count > 0 {
		pm.metrics.AvgConfidence = totalConfidence / float64(count)
	}
}

// generateReport 输出性能报告日志
func (pm *PerformanceMonitor) generateReport() {
	runTime := time.Since(pm.metrics.StartTime)

	zap.L().Info("📈 决策引擎性能报告",
		zap.Duration("run_time", runTime),
		zap.Int64("total_signals", pm.metrics.TotalSignals),
		zap.Int64("long_signals", pm.metrics.LongSignals),
		zap.Int64("short_signals", pm.metrics.ShortSignals),
		zap.Int64("approved_checks", pm.metrics.ApprovedChecks),
		zap.Int64("rejected_checks", pm.metrics.RejectedChecks),
		zap.Float64("avg_confidence", pm.metrics.AvgConfidence),
		zap.Float64("signal_frequency", pm.metrics.SignalFrequency),
		zap.String("account_state", pm.metrics.AccountState),
		zap.Float64("drawdown", pm.metrics.CurrentDrawdown),
		zap.Int64("processed_klines", pm.metrics.ProcessedKlines))

	for symbol, metrics := range pm.metrics.SymbolStats {
		if metrics.TotalSignals > 0 {
			zap.L().Info("📊 交易对信号统计",
				zap.String("symbol", symbol),
				zap.Int("total_signals", metrics.TotalSignals),
				zap.Int("long_signals", metrics.LongSignals),
				zap.Int("short_signals", metrics.ShortSignals),
				zap.Float64("avg_confidence", metrics.AvgConfidence),
				zap.Time("last_signal_time", metrics.LastSignalTime),
				zap.String("last_signal_type", metrics.LastSignalType))
		}
	}
}

// GetMetrics 获取当前性能指标
func (pm *PerformanceMonitor) GetMetrics() *PerformanceMetrics {
	pm.updateMetrics()
	return pm.metrics
}

// GetMetricsJSON 获取JSON格式的性能指标
func (pm *PerformanceMonitor) GetMetricsJSON() (string, error) {
	metrics := pm.GetMetrics()
	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stop 停止性能监控
func (pm *PerformanceMonitor) Stop() {
	zap.L().Info("🛑 停止性能监控器")
	pm.cancel()
}
