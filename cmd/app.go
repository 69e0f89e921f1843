package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"quant-decision-core/internal/backtest"
	"quant-decision-core/internal/engine"
	"quant-decision-core/internal/fetcher"
	"quant-decision-core/internal/monitor"
	"quant-decision-core/internal/risk"
	"quant-decision-core/internal/scheduler"
	signalengine "quant-decision-core/internal/signal"
	"quant-decision-core/internal/storage"
	"quant-decision-core/internal/stream"
	"quant-decision-core/pkg/types"
)

// candlePollInterval 收盘K线轮询周期
const candlePollInterval = time.Minute

// App 应用程序管理器，构造一次后按句柄传递，无全局查找
type App struct {
	config *types.Config
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	dbManager      *storage.Manager
	stateManager   *storage.StateManager
	signalStream   *stream.SignalStream
	eventStream    *stream.RiskEventStream
	signalEngine   *signalengine.Engine
	riskManager    *risk.Manager
	historyFetcher *fetcher.HistoryKlineFetcher
	decisionEngine *engine.Engine
	taskScheduler  *scheduler.Scheduler
	perfMonitor    *monitor.PerformanceMonitor
}

// NewApp 创建应用程序实例并完成全部装配
func NewApp(config *types.Config) *App {
	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		config: config,
		ctx:    ctx,
		cancel: cancel,
	}

	// MySQL不可用时降级运行，信号与事件只走内存流
	dbManager, err := storage.NewManager(config.Database.MySQL)
	if err != nil {
		zap.L().Warn("⚠️ 数据库不可用，持久化已关闭", zap.Error(err))
	} else {
		app.dbManager = dbManager
	}

	app.stateManager = storage.NewStateManager(config.Redis)
	app.signalStream = stream.NewSignalStream(config.Engine.SignalChanCap)
	app.eventStream = stream.NewRiskEventStream(config.Engine.EventChanCap)

	var signalStore signalengine.Store
	var riskStore risk.Store
	if app.dbManager != nil {
		signalStore = app.dbManager
		riskStore = app.dbManager
	}

	app.signalEngine = signalengine.NewEngine(config.Signal, signalStore, app.signalStream)
	app.riskManager = risk.NewManager(config.Risk, config.Risk.InitialBalance, app.eventStream, riskStore)
	app.riskManager.SetCloseAllFunc(func(reason string) {
		// 决策核心不持有交易所持仓，全平动作由订阅风险事件流的执行子系统完成
		zap.L().Error("🚨 紧急全平指令已下达", zap.String("reason", reason))
	})

	// 重启时恢复持久化的账户状态，并留档本次生效的配置快照
	if app.dbManager != nil {
		if err := app.dbManager.SaveConfigSnapshot("signal", config.Signal); err != nil {
			zap.L().Warn("保存信号配置快照失败", zap.Error(err))
		}
		if err := app.dbManager.SaveConfigSnapshot("risk", config.Risk); err != nil {
			zap.L().Warn("保存风险配置快照失败", zap.Error(err))
		}
		if status, err := app.dbManager.LoadAccountStatus(); err != nil {
			zap.L().Warn("读取账户状态失败", zap.Error(err))
		} else if status != nil {
			app.riskManager.Restore(status)
			zap.L().Info("✅ 已恢复账户状态",
				zap.Float64("total_balance", status.TotalBalance),
				zap.String("state", status.State))
		}
	}

	app.historyFetcher = fetcher.NewHistoryKlineFetcher(config.Network)
	app.decisionEngine = engine.NewEngine(
		config.Engine,
		app.signalEngine,
		app.riskManager,
		app.dbManager,
		app.stateManager,
		app.historyFetcher,
	)
	app.taskScheduler = scheduler.NewScheduler(app.signalEngine, app.riskManager, app.stateManager)
	app.perfMonitor = monitor.NewPerformanceMonitor(app.dbManager, app.decisionEngine, app.riskManager, config.Engine.Symbols)

	return app
}

// Start 启动应用程序
func (app *App) Start() error {
	zap.L().Info("🚀 Quant Decision Core 启动中...")

	if err := app.decisionEngine.Start(); err != nil {
		return err
	}

	if app.config.Fetch.Enabled {
		derivFetcher := fetcher.NewDerivativesFetcher(
			app.stateManager,
			app.config.Engine.Symbols,
			app.config.Fetch.Interval,
			app.config.Network,
		)
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			derivFetcher.Start(app.ctx)
		}()
	}

	app.taskScheduler.Start(app.ctx)
	app.perfMonitor.Start()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.candlePoller()
	}()

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.consumeStreams()
	}()

	zap.L().Info("✅ Quant Decision Core 已启动")
	return nil
}

// candlePoller 周期拉取最新已收盘K线投递给决策引擎。
// 最新一根可能未收盘，只投递倒数第二根，引擎按收盘时间去重
func (app *App) candlePoller() {
	ticker := time.NewTicker(candlePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			zap.L().Info("📴 K线轮询已停止")
			return
		case <-ticker.C:
			for _, symbol := range app.config.Engine.Symbols {
				klines, err := app.historyFetcher.FetchHistoryKlines(symbol, app.config.Engine.Interval, 2)
				if err != nil {
					zap.L().Warn("拉取最新K线失败", zap.String("symbol", symbol), zap.Error(err))
					continue
				}
				if len(klines) < 2 {
					continue
				}
				app.decisionEngine.Submit(klines[len(klines)-2])
			}
		}
	}
}

// consumeStreams 消费信号流与风险事件流。
// 信号流面向下游执行/通知子系统，这里同时落一份日志
func (app *App) consumeStreams() {
	for {
		select {
		case <-app.ctx.Done():
			return
		case sig := <-app.signalStream.C():
			if sig == nil {
				continue
			}
			zap.L().Info("📤 信号已发布",
				zap.String("id", sig.ID),
				zap.String("symbol", sig.Symbol),
				zap.String("type", sig.SignalType),
				zap.String("strength", sig.Strength),
				zap.Float64("confidence", sig.Confidence),
				zap.Float64("stop_loss", sig.StopLoss),
				zap.Float64("take_profit", sig.TakeProfit))
		case event := <-app.eventStream.C():
			if event == nil {
				continue
			}
			switch event.Severity {
			case types.SeverityCritical:
				zap.L().Error("🚨 风险事件",
					zap.String("type", event.EventType),
					zap.String("symbol", event.Symbol),
					zap.String("message", event.Message))
			case types.SeverityWarning:
				zap.L().Warn("⚠️ 风险事件",
					zap.String("type", event.EventType),
					zap.String("symbol", event.Symbol),
					zap.String("message", event.Message))
			default:
				zap.L().Info("ℹ️ 风险事件",
					zap.String("type", event.EventType),
					zap.String("symbol", event.Symbol),
					zap.String("message", event.Message))
			}
		}
	}
}

// RunBacktest 回测模式：拉取历史K线跑一轮回测并输出报告
func (app *App) RunBacktest(symbol string, bars int) error {
	interval := app.config.Engine.Interval

	klines, err := app.historyFetcher.FetchHistoryKlines(symbol, interval, bars)
	if err != nil {
		return err
	}

	progress := stream.NewProgressStream(64)
	var progressWg sync.WaitGroup
	progressWg.Add(1)
	go func() {
		defer progressWg.Done()
		for p := range progress.C() {
			if p.Done {
				if p.Error != "" {
					zap.L().Error("❌ 回测失败", zap.String("error", p.Error))
				}
				return
			}
			zap.L().Info("⏳ 回测进度",
				zap.Int("bar", p.Bar),
				zap.Int("total_bars", p.TotalBars),
				zap.Int("trades", p.TradeCount),
				zap.Float64("balance", p.Balance),
				zap.Float64("drawdown", p.Drawdown))
		}
	}()

	var btStore backtest.Store
	if app.dbManager != nil {
		btStore = app.dbManager
	}

	// 回测用独立信号引擎，纯计算，不落库不发流
	btSignalEngine := signalengine.NewEngine(app.config.Signal, nil, nil)
	btEngine := backtest.NewEngine(app.config.Backtest, btSignalEngine, progress, btStore)

	result, err := btEngine.Run(app.ctx, symbol, interval, klines)
	progress.Close()
	progressWg.Wait()
	if err != nil {
		return err
	}

	zap.L().Info("📊 回测报告",
		zap.String("run_id", result.RunID),
		zap.String("symbol", result.Symbol),
		zap.Int("bars", result.BarsProcessed),
		zap.Int("trades", result.TotalTrades),
		zap.Float64("win_rate", result.WinRate),
		zap.Float64("profit_factor", result.ProfitFactor),
		zap.Float64("total_return_pct", result.TotalReturnPct),
		zap.Float64("max_drawdown", result.MaxDrawdown),
		zap.Float64("sharpe", result.SharpeRatio),
		zap.Float64("sortino", result.SortinoRatio),
		zap.Float64("calmar", result.CalmarRatio),
		zap.Int("longest_win_run", result.LongestWinRun),
		zap.Int("longest_loss_run", result.LongestLossRun))

	return nil
}

// Stop 停止应用程序
func (app *App) Stop() {
	zap.L().Info("🛑 收到停止信号，正在优雅关闭...")
	app.cancel()

	app.perfMonitor.Stop()
	if err := app.decisionEngine.Stop(); err != nil {
		zap.L().Error("❌ 停止决策引擎失败", zap.Error(err))
	}

	// 等待所有goroutine结束，最多等待30秒
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("✅ 所有后台任务已停止")
	case <-time.After(30 * time.Second):
		zap.L().Warn("⚠️ 强制关闭超时")
	}

	if app.dbManager != nil {
		if err := app.dbManager.Close(); err != nil {
			zap.L().Error("关闭数据库连接失败", zap.Error(err))
		}
	}
	if err := app.stateManager.Close(); err != nil {
		zap.L().Error("关闭状态管理器失败", zap.Error(err))
	}

	zap.L().Info("✅ Quant Decision Core 已安全关闭")
}

// WaitForShutdown 等待关闭信号
func (app *App) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}
