package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"quant-decision-core/pkg/config"
	"quant-decision-core/pkg/logger"
)

func main() {
	backtestMode := flag.Bool("backtest", false, "运行回测模式后退出")
	backtestSymbol := flag.String("symbol", "BTC-USDT-SWAP", "回测交易对")
	backtestBars := flag.Int("bars", 300, "回测K线数量")
	flag.Parse()

	// 加载配置，畸形配置在此处直接失败
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("加载配置失败:", err)
	}

	// 初始化日志
	appLogger := logger.Init(cfg.Log)
	defer appLogger.Sync()

	app := NewApp(cfg)

	if *backtestMode {
		if err := app.RunBacktest(*backtestSymbol, *backtestBars); err != nil {
			zap.L().Fatal("回测运行失败", zap.Error(err))
		}
		app.Stop()
		return
	}

	if err := app.Start(); err != nil {
		zap.L().Fatal("启动失败", zap.Error(err))
	}

	app.WaitForShutdown()
	app.Stop()
}
