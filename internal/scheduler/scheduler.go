package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"quant-decision-core/internal/risk"
	"quant-decision-core/internal/signal"
	"quant-decision-core/internal/storage"
)

const (
	sweepInterval    = time.Minute
	cooldownInterval = 30 * time.Second
	statsInterval    = 5 * time.Minute
)

// Scheduler 后台维护调度器：过期信号清扫、冷却到期检查、状态统计。
// 各循环相互独立，共享状态只经由信号引擎与风险管理器的串行化入口
type Scheduler struct {
	signalEngine *signal.Engine
	riskManager  *risk.Manager
	stateManager *storage.StateManager
}

// NewScheduler 创建调度器
func NewScheduler(signalEngine *signal.Engine, riskManager *risk.Manager, stateManager *storage.StateManager) *Scheduler {
	return &Scheduler{
		signalEngine: signalEngine,
		riskManager:  riskManager,
		stateManager: stateManager,
	}
}

// Start 启动各维护循环，随ctx取消退出
func (s *Scheduler) Start(ctx context.Context) {
	zap.L().Info("🚀 调度器启动")

	go s.sweepLoop(ctx)
	go s.cooldownLoop(ctx)
	go s.statsLoop(ctx)
}

// sweepLoop 周期清扫过期信号
func (s *Scheduler) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("📴 过期信号清扫循环已停止")
			return
		case <-ticker.C:
			s.signalEngine.SweepExpired(time.Now())
		}
	}
}

// cooldownLoop 周期检查冷却到期
func (s *Scheduler) cooldownLoop(ctx context.Context) {
	ticker := time.NewTicker(cooldownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("📴 冷却检查循环已停止")
			return
		case <-ticker.C:
			s.riskManager.CheckCooldownExpiry()
		}
	}
}

// statsLoop 周期输出账户与存储状态
func (s *Scheduler) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("📴 状态统计循环已停止")
			return
		case <-ticker.C:
			account := s.riskManager.Account()
			zap.L().Info("📊 账户状态",
				zap.Float64("total_balance", account.TotalBalance),
				zap.Float64("available_balance", account.AvailableBalance),
				zap.Float64("current_risk", account.CurrentRisk),
				zap.Float64("drawdown", account.DrawdownFromPeak()),
				zap.Int("open_positions", account.OpenPositions),
				zap.Int("consecutive_losses", account.ConsecutiveLosses),
				zap.String("state", account.State))

			if s.stateManager != nil {
				zap.L().Debug("📊 存储状态", zap.Any("stats", s.stateManager.GetRedisStats()))
			}
		}
	}
}
