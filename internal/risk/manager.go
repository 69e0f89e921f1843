package risk

import (
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"quant-decision-core/pkg/types"
)

// drawdownWarnRatio 回撤达到maxDrawdown的80%时发预警事件（不动作）
const drawdownWarnRatio = 0.8

// reducedLeverageFactor 回撤触发降杠杆建议时的折减系数
const reducedLeverageFactor = 0.5

// EventPublisher 风险事件发布接口
type EventPublisher interface {
	Publish(event *types.RiskEvent)
}

// Store 账户状态与风险事件持久化接口
type Store interface {
	SaveAccountStatus(status *types.AccountStatus) error
	SaveRiskEvent(event *types.RiskEvent) error
}

// Manager 账户级风险闸门与状态机。
// 所有账户读写经由单一互斥锁串行化，开平仓不会交叉改写账户状态
type Manager struct {
	mu      sync.Mutex
	config  types.RiskConfig
	account types.AccountStatus

	events EventPublisher
	store  Store

	// closeAll 紧急停止时的全平回调，由持仓方注入
	closeAll func(reason string)

	now func() time.Time
}

// NewManager 创建风险管理器，初始余额即峰值
func NewManager(config types.RiskConfig, initialBalance float64, events EventPublisher, store Store) *Manager {
	return &Manager{
		config: config,
		account: types.AccountStatus{
			TotalBalance:     initialBalance,
			AvailableBalance: initialBalance,
			PeakBalance:      initialBalance,
			State:            types.AccountActive,
			UpdatedAt:        time.Now(),
		},
		events: events,
		store:  store,
		now:    time.Now,
	}
}

// Restore 用持久化的账户状态覆盖当前状态，进程重启时恢复
func (m *Manager) Restore(status *types.AccountStatus) {
	if status == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account = *status
}

// SetCloseAllFunc 注入紧急全平回调
func (m *Manager) SetCloseAllFunc(fn func(reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeAll = fn
}

// Account 账户状态快照（副本）
func (m *Manager) Account() types.AccountStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.account
}

// Config 当前风险配置
func (m *Manager) Config() types.RiskConfig {
	return m.config
}

// CanOpenPosition 开仓校验，按固定顺序执行各项检查。
// 拒绝是正常返回值；数值阈值触发的拒绝同时发出风险事件
func (m *Manager) CanOpenPosition(symbol, side string, qty, price, stopLoss, leverage float64) *types.RiskCheckResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowTime := m.now()

	// (a) 冷却检查：到期则就地清除并继续，未到期直接拒绝
	if m.account.CooldownActive {
		if nowTime.Before(m.account.CooldownEndTime) {
			return &types.RiskCheckResult{
				Approved: false,
				Reason: fmt.Sprintf("账户冷却中，%s 后恢复",
					m.account.CooldownEndTime.Format("2006-01-02 15:04:05")),
			}
		}
		m.account.CooldownActive = false
		if m.account.State == types.AccountCooldown {
			m.account.State = types.AccountActive
		}
		m.account.UpdatedAt = nowTime
		zap.L().Info("✅ 冷却期结束，账户恢复交易")
	}

	if m.account.State == types.AccountEmergency {
		return &types.RiskCheckResult{
			Approved: false,
			Reason:   "账户处于紧急停止状态，禁止开仓",
		}
	}

	// (b) 最大并发持仓数
	if m.account.OpenPositions >= m.config.MaxPositions {
		m.emit(types.RiskEventMaxPositions, types.SeverityInfo, symbol,
			"已达最大并发持仓数", float64(m.account.OpenPositions), float64(m.config.MaxPositions), nowTime)
		return &types.RiskCheckResult{
			Approved: false,
			Reason:   fmt.Sprintf("已达最大持仓数 %d", m.config.MaxPositions),
		}
	}

	if m.account.TotalBalance < m.config.MinAccountBalance {
		m.emit(types.RiskEventLimitExceeded, types.SeverityCritical, symbol,
			"账户余额低于最低要求", m.account.TotalBalance, m.config.MinAccountBalance, nowTime)
		return &types.RiskCheckResult{
			Approved: false,
			Reason:   fmt.Sprintf("账户余额 %.2f 低于最低要求 %.2f", m.account.TotalBalance, m.config.MinAccountBalance),
		}
	}

	// (c) 单笔风险 = |入场价 − 止损价| × 数量 × 杠杆
	tradeRisk := math.Abs(price-stopLoss) * qty * leverage
	tradeRiskPct := 0.0
	if m.account.TotalBalance > 0 {
		tradeRiskPct = tradeRisk / m.account.TotalBalance
	}
	if tradeRiskPct > m.config.MaxRiskPerTrade {
		m.emit(types.RiskEventLimitExceeded, types.SeverityWarning, symbol,
			"单笔风险超限", tradeRiskPct, m.config.MaxRiskPerTrade, nowTime)
		return &types.RiskCheckResult{
			Approved:     false,
			Reason:       fmt.Sprintf("单笔风险 %.2f%% 超过上限 %.2f%%", tradeRiskPct*100, m.config.MaxRiskPerTrade*100),
			TradeRiskPct: tradeRiskPct,
		}
	}

	// (d) 聚合风险 = 当前 + 新增
	aggregate := m.account.CurrentRisk + tradeRiskPct
	if aggregate > m.config.MaxTotalRisk {
		m.emit(types.RiskEventLimitExceeded, types.SeverityCritical, symbol,
			"聚合风险超限", aggregate, m.config.MaxTotalRisk, nowTime)
		return &types.RiskCheckResult{
			Approved:           false,
			Reason:             fmt.Sprintf("聚合风险 %.2f%% 超过上限 %.2f%%", aggregate*100, m.config.MaxTotalRisk*100),
			TradeRiskPct:       tradeRiskPct,
			AggregateAfterOpen: aggregate,
		}
	}

	// (e) 可用余额 vs 所需保证金
	requiredMargin := 0.0
	if leverage > 0 {
		requiredMargin = qty * price / leverage
	}
	if requiredMargin > m.account.AvailableBalance {
		m.emit(types.RiskEventLimitExceeded, types.SeverityWarning, symbol,
			"可用保证金不足", requiredMargin, m.account.AvailableBalance, nowTime)
		return &types.RiskCheckResult{
			Approved:       false,
			Reason:         fmt.Sprintf("所需保证金 %.2f 超过可用余额 %.2f", requiredMargin, m.account.AvailableBalance),
			TradeRiskPct:   tradeRiskPct,
			RequiredMargin: requiredMargin,
		}
	}

	// (f) 杠杆上限
	if leverage > m.config.MaxLeverage {
		m.emit(types.RiskEventLimitExceeded, types.SeverityWarning, symbol,
			"杠杆超过上限", leverage, m.config.MaxLeverage, nowTime)
		return &types.RiskCheckResult{
			Approved:     false,
			Reason:       fmt.Sprintf("杠杆 %.0f 超过上限 %.0f", leverage, m.config.MaxLeverage),
			TradeRiskPct: tradeRiskPct,
		}
	}

	result := &types.RiskCheckResult{
		Approved:           true,
		TradeRiskPct:       tradeRiskPct,
		RequiredMargin:     requiredMargin,
		AggregateAfterOpen: aggregate,
	}

	// (g) 回撤软警告：放行但建议降杠杆
	drawdown := m.account.DrawdownFromPeak()
	if drawdown > m.config.LeverageReduceDrawdown {
		recommend := m.config.MaxLeverage * reducedLeverageFactor
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("回撤 %.2f%% 超过 %.2f%%，建议杠杆降至 %.0f",
				drawdown*100, m.config.LeverageReduceDrawdown*100, recommend))
		result.RecommendLeverage = recommend
		m.emit(types.RiskEventLeverageReduced, types.SeverityWarning, symbol,
			"回撤触发降杠杆建议", drawdown, m.config.LeverageReduceDrawdown, nowTime)
	}

	return result
}

// OnPositionOpened 开仓后记账：累加聚合风险、占用保证金
func (m *Manager) OnPositionOpened(symbol string, tradeRiskPct, margin float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.account.CurrentRisk += tradeRiskPct
	m.account.OpenPositions++
	m.account.TotalTrades++
	m.account.AvailableBalance -= margin
	m.account.UpdatedAt = m.now()

	zap.L().Info("📈 开仓记账",
		zap.String("symbol", symbol),
		zap.Float64("trade_risk_pct", tradeRiskPct),
		zap.Float64("margin", margin),
		zap.Float64("aggregate_risk", m.account.CurrentRisk))

	m.persist()
}

// OnPositionClosed 平仓后记账：实现盈亏、更新峰值与回撤、维护连亏计数与冷却
func (m *Manager) OnPositionClosed(symbol string, pnl, tradeRiskPct, margin float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	nowTime := m.now()

	m.account.TotalBalance += pnl
	m.account.RealizedPnl += pnl
	m.account.AvailableBalance += margin + pnl
	m.account.CurrentRisk -= tradeRiskPct
	if m.account.CurrentRisk < 0 {
		m.account.CurrentRisk = 0
	}
	if m.account.OpenPositions > 0 {
		m.account.OpenPositions--
	}

	if pnl > 0 {
		m.account.WinningTrades++
		m.account.ConsecutiveLosses = 0
	} else if pnl < 0 {
		m.account.LosingTrades++
		m.account.ConsecutiveLosses++
	}

	if m.account.TotalBalance > m.account.PeakBalance {
		m.account.PeakBalance = m.account.TotalBalance
	}
	drawdown := m.account.DrawdownFromPeak()
	if drawdown > m.account.MaxDrawdown {
		m.account.MaxDrawdown = drawdown
	}
	m.account.UpdatedAt = nowTime

	// 连亏达到阈值 → 进入冷却
	if m.config.CooldownAfterLosses > 0 &&
		m.account.ConsecutiveLosses >= m.config.CooldownAfterLosses &&
		!m.account.CooldownActive {
		m.account.CooldownActive = true
		m.account.CooldownEndTime = nowTime.Add(m.config.CooldownDuration)
		if m.account.State == types.AccountActive {
			m.account.State = types.AccountCooldown
		}
		m.emit(types.RiskEventCooldown, types.SeverityWarning, symbol,
			fmt.Sprintf("连续亏损 %d 次，冷却至 %s",
				m.account.ConsecutiveLosses,
				m.account.CooldownEndTime.Format("2006-01-02 15:04:05")),
			float64(m.account.ConsecutiveLosses), float64(m.config.CooldownAfterLosses), nowTime)
		zap.L().Warn("🛑 连续亏损触发冷却",
			zap.Int("consecutive_losses", m.account.ConsecutiveLosses),
			zap.Time("cooldown_end", m.account.CooldownEndTime))
	}

	m.checkDrawdownLocked(symbol, drawdown, nowTime)
	m.persist()
}

// checkDrawdownLocked 回撤阈值动作，调用方必须持锁
func (m *Manager) checkDrawdownLocked(symbol string, drawdown float64, nowTime time.Time) {
	if m.config.EmergencyStopDrawdown > 0 && drawdown >= m.config.EmergencyStopDrawdown {
		if m.account.State != types.AccountEmergency {
			m.account.State = types.AccountEmergency
			zap.L().Error("🚨 回撤触发硬停，账户进入紧急状态",
				zap.Float64("drawdown", drawdown),
				zap.Float64("threshold", m.config.EmergencyStopDrawdown))
		}
	}

	switch {
	case drawdown >= m.config.MaxDrawdown:
		m.emit(types.RiskEventEmergencyStop, types.SeverityCritical, symbol,
			"回撤超过最大容忍，执行紧急全平", drawdown, m.config.MaxDrawdown, nowTime)
		zap.L().Error("🚨 紧急停止：回撤超限",
			zap.Float64("drawdown", drawdown),
			zap.Float64("max_drawdown", m.config.MaxDrawdown))
		if m.closeAll != nil {
			// 回调在锁外异步执行，避免平仓记账回调重入死锁
			go m.closeAll(fmt.Sprintf("回撤 %.2f%% 超过上限 %.2f%%", drawdown*100, m.config.MaxDrawdown*100))
		}
	case drawdown >= m.config.MaxDrawdown*drawdownWarnRatio:
		m.emit(types.RiskEventDrawdownWarning, types.SeverityWarning, symbol,
			"回撤接近最大容忍", drawdown, m.config.MaxDrawdown, nowTime)
		zap.L().Warn("⚠️ 回撤预警",
			zap.Float64("drawdown", drawdown),
			zap.Float64("max_drawdown", m.config.MaxDrawdown))
	}
}

// MarkUnrealized 刷新未实现盈亏（行情推动，不改变已实现记账）
func (m *Manager) MarkUnrealized(unrealized float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.account.UnrealizedPnl = unrealized
	m.account.UpdatedAt = m.now()
}

// CheckCooldownExpiry 调度器周期调用，冷却到期则恢复账户
func (m *Manager) CheckCooldownExpiry() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.account.CooldownActive {
		return
	}
	if m.now().Before(m.account.CooldownEndTime) {
		return
	}
	m.account.CooldownActive = false
	if m.account.State == types.AccountCooldown {
		m.account.State = types.AccountActive
	}
	m.account.UpdatedAt = m.now()
	zap.L().Info("✅ 冷却期结束，账户恢复交易")
	m.persist()
}

// emit 发布并落库风险事件，调用方必须持锁
func (m *Manager) emit(eventType, severity, symbol, message string, value, threshold float64, nowTime time.Time) {
	event := &types.RiskEvent{
		EventType: eventType,
		Severity:  severity,
		Symbol:    symbol,
		Message:   message,
		Value:     value,
		Threshold: threshold,
		Timestamp: nowTime,
	}
	if m.events != nil {
		m.events.Publish(event)
	}
	if m.store != nil {
		if err := m.store.SaveRiskEvent(event); err != nil {
			zap.L().Error("保存风险事件失败", zap.Error(err), zap.String("event_type", eventType))
		}
	}
}

// persist 落库账户状态，调用方必须持锁
func (m *Manager) persist() {
	if m.store == nil {
		return
	}
	snapshot := m.account
	if err := m.store.SaveAccountStatus(&snapshot); err != nil {
		zap.L().Error("保存账户状态失败", zap.Error(err))
	}
}

// PositionSize 统一仓位公式：数量 = 余额×单笔风险占比 ÷ |入场价−止损价|。
// 实盘与回测共用，止损距离为零时返回0
func PositionSize(balance, maxRiskPerTrade, entry, stop float64) float64 {
	dist := math.Abs(entry - stop)
	if dist <= 0 || balance <= 0 {
		return 0
	}
	return balance * maxRiskPerTrade / dist
}
