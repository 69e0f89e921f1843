package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quant-decision-core/pkg/types"
)

// accountRowID 账户状态单行记录的固定主键
const accountRowID = 1

// Manager 数据库管理器
type Manager struct {
	db     *gorm.DB
	config types.MySQLConfig
}

// KLine 数据库K线模型
type KLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	OpenTime  int64     `gorm:"not null;index:idx_symbol_time" json:"open_time"`
	CloseTime int64     `gorm:"not null;index:idx_close_time" json:"close_time"`
	Open      float64   `gorm:"type:decimal(20,8);not null" json:"open"`
	High      float64   `gorm:"type:decimal(20,8);not null" json:"high"`
	Low       float64   `gorm:"type:decimal(20,8);not null" json:"low"`
	Close     float64   `gorm:"type:decimal(20,8);not null" json:"close"`
	Volume    float64   `gorm:"type:decimal(20,8);not null" json:"volume"`
	CVD       float64   `gorm:"type:decimal(20,8);not null;default:0" json:"cvd"`
	Interval  string    `gorm:"type:varchar(10);not null;default:'15m'" json:"interval"`
	CreatedAt time.Time `json:"created_at"`
}

// TradingSignal 交易信号模型，只追加
type TradingSignal struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SignalID         string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"signal_id"`
	Symbol           string    `gorm:"type:varchar(20);not null;index:idx_symbol_time" json:"symbol"`
	Interval         string    `gorm:"type:varchar(10);not null" json:"interval"`
	SignalTime       int64     `gorm:"not null;index:idx_symbol_time" json:"signal_time"`
	Price            float64   `gorm:"type:decimal(20,8);not null" json:"price"`
	SignalType       string    `gorm:"type:varchar(12);not null" json:"signal_type"`
	Strength         string    `gorm:"type:varchar(12);not null" json:"strength"`
	Confidence       float64   `gorm:"type:decimal(5,4);not null" json:"confidence"`
	TotalScore       float64   `gorm:"type:decimal(10,4);not null" json:"total_score"`
	TrendScore       float64   `gorm:"type:decimal(10,4)" json:"trend_score"`
	MomentumScore    float64   `gorm:"type:decimal(10,4)" json:"momentum_score"`
	VolumeScore      float64   `gorm:"type:decimal(10,4)" json:"volume_score"`
	VolatilityScore  float64   `gorm:"type:decimal(10,4)" json:"volatility_score"`
	DerivativesScore float64   `gorm:"type:decimal(10,4)" json:"derivatives_score"`
	Indicators       string    `gorm:"type:text" json:"indicators"` // JSON编码的指标快照
	StopLoss         float64   `gorm:"type:decimal(20,8)" json:"stop_loss"`
	TakeProfit       float64   `gorm:"type:decimal(20,8)" json:"take_profit"`
	Leverage         float64   `gorm:"type:decimal(6,2)" json:"leverage"`
	RiskReward       float64   `gorm:"type:decimal(6,2)" json:"risk_reward"`
	Active           bool      `gorm:"default:true;index" json:"active"`
	ExpiresAt        int64     `gorm:"not null;index" json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
}

// RiskEvent 风险事件模型，只追加
type RiskEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	EventType string    `gorm:"type:varchar(32);not null;index" json:"event_type"`
	Severity  string    `gorm:"type:varchar(12);not null" json:"severity"`
	Symbol    string    `gorm:"type:varchar(20);index" json:"symbol"`
	Message   string    `gorm:"type:varchar(255)" json:"message"`
	Value     float64   `gorm:"type:decimal(20,8)" json:"value"`
	Threshold float64   `gorm:"type:decimal(20,8)" json:"threshold"`
	EventTime int64     `gorm:"not null;index" json:"event_time"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountStatus 账户状态模型，单行覆盖写
type AccountStatus struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	TotalBalance      float64   `gorm:"type:decimal(20,8);not null" json:"total_balance"`
	AvailableBalance  float64   `gorm:"type:decimal(20,8);not null" json:"available_balance"`
	UnrealizedPnl     float64   `gorm:"type:decimal(20,8)" json:"unrealized_pnl"`
	RealizedPnl       float64   `gorm:"type:decimal(20,8)" json:"realized_pnl"`
	CurrentRisk       float64   `gorm:"type:decimal(10,6)" json:"current_risk"`
	PeakBalance       float64   `gorm:"type:decimal(20,8)" json:"peak_balance"`
	MaxDrawdown       float64   `gorm:"type:decimal(10,6)" json:"max_drawdown"`
	OpenPositions     int       `gorm:"default:0" json:"open_positions"`
	TotalTrades       int       `gorm:"default:0" json:"total_trades"`
	WinningTrades     int       `gorm:"default:0" json:"winning_trades"`
	LosingTrades      int       `gorm:"default:0" json:"losing_trades"`
	ConsecutiveLosses int       `gorm:"default:0" json:"consecutive_losses"`
	State             string    `gorm:"type:varchar(12);not null;default:'ACTIVE'" json:"state"`
	CooldownActive    bool      `gorm:"default:false" json:"cooldown_active"`
	CooldownEndTime   int64     `json:"cooldown_end_time"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// BacktestResult 回测结果模型
type BacktestResult struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	RunID          string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"run_id"`
	Symbol         string    `gorm:"type:varchar(20);not null;index" json:"symbol"`
	Interval       string    `gorm:"type:varchar(10);not null" json:"interval"`
	StartTime      int64     `gorm:"not null" json:"start_time"`
	EndTime        int64     `gorm:"not null" json:"end_time"`
	BarsProcessed  int       `json:"bars_processed"`
	InitialBalance float64   `gorm:"type:decimal(20,8)" json:"initial_balance"`
	FinalBalance   float64   `gorm:"type:decimal(20,8)" json:"final_balance"`
	TotalReturnPct float64   `gorm:"type:decimal(12,6)" json:"total_return_pct"`
	TotalTrades    int       `json:"total_trades"`
	WinningTrades  int       `json:"winning_trades"`
	LosingTrades   int       `json:"losing_trades"`
	WinRate        float64   `gorm:"type:decimal(6,4)" json:"win_rate"`
	ProfitFactor   float64   `json:"profit_factor"`
	AvgWin         float64   `gorm:"type:decimal(20,8)" json:"avg_win"`
	AvgLoss        float64   `gorm:"type:decimal(20,8)" json:"avg_loss"`
	LargestWin     float64   `gorm:"type:decimal(20,8)" json:"largest_win"`
	LargestLoss    float64   `gorm:"type:decimal(20,8)" json:"largest_loss"`
	MaxDrawdown    float64   `gorm:"type:decimal(10,6)" json:"max_drawdown"`
	SharpeRatio    float64   `gorm:"type:decimal(12,6)" json:"sharpe_ratio"`
	SortinoRatio   float64   `gorm:"type:decimal(12,6)" json:"sortino_ratio"`
	CalmarRatio    float64   `gorm:"type:decimal(12,6)" json:"calmar_ratio"`
	AvgHoldBars    float64   `gorm:"type:decimal(10,2)" json:"avg_hold_bars"`
	MaxHoldBars    int       `json:"max_hold_bars"`
	LongestWinRun  int       `json:"longest_win_run"`
	LongestLossRun int       `json:"longest_loss_run"`
	CreatedAt      time.Time `json:"created_at"`
}

// BacktestTrade 回测交易模型，按RunID归属
type BacktestTrade struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"type:varchar(36);not null;index" json:"run_id"`
	Symbol     string    `gorm:"type:varchar(20);not null" json:"symbol"`
	Side       string    `gorm:"type:varchar(8);not null" json:"side"`
	EntryPrice float64   `gorm:"type:decimal(20,8)" json:"entry_price"`
	ExitPrice  float64   `gorm:"type:decimal(20,8)" json:"exit_price"`
	Quantity   float64   `gorm:"type:decimal(20,8)" json:"quantity"`
	Leverage   float64   `gorm:"type:decimal(6,2)" json:"leverage"`
	GrossPnl   float64   `gorm:"type:decimal(20,8)" json:"gross_pnl"`
	Commission float64   `gorm:"type:decimal(20,8)" json:"commission"`
	NetPnl     float64   `gorm:"type:decimal(20,8)" json:"net_pnl"`
	ReturnPct  float64   `gorm:"type:decimal(12,6)" json:"return_pct"`
	ExitReason string    `gorm:"type:varchar(16)" json:"exit_reason"`
	EntryTime  int64     `json:"entry_time"`
	ExitTime   int64     `json:"exit_time"`
	HoldBars   int       `json:"hold_bars"`
	CreatedAt  time.Time `json:"created_at"`
}

// ConfigRecord 配置快照，按名称覆盖写，JSON载荷留档审计
type ConfigRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"name"`
	Payload   string    `gorm:"type:text;not null" json:"payload"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BacktestSnapshot 回测权益快照模型，按RunID归属
type BacktestSnapshot struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	RunID        string    `gorm:"type:varchar(36);not null;index" json:"run_id"`
	Bar          int       `gorm:"not null" json:"bar"`
	SnapshotTime int64     `gorm:"not null" json:"snapshot_time"`
	Balance      float64   `gorm:"type:decimal(20,8)" json:"balance"`
	Equity       float64   `gorm:"type:decimal(20,8)" json:"equity"`
	Drawdown     float64   `gorm:"type:decimal(10,6)" json:"drawdown"`
	WinRate      float64   `gorm:"type:decimal(6,4)" json:"win_rate"`
	ProfitFactor float64   `json:"profit_factor"`
	TradeCount   int       `json:"trade_count"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewManager 创建数据库管理器
func NewManager(config types.MySQLConfig) (*Manager, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		config.Username,
		config.Password,
		config.Host,
		config.Port,
		config.Database,
	)

	// 配置GORM日志
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent), // 生产环境使用Silent
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %v", err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取数据库实例失败: %v", err)
	}

	sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	manager := &Manager{
		db:     db,
		config: config,
	}

	// 自动迁移表结构
	if err := manager.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("数据库迁移失败: %v", err)
	}

	zap.L().Info("✅ MySQL数据库连接成功",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("database", config.Database))

	return manager, nil
}

// AutoMigrate 自动迁移表结构
func (m *Manager) AutoMigrate() error {
	return m.db.AutoMigrate(
		&KLine{},
		&TradingSignal{},
		&RiskEvent{},
		&AccountStatus{},
		&BacktestResult{},
		&BacktestTrade{},
		&BacktestSnapshot{},
		&ConfigRecord{},
	)
}

// SaveConfigSnapshot 覆盖写一份命名配置快照
func (m *Manager) SaveConfigSnapshot(name string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("序列化配置快照失败: %v", err)
	}

	record := ConfigRecord{Name: name}
	return m.db.Where(ConfigRecord{Name: name}).
		Assign(ConfigRecord{Payload: string(payload), UpdatedAt: time.Now()}).
		FirstOrCreate(&record).Error
}

// LoadConfigSnapshot 读取命名配置快照，无记录返回false
func (m *Manager) LoadConfigSnapshot(name string, out interface{}) (bool, error) {
	var record ConfigRecord
	err := m.db.Where("name = ?", name).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(record.Payload), out); err != nil {
		return false, fmt.Errorf("解码配置快照失败: %v", err)
	}
	return true, nil
}

// SaveTradingSignal 保存交易信号
func (m *Manager) SaveTradingSignal(signal *types.TradingSignal) error {
	indicatorsJSON, err := json.Marshal(signal.Indicators)
	if err != nil {
		return fmt.Errorf("序列化指标快照失败: %v", err)
	}

	dbSignal := &TradingSignal{
		SignalID:         signal.ID,
		Symbol:           signal.Symbol,
		Interval:         signal.Interval,
		SignalTime:       signal.Timestamp.Unix(),
		Price:            signal.Price,
		SignalType:       signal.SignalType,
		Strength:         signal.Strength,
		Confidence:       signal.Confidence,
		TotalScore:       signal.TotalScore,
		TrendScore:       signal.TrendScore,
		MomentumScore:    signal.MomentumScore,
		VolumeScore:      signal.VolumeScore,
		VolatilityScore:  signal.VolatilityScore,
		DerivativesScore: signal.DerivativesScore,
		Indicators:       string(indicatorsJSON),
		StopLoss:         signal.StopLoss,
		TakeProfit:       signal.TakeProfit,
		Leverage:         signal.Leverage,
		RiskReward:       signal.RiskReward,
		Active:           signal.Active,
		ExpiresAt:        signal.ExpiresAt.Unix(),
		CreatedAt:        time.Now(),
	}

	return m.db.Create(dbSignal).Error
}

// DeactivateExpiredSignals 将过期信号置为失效，返回影响行数
func (m *Manager) DeactivateExpiredSignals(now time.Time) (int64, error) {
	result := m.db.Model(&TradingSignal{}).
		Where("active = ? AND expires_at <= ?", true, now.Unix()).
		Update("active", false)
	return result.RowsAffected, result.Error
}

// DeactivateSignal 按信号ID显式失效
func (m *Manager) DeactivateSignal(signalID string) error {
	return m.db.Model(&TradingSignal{}).
		Where("signal_id = ?", signalID).
		Update("active", false).Error
}

// GetActiveSignals 获取未过期的活跃信号
func (m *Manager) GetActiveSignals(symbol string, limit int) ([]*types.TradingSignal, error) {
	var dbSignals []TradingSignal
	query := m.db.Where("active = ?", true)
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	err := query.Order("signal_time DESC").Limit(limit).Find(&dbSignals).Error
	if err != nil {
		return nil, err
	}
	return toSignals(dbSignals), nil
}

// GetSignalHistory 获取信号历史（含已失效）
func (m *Manager) GetSignalHistory(symbol string, limit int) ([]*types.TradingSignal, error) {
	var dbSignals []TradingSignal
	query := m.db.Model(&TradingSignal{})
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	err := query.Order("signal_time DESC").Limit(limit).Find(&dbSignals).Error
	if err != nil {
		return nil, err
	}
	return toSignals(dbSignals), nil
}

// SaveRiskEvent 保存风险事件
func (m *Manager) SaveRiskEvent(event *types.RiskEvent) error {
	return m.db.Create(&RiskEvent{
		EventType: event.EventType,
		Severity:  event.Severity,
		Symbol:    event.Symbol,
		Message:   event.Message,
		Value:     event.Value,
		Threshold: event.Threshold,
		EventTime: event.Timestamp.Unix(),
		CreatedAt: time.Now(),
	}).Error
}

// GetRiskEvents 获取最近的风险事件
func (m *Manager) GetRiskEvents(symbol string, limit int) ([]*types.RiskEvent, error) {
	var dbEvents []RiskEvent
	query := m.db.Model(&RiskEvent{})
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	err := query.Order("event_time DESC").Limit(limit).Find(&dbEvents).Error
	if err != nil {
		return nil, err
	}

	events := make([]*types.RiskEvent, 0, len(dbEvents))
	for _, e := range dbEvents {
		events = append(events, &types.RiskEvent{
			EventType: e.EventType,
			Severity:  e.Severity,
			Symbol:    e.Symbol,
			Message:   e.Message,
			Value:     e.Value,
			Threshold: e.Threshold,
			Timestamp: time.Unix(e.EventTime, 0),
		})
	}
	return events, nil
}

// SaveAccountStatus 覆盖写账户状态单行
func (m *Manager) SaveAccountStatus(status *types.AccountStatus) error {
	row := &AccountStatus{
		ID:                accountRowID,
		TotalBalance:      status.TotalBalance,
		AvailableBalance:  status.AvailableBalance,
		UnrealizedPnl:     status.UnrealizedPnl,
		RealizedPnl:       status.RealizedPnl,
		CurrentRisk:       status.CurrentRisk,
		PeakBalance:       status.PeakBalance,
		MaxDrawdown:       status.MaxDrawdown,
		OpenPositions:     status.OpenPositions,
		TotalTrades:       status.TotalTrades,
		WinningTrades:     status.WinningTrades,
		LosingTrades:      status.LosingTrades,
		ConsecutiveLosses: status.ConsecutiveLosses,
		State:             status.State,
		CooldownActive:    status.CooldownActive,
		CooldownEndTime:   status.CooldownEndTime.Unix(),
		UpdatedAt:         status.UpdatedAt,
	}
	return m.db.Save(row).Error
}

// LoadAccountStatus 读取账户状态，无记录返回nil
func (m *Manager) LoadAccountStatus() (*types.AccountStatus, error) {
	var row AccountStatus
	err := m.db.First(&row, accountRowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &types.AccountStatus{
		TotalBalance:      row.TotalBalance,
		AvailableBalance:  row.AvailableBalance,
		UnrealizedPnl:     row.UnrealizedPnl,
		RealizedPnl:       row.RealizedPnl,
		CurrentRisk:       row.CurrentRisk,
		PeakBalance:       row.PeakBalance,
		MaxDrawdown:       row.MaxDrawdown,
		OpenPositions:     row.OpenPositions,
		TotalTrades:       row.TotalTrades,
		WinningTrades:     row.WinningTrades,
		LosingTrades:      row.LosingTrades,
		ConsecutiveLosses: row.ConsecutiveLosses,
		State:             row.State,
		CooldownActive:    row.CooldownActive,
		CooldownEndTime:   time.Unix(row.CooldownEndTime, 0),
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

// SaveBacktestResult 保存回测结果及其交易和快照，单事务
func (m *Manager) SaveBacktestResult(result *types.BacktestResult) error {
	return m.db.Transaction(func(tx *gorm.DB) error {
		dbResult := &BacktestResult{
			RunID:          result.RunID,
			Symbol:         result.Symbol,
			Interval:       result.Interval,
			StartTime:      result.StartTime.Unix(),
			EndTime:        result.EndTime.Unix(),
			BarsProcessed:  result.BarsProcessed,
			InitialBalance: result.InitialBalance,
			FinalBalance:   result.FinalBalance,
			TotalReturnPct: result.TotalReturnPct,
			TotalTrades:    result.TotalTrades,
			WinningTrades:  result.WinningTrades,
			LosingTrades:   result.LosingTrades,
			WinRate:        result.WinRate,
			ProfitFactor:   result.ProfitFactor,
			AvgWin:         result.AvgWin,
			AvgLoss:        result.AvgLoss,
			LargestWin:     result.LargestWin,
			LargestLoss:    result.LargestLoss,
			MaxDrawdown:    result.MaxDrawdown,
			SharpeRatio:    result.SharpeRatio,
			SortinoRatio:   result.SortinoRatio,
			CalmarRatio:    result.CalmarRatio,
			AvgHoldBars:    result.AvgHoldBars,
			MaxHoldBars:    result.MaxHoldBars,
			LongestWinRun:  result.LongestWinRun,
			LongestLossRun: result.LongestLossRun,
			CreatedAt:      time.Now(),
		}
		if err := tx.Create(dbResult).Error; err != nil {
			return fmt.Errorf("保存回测结果失败: %v", err)
		}

		if len(result.Trades) > 0 {
			dbTrades := make([]BacktestTrade, 0, len(result.Trades))
			for _, t := range result.Trades {
				dbTrades = append(dbTrades, BacktestTrade{
					RunID:      result.RunID,
					Symbol:     t.Symbol,
					Side:       t.Side,
					EntryPrice: t.EntryPrice,
					ExitPrice:  t.ExitPrice,
					Quantity:   t.Quantity,
					Leverage:   t.Leverage,
					GrossPnl:   t.GrossPnl,
					Commission: t.Commission,
					NetPnl:     t.NetPnl,
					ReturnPct:  t.ReturnPct,
					ExitReason: t.ExitReason,
					EntryTime:  t.EntryTime.Unix(),
					ExitTime:   t.ExitTime.Unix(),
					HoldBars:   t.HoldBars,
					CreatedAt:  time.Now(),
				})
			}
			if err := tx.CreateInBatches(dbTrades, 100).Error; err != nil {
				return fmt.Errorf("批量保存回测交易失败: %v", err)
			}
		}

		if len(result.Snapshots) > 0 {
			dbSnapshots := make([]BacktestSnapshot, 0, len(result.Snapshots))
			for _, s := range result.Snapshots {
				dbSnapshots = append(dbSnapshots, BacktestSnapshot{
					RunID:        result.RunID,
					Bar:          s.Bar,
					SnapshotTime: s.Timestamp.Unix(),
					Balance:      s.Balance,
					Equity:       s.Equity,
					Drawdown:     s.Drawdown,
					WinRate:      s.WinRate,
					ProfitFactor: s.ProfitFactor,
					TradeCount:   s.TradeCount,
					CreatedAt:    time.Now(),
				})
			}
			if err := tx.CreateInBatches(dbSnapshots, 100).Error; err != nil {
				return fmt.Errorf("批量保存回测快照失败: %v", err)
			}
		}

		return nil
	})
}

// GetBacktestResult 按RunID读取回测报告（统计+交易列表+权益曲线）
func (m *Manager) GetBacktestResult(runID string) (*types.BacktestResult, error) {
	var dbResult BacktestResult
	if err := m.db.Where("run_id = ?", runID).First(&dbResult).Error; err != nil {
		return nil, err
	}

	var dbTrades []BacktestTrade
	if err := m.db.Where("run_id = ?", runID).Order("exit_time ASC").Find(&dbTrades).Error; err != nil {
		return nil, err
	}
	var dbSnapshots []BacktestSnapshot
	if err := m.db.Where("run_id = ?", runID).Order("bar ASC").Find(&dbSnapshots).Error; err != nil {
		return nil, err
	}

	result := &types.BacktestResult{
		RunID:          dbResult.RunID,
		Symbol:         dbResult.Symbol,
		Interval:       dbResult.Interval,
		StartTime:      time.Unix(dbResult.StartTime, 0),
		EndTime:        time.Unix(dbResult.EndTime, 0),
		BarsProcessed:  dbResult.BarsProcessed,
		InitialBalance: dbResult.InitialBalance,
		FinalBalance:   dbResult.FinalBalance,
		TotalReturnPct: dbResult.TotalReturnPct,
		TotalTrades:    dbResult.TotalTrades,
		WinningTrades:  dbResult.WinningTrades,
		LosingTrades:   dbResult.LosingTrades,
		WinRate:        dbResult.WinRate,
		ProfitFactor:   dbResult.ProfitFactor,
		AvgWin:         dbResult.AvgWin,
		AvgLoss:        dbResult.AvgLoss,
		LargestWin:     dbResult.LargestWin,
		LargestLoss:    dbResult.LargestLoss,
		MaxDrawdown:    dbResult.MaxDrawdown,
		SharpeRatio:    dbResult.SharpeRatio,
		SortinoRatio:   dbResult.SortinoRatio,
		CalmarRatio:    dbResult.CalmarRatio,
		AvgHoldBars:    dbResult.AvgHoldBars,
		MaxHoldBars:    dbResult.MaxHoldBars,
		LongestWinRun:  dbResult.LongestWinRun,
		LongestLossRun: dbResult.LongestLossRun,
	}

	for _, t := range dbTrades {
		result.Trades = append(result.Trades, &types.BacktestTrade{
			Symbol:     t.Symbol,
			Side:       t.Side,
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Quantity:   t.Quantity,
			Leverage:   t.Leverage,
			GrossPnl:   t.GrossPnl,
			Commission: t.Commission,
			NetPnl:     t.NetPnl,
			ReturnPct:  t.ReturnPct,
			ExitReason: t.ExitReason,
			EntryTime:  time.Unix(t.EntryTime, 0),
			ExitTime:   time.Unix(t.ExitTime, 0),
			HoldBars:   t.HoldBars,
		})
	}
	for _, s := range dbSnapshots {
		result.Snapshots = append(result.Snapshots, &types.BacktestSnapshot{
			Bar:          s.Bar,
			Timestamp:    time.Unix(s.SnapshotTime, 0),
			Balance:      s.Balance,
			Equity:       s.Equity,
			Drawdown:     s.Drawdown,
			WinRate:      s.WinRate,
			ProfitFactor: s.ProfitFactor,
			TradeCount:   s.TradeCount,
		})
	}

	return result, nil
}

// ListBacktestResults 列出最近的回测结果（不含交易明细）
func (m *Manager) ListBacktestResults(symbol string, limit int) ([]BacktestResult, error) {
	var results []BacktestResult
	query := m.db.Model(&BacktestResult{})
	if symbol != "" {
		query = query.Where("symbol = ?", symbol)
	}
	err := query.Order("created_at DESC").Limit(limit).Find(&results).Error
	return results, err
}

// BatchSaveKlines 批量保存K线数据
func (m *Manager) BatchSaveKlines(klines []*types.KLine) error {
	if len(klines) == 0 {
		return nil
	}

	dbKlines := make([]KLine, 0, len(klines))
	for _, kline := range klines {
		dbKlines = append(dbKlines, KLine{
			Symbol:    kline.Symbol,
			OpenTime:  kline.OpenTime.Unix(),
			CloseTime: kline.CloseTime.Unix(),
			Open:      kline.Open,
			High:      kline.High,
			Low:       kline.Low,
			Close:     kline.Close,
			Volume:    kline.Volume,
			CVD:       kline.CVD,
			Interval:  kline.Interval,
			CreatedAt: time.Now(),
		})
	}

	tx := m.db.Begin()
	if tx.Error != nil {
		return tx.Error
	}

	// 分批处理避免单个事务过大
	batchSize := 100
	for i := 0; i < len(dbKlines); i += batchSize {
		end := i + batchSize
		if end > len(dbKlines) {
			end = len(dbKlines)
		}
		if err := tx.CreateInBatches(dbKlines[i:end], end-i).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("批量插入K线数据失败: %v", err)
		}
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("提交批量插入事务失败: %v", err)
	}

	zap.L().Debug("✅ 批量保存K线数据完成",
		zap.Int("count", len(klines)),
		zap.String("first_symbol", klines[0].Symbol))

	return nil
}

// GetKLines 按时间升序获取K线数据
func (m *Manager) GetKLines(symbol string, interval string, limit int) ([]*types.KLine, error) {
	var dbKlines []KLine
	err := m.db.Where("symbol = ? AND `interval` = ?", symbol, interval).
		Order("open_time ASC").
		Limit(limit).
		Find(&dbKlines).Error
	if err != nil {
		return nil, err
	}

	klines := make([]*types.KLine, 0, len(dbKlines))
	for _, k := range dbKlines {
		klines = append(klines, &types.KLine{
			Symbol:    k.Symbol,
			OpenTime:  time.Unix(k.OpenTime, 0),
			CloseTime: time.Unix(k.CloseTime, 0),
			Open:      k.Open,
			High:      k.High,
			Low:       k.Low,
			Close:     k.Close,
			Volume:    k.Volume,
			CVD:       k.CVD,
			Interval:  k.Interval,
		})
	}
	return klines, nil
}

// Close 关闭数据库连接
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// toSignals 数据库模型转业务模型
func toSignals(dbSignals []TradingSignal) []*types.TradingSignal {
	signals := make([]*types.TradingSignal, 0, len(dbSignals))
	for _, s := range dbSignals {
		var indicators map[string]float64
		if s.Indicators != "" {
			// 解码失败不致命，指标快照留空
			_ = json.Unmarshal([]byte(s.Indicators), &indicators)
		}
		signals = append(signals, &types.TradingSignal{
			ID:               s.SignalID,
			Symbol:           s.Symbol,
			Interval:         s.Interval,
			Timestamp:        time.Unix(s.SignalTime, 0),
			Price:            s.Price,
			SignalType:       s.SignalType,
			Strength:         s.Strength,
			Confidence:       s.Confidence,
			TotalScore:       s.TotalScore,
			TrendScore:       s.TrendScore,
			MomentumScore:    s.MomentumScore,
			VolumeScore:      s.VolumeScore,
			VolatilityScore:  s.VolatilityScore,
			DerivativesScore: s.DerivativesScore,
			Indicators:       indicators,
			StopLoss:         s.StopLoss,
			TakeProfit:       s.TakeProfit,
			Leverage:         s.Leverage,
			RiskReward:       s.RiskReward,
			Active:           s.Active,
			ExpiresAt:        time.Unix(s.ExpiresAt, 0),
		})
	}
	return signals
}
