package types

import "time"

// Config 主配置结构
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Network  NetworkConfig  `mapstructure:"network"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Signal   SignalConfig   `mapstructure:"signal"`
	Risk     RiskConfig     `mapstructure:"risk"`
	Backtest BacktestConfig `mapstructure:"backtest"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // 日志级别
	FilePath   string `mapstructure:"file_path"`   // 日志输出路径名
	MaxSize    int    `mapstructure:"max_size"`    // 日志文件大小 单位：MB，超限后会自动切割
	MaxAge     int    `mapstructure:"max_age"`     // 日志文件存放时间 单位：天
	MaxBackups int    `mapstructure:"max_backups"` // 日志文件备份数量
	Compress   bool   `mapstructure:"compress"`    // 日志文件压缩
	Console    bool   `mapstructure:"console"`     // 是否同时输出到控制台
}

// RedisConfig Redis配置
type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
}

// MySQLConfig MySQL配置
type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// NetworkConfig 网络配置
type NetworkConfig struct {
	Proxy   string        `mapstructure:"proxy"`   // HTTP代理地址，如 http://127.0.0.1:7890
	Timeout time.Duration `mapstructure:"timeout"` // 网络超时时间
}

// EngineConfig 实时引擎配置
type EngineConfig struct {
	Symbols       []string `mapstructure:"symbols"`
	Interval      string   `mapstructure:"interval"`        // K线周期，如 15m
	BufferSize    int      `mapstructure:"buffer_size"`     // 每个交易对保留的K线数量
	SignalChanCap int      `mapstructure:"signal_chan_cap"` // 信号流容量
	EventChanCap  int      `mapstructure:"event_chan_cap"`  // 风险事件流容量
}

// FetchConfig 衍生品指标拉取配置
type FetchConfig struct {
	Interval time.Duration `mapstructure:"interval"` // 拉取周期
	Enabled  bool          `mapstructure:"enabled"`
}

// SignalConfig 信号引擎配置，单账户一份，运行期可由运维替换
type SignalConfig struct {
	TrendWeight       float64 `mapstructure:"trend_weight"`
	MomentumWeight    float64 `mapstructure:"momentum_weight"`
	VolumeWeight      float64 `mapstructure:"volume_weight"`
	VolatilityWeight  float64 `mapstructure:"volatility_weight"`
	DerivativesWeight float64 `mapstructure:"derivatives_weight"`

	StrongThreshold float64 `mapstructure:"strong_threshold"`
	MediumThreshold float64 `mapstructure:"medium_threshold"`
	WeakThreshold   float64 `mapstructure:"weak_threshold"`

	MinConfidence        float64 `mapstructure:"min_confidence"`
	RequireTrendConfirm  bool    `mapstructure:"require_trend_confirm"`  // 趋势确认闸门
	RequireVolumeConfirm bool    `mapstructure:"require_volume_confirm"` // 成交量确认闸门

	ExpiryMinutes       int     `mapstructure:"expiry_minutes"`
	StopLossATRMultiple float64 `mapstructure:"stop_loss_atr_multiple"`
	TakeProfitRatio     float64 `mapstructure:"take_profit_ratio"`
	MaxLeverage         float64 `mapstructure:"max_leverage"`
}

// WeightSum 五因子权重之和
func (c *SignalConfig) WeightSum() float64 {
	return c.TrendWeight + c.MomentumWeight + c.VolumeWeight + c.VolatilityWeight + c.DerivativesWeight
}

// RiskConfig 风险预算配置
type RiskConfig struct {
	InitialBalance  float64 `mapstructure:"initial_balance"`    // 账户初始余额，无持久化记录时使用
	MaxRiskPerTrade float64 `mapstructure:"max_risk_per_trade"` // 单笔风险占比上限
	MaxTotalRisk    float64 `mapstructure:"max_total_risk"`     // 聚合风险占比上限
	MaxPositions    int     `mapstructure:"max_positions"`      // 最大并发持仓数

	MaxDrawdown            float64 `mapstructure:"max_drawdown"`             // 触发紧急停止的回撤
	EmergencyStopDrawdown  float64 `mapstructure:"emergency_stop_drawdown"`  // 硬停回撤，账户进入EMERGENCY态
	LeverageReduceDrawdown float64 `mapstructure:"leverage_reduce_drawdown"` // 触发降杠杆建议的回撤

	CooldownAfterLosses int           `mapstructure:"cooldown_after_losses"` // 连亏触发冷却的次数
	CooldownDuration    time.Duration `mapstructure:"cooldown_duration"`

	MinAccountBalance float64 `mapstructure:"min_account_balance"`
	MaxLeverage       float64 `mapstructure:"max_leverage"`
}

// BacktestConfig 回测配置，不可变输入
type BacktestConfig struct {
	InitialBalance   float64 `mapstructure:"initial_balance"`
	CommissionRate   float64 `mapstructure:"commission_rate"` // 单边手续费率
	MaxPositions     int     `mapstructure:"max_positions"`
	MaxRiskPerTrade  float64 `mapstructure:"max_risk_per_trade"`
	SnapshotInterval int     `mapstructure:"snapshot_interval"` // 快照K线间隔
	ProgressInterval int     `mapstructure:"progress_interval"` // 进度上报K线间隔
}
