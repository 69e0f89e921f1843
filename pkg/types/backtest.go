package types

import "time"

// 回测平仓原因
const (
	ExitStopLoss   = "STOP_LOSS"
	ExitTakeProfit = "TAKE_PROFIT"
	ExitSignal     = "SIGNAL"
	ExitTimeLimit  = "TIME_LIMIT"
)

// BacktestPosition 回测模拟持仓
type BacktestPosition struct {
	Symbol        string    `json:"symbol"`
	Side          string    `json:"side"` // LONG, SHORT
	EntryPrice    float64   `json:"entry_price"`
	Quantity      float64   `json:"quantity"`
	Leverage      float64   `json:"leverage"`
	StopLoss      float64   `json:"stop_loss"`
	TakeProfit    float64   `json:"take_profit"`
	Margin        float64   `json:"margin"`
	UnrealizedPnl float64   `json:"unrealized_pnl"`
	EntryTime     time.Time `json:"entry_time"`
	EntryBar      int       `json:"entry_bar"`
}

// BacktestTrade 回测已平仓交易，持久化输出
type BacktestTrade struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Quantity   float64   `json:"quantity"`
	Leverage   float64   `json:"leverage"`
	GrossPnl   float64   `json:"gross_pnl"`
	Commission float64   `json:"commission"` // 双边手续费合计
	NetPnl     float64   `json:"net_pnl"`
	ReturnPct  float64   `json:"return_pct"` // 相对保证金的收益率
	ExitReason string    `json:"exit_reason"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	HoldBars   int       `json:"hold_bars"`
}

// BacktestSnapshot 回测过程中的定期权益快照
type BacktestSnapshot struct {
	Bar          int       `json:"bar"`
	Timestamp    time.Time `json:"timestamp"`
	Balance      float64   `json:"balance"`
	Equity       float64   `json:"equity"`
	Drawdown     float64   `json:"drawdown"`
	WinRate      float64   `json:"win_rate"`
	ProfitFactor float64   `json:"profit_factor"`
	TradeCount   int       `json:"trade_count"`
}

// BacktestState 单次回测的工作内存，仅在运行期间存在
type BacktestState struct {
	Balance       float64             `json:"balance"`
	Equity        float64             `json:"equity"`
	PeakEquity    float64             `json:"peak_equity"`
	MaxDrawdown   float64             `json:"max_drawdown"`
	OpenPositions []*BacktestPosition `json:"open_positions"`
	ClosedTrades  []*BacktestTrade    `json:"closed_trades"`
	Snapshots     []*BacktestSnapshot `json:"snapshots"`
}

// BacktestResult 回测最终统计，持久化输出
type BacktestResult struct {
	RunID          string    `json:"run_id"`
	Symbol         string    `json:"symbol"`
	Interval       string    `json:"interval"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	BarsProcessed  int       `json:"bars_processed"`
	InitialBalance float64   `json:"initial_balance"`
	FinalBalance   float64   `json:"final_balance"`
	TotalReturnPct float64   `json:"total_return_pct"`

	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	WinRate       float64 `json:"win_rate"`
	ProfitFactor  float64 `json:"profit_factor"`

	AvgWin      float64 `json:"avg_win"`
	AvgLoss     float64 `json:"avg_loss"`
	LargestWin  float64 `json:"largest_win"`
	LargestLoss float64 `json:"largest_loss"`

	MaxDrawdown  float64 `json:"max_drawdown"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	AvgHoldBars    float64 `json:"avg_hold_bars"`
	MaxHoldBars    int     `json:"max_hold_bars"`
	LongestWinRun  int     `json:"longest_win_run"`
	LongestLossRun int     `json:"longest_loss_run"`

	Trades    []*BacktestTrade    `json:"trades"`
	Snapshots []*BacktestSnapshot `json:"snapshots"`
}

// BacktestProgress 回测进度更新，通过进度流上报
type BacktestProgress struct {
	RunID        string  `json:"run_id"`
	Bar          int     `json:"bar"`
	TotalBars    int     `json:"total_bars"`
	TradeCount   int     `json:"trade_count"`
	SignalCount  int     `json:"signal_count"`
	Balance      float64 `json:"balance"`
	Drawdown     float64 `json:"drawdown"`
	Done         bool    `json:"done"`  // 终止标志
	Error        string  `json:"error"` // 失败时携带错误，Done必为true
	ElapsedMs    int64   `json:"elapsed_ms"`
	CurrentPrice float64 `json:"current_price"`
}
