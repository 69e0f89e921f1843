package signal

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"quant-decision-core/internal/factors"
	"quant-decision-core/pkg/types"
)

// 置信度构成权重
const (
	consistencyWeight = 0.7
	strengthWeight    = 0.3
	strengthDivisor   = 3.0
	factorCount       = 5
)

// veryStrongMultiplier VERY_STRONG档位阈值 = strong阈值 × 1.25
const veryStrongMultiplier = 1.25

// volumeConfirmMin 成交量确认闸门要求的最小因子幅度
const volumeConfirmMin = 0.5

// 强度对应的杠杆折减系数
var leverageScale = map[string]float64{
	types.StrengthVeryStrong: 1.0,
	types.StrengthStrong:     0.8,
	types.StrengthMedium:     0.6,
	types.StrengthWeak:       0.4,
}

// Store 信号持久化接口
type Store interface {
	SaveTradingSignal(signal *types.TradingSignal) error
	DeactivateExpiredSignals(now time.Time) (int64, error)
}

// Publisher 信号发布接口
type Publisher interface {
	Publish(signal *types.TradingSignal)
}

// Engine 信号引擎：加权五因子评分 → 置信度 → 阈值分档 → 确认闸门 → 止损止盈
type Engine struct {
	config  types.SignalConfig
	factors *factors.Calculator
	store   Store
	stream  Publisher
}

// NewEngine 创建信号引擎。store/stream可为nil（回测场景纯计算）
func NewEngine(config types.SignalConfig, store Store, stream Publisher) *Engine {
	return &Engine{
		config:  config,
		factors: factors.NewCalculator(),
		store:   store,
		stream:  stream,
	}
}

// Config 当前信号配置
func (e *Engine) Config() types.SignalConfig {
	return e.config
}

// Evaluate 纯计算评估：对一根已收盘K线的指标快照产出信号或nil。
// history为倒序历史快照，candles为时间升序K线窗口。
// 任何panic被吞掉并以warning返回，绝不产出半填充的信号
func (e *Engine) Evaluate(current *types.IndicatorSnapshot, history []*types.IndicatorSnapshot, candles []*types.KLine, deriv *types.DerivativesMetrics) (signal *types.TradingSignal, warning string) {
	defer func() {
		if r := recover(); r != nil {
			signal = nil
			warning = fmt.Sprintf("signal evaluation panic: %v", r)
			zap.L().Error("信号评估异常",
				zap.String("symbol", current.Symbol),
				zap.Any("panic", r))
		}
	}()

	if current == nil {
		return nil, ""
	}

	scores := []types.FactorScore{
		e.factors.TrendFactor(current, history, e.config.TrendWeight),
		e.factors.MomentumFactor(current, history, e.config.MomentumWeight),
		e.factors.VolumeFactor(current, candles, e.config.VolumeWeight),
		e.factors.VolatilityFactor(current, history, e.config.VolatilityWeight),
		e.factors.DerivativesFactor(deriv, e.config.DerivativesWeight),
	}

	totalScore := 0.0
	for _, s := range scores {
		totalScore += s.Weighted
	}

	confidence := e.confidence(scores)

	signalType, strength := e.classify(totalScore)
	if signalType == types.SignalNeutral {
		return nil, ""
	}

	// 确认闸门：趋势因子必须支持方向
	trendRaw := scores[0].Raw
	if e.config.RequireTrendConfirm {
		if (signalType == types.SignalLong && trendRaw <= 0) ||
			(signalType == types.SignalShort && trendRaw >= 0) {
			zap.L().Debug("趋势确认未通过，信号否决",
				zap.String("symbol", current.Symbol),
				zap.Float64("trend_raw", trendRaw))
			return nil, ""
		}
	}

	// 确认闸门：成交量因子幅度必须足够
	if e.config.RequireVolumeConfirm && math.Abs(scores[2].Raw) <= volumeConfirmMin {
		zap.L().Debug("成交量确认未通过，信号否决",
			zap.String("symbol", current.Symbol),
			zap.Float64("volume_raw", scores[2].Raw))
		return nil, ""
	}

	if confidence < e.config.MinConfidence {
		zap.L().Debug("置信度不足，信号否决",
			zap.String("symbol", current.Symbol),
			zap.Float64("confidence", confidence),
			zap.Float64("min_required", e.config.MinConfidence))
		return nil, ""
	}

	stopLoss, takeProfit := e.stopAndTarget(signalType, current.Price, current.ATR)

	sig := &types.TradingSignal{
		ID:               uuid.NewString(),
		Symbol:           current.Symbol,
		Interval:         current.Interval,
		Timestamp:        current.Timestamp,
		Price:            current.Price,
		SignalType:       signalType,
		Strength:         strength,
		Confidence:       confidence,
		TotalScore:       totalScore,
		TrendScore:       scores[0].Weighted,
		MomentumScore:    scores[1].Weighted,
		VolumeScore:      scores[2].Weighted,
		VolatilityScore:  scores[3].Weighted,
		DerivativesScore: scores[4].Weighted,
		Indicators:       snapshotValues(current),
		StopLoss:         stopLoss,
		TakeProfit:       takeProfit,
		Leverage:         e.config.MaxLeverage * leverageScale[strength],
		RiskReward:       e.config.TakeProfitRatio,
		Active:           true,
		ExpiresAt:        current.Timestamp.Add(time.Duration(e.config.ExpiryMinutes) * time.Minute),
	}
	return sig, ""
}

// Process 实时评估入口：评估成功后发布到信号流并落库
func (e *Engine) Process(current *types.IndicatorSnapshot, history []*types.IndicatorSnapshot, candles []*types.KLine, deriv *types.DerivativesMetrics) *types.TradingSignal {
	sig, warning := e.Evaluate(current, history, candles, deriv)
	if warning != "" {
		zap.L().Warn("信号评估返回空结果", zap.String("warning", warning))
		return nil
	}
	if sig == nil {
		return nil
	}

	zap.L().Info("🎯 生成交易信号",
		zap.String("symbol", sig.Symbol),
		zap.String("type", sig.SignalType),
		zap.String("strength", sig.Strength),
		zap.Float64("score", sig.TotalScore),
		zap.Float64("confidence", sig.Confidence))

	if e.stream != nil {
		e.stream.Publish(sig)
	}
	if e.store != nil {
		if err := e.store.SaveTradingSignal(sig); err != nil {
			zap.L().Error("保存交易信号失败",
				zap.Error(err),
				zap.String("symbol", sig.Symbol))
		}
	}
	return sig
}

// SweepExpired 过期信号清扫，由调度器周期调用
func (e *Engine) SweepExpired(now time.Time) {
	if e.store == nil {
		return
	}
	n, err := e.store.DeactivateExpiredSignals(now)
	if err != nil {
		zap.L().Error("过期信号清扫失败", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Info("🧹 过期信号已失效", zap.Int64("count", n))
	}
}

// confidence 置信度 = 0.7×一致性 + 0.3×强度因子。
// 一致性为与多数方向一致的因子占比（平局取0.5），
// 强度因子为平均绝对原始分除以3.0后限幅[0,1]
func (e *Engine) confidence(scores []types.FactorScore) float64 {
	positive, negative := 0, 0
	absSum := 0.0
	for _, s := range scores {
		if s.Raw > 0 {
			positive++
		} else if s.Raw < 0 {
			negative++
		}
		absSum += math.Abs(s.Raw)
	}

	consistency := 0.5
	if positive != negative {
		consistency = float64(max(positive, negative)) / factorCount
	}

	strength := absSum / factorCount / strengthDivisor
	if strength > 1 {
		strength = 1
	}

	return consistencyWeight*consistency + strengthWeight*strength
}

// classify 按带符号总分做阈值分档，多空对称，边界取闭区间
func (e *Engine) classify(totalScore float64) (string, string) {
	magnitude := math.Abs(totalScore)
	if magnitude < e.config.WeakThreshold {
		return types.SignalNeutral, ""
	}

	direction := types.SignalLong
	if totalScore < 0 {
		direction = types.SignalShort
	}

	switch {
	case magnitude >= e.config.StrongThreshold*veryStrongMultiplier:
		return direction, types.StrengthVeryStrong
	case magnitude >= e.config.StrongThreshold:
		return direction, types.StrengthStrong
	case magnitude >= e.config.MediumThreshold:
		return direction, types.StrengthMedium
	default:
		return direction, types.StrengthWeak
	}
}

// stopAndTarget 止损 = 入场价 ∓ ATR×倍数，止盈按盈亏比延伸风险距离
func (e *Engine) stopAndTarget(signalType string, price, atr float64) (float64, float64) {
	riskDistance := atr * e.config.StopLossATRMultiple
	if signalType == types.SignalLong {
		stop := price - riskDistance
		return stop, price + riskDistance*e.config.TakeProfitRatio
	}
	stop := price + riskDistance
	return stop, price - riskDistance*e.config.TakeProfitRatio
}

// snapshotValues 摘录评估所用的指标值，随信号留档
func snapshotValues(s *types.IndicatorSnapshot) map[string]float64 {
	values := map[string]float64{
		"price":       s.Price,
		"volume":      s.Volume,
		"ema12":       s.EMA12,
		"ema26":       s.EMA26,
		"sma20":       s.SMA20,
		"macd":        s.MACD,
		"macd_signal": s.MACDSignal,
		"macd_hist":   s.MACDHist,
		"rsi":         s.RSI,
		"atr":         s.ATR,
		"boll_upper":  s.BollUpper,
		"boll_lower":  s.BollLower,
		"vwap":        s.VWAP,
		"cvd":         s.CVD,
	}
	if s.EMA50 != nil {
		values["ema50"] = *s.EMA50
	}
	if s.EMA200 != nil {
		values["ema200"] = *s.EMA200
	}
	return values
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
