package stream

import (
	"sync"

	"go.uber.org/zap"

	"quant-decision-core/pkg/types"
)

// SignalStream 信号广播流。有界通道，满时丢弃最旧的待消费信号（新状态优先）
type SignalStream struct {
	ch      chan *types.TradingSignal
	mu      sync.Mutex
	dropped int64
}

// NewSignalStream 创建信号流
func NewSignalStream(capacity int) *SignalStream {
	if capacity <= 0 {
		capacity = 256
	}
	return &SignalStream{ch: make(chan *types.TradingSignal, capacity)}
}

// Publish 发布信号，通道满时淘汰最旧一条
func (s *SignalStream) Publish(signal *types.TradingSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.ch <- signal:
			return
		default:
		}
		select {
		case old := <-s.ch:
			s.dropped++
			zap.L().Warn("信号流已满，淘汰最旧信号",
				zap.String("dropped_id", old.ID),
				zap.Int64("total_dropped", s.dropped))
		default:
		}
	}
}

// C 消费端通道
func (s *SignalStream) C() <-chan *types.TradingSignal {
	return s.ch
}

// Dropped 累计丢弃数量
func (s *SignalStream) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// RiskEventStream 风险事件广播流，背压策略与信号流一致（丢最旧）
type RiskEventStream struct {
	ch      chan *types.RiskEvent
	mu      sync.Mutex
	dropped int64
}

// NewRiskEventStream 创建风险事件流
func NewRiskEventStream(capacity int) *RiskEventStream {
	if capacity <= 0 {
		capacity = 256
	}
	return &RiskEventStream{ch: make(chan *types.RiskEvent, capacity)}
}

// Publish 发布风险事件，通道满时淘汰最旧一条
func (s *RiskEventStream) Publish(event *types.RiskEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped++
		default:
		}
	}
}

// C 消费端通道
func (s *RiskEventStream) C() <-chan *types.RiskEvent {
	return s.ch
}

// ProgressStream 回测进度流。中间进度可丢弃，终止进度阻塞投递、必达
type ProgressStream struct {
	ch chan *types.BacktestProgress
}

// NewProgressStream 创建进度流
func NewProgressStream(capacity int) *ProgressStream {
	if capacity <= 0 {
		capacity = 64
	}
	return &ProgressStream{ch: make(chan *types.BacktestProgress, capacity)}
}

// Publish 发布进度更新。终止更新（Done=true）阻塞直到投递成功，
// 中间更新在通道满时直接丢弃
func (s *ProgressStream) Publish(p *types.BacktestProgress) {
	if p.Done {
		s.ch <- p
		return
	}
	select {
	case s.ch <- p:
	default:
	}
}

// C 消费端通道
func (s *ProgressStream) C() <-chan *types.BacktestProgress {
	return s.ch
}

// Close 关闭进度流，终止更新投递后由运行方调用
func (s *ProgressStream) Close() {
	close(s.ch)
}
