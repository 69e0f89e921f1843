package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"quant-decision-core/pkg/types"
)

const (
	redisOpTimeout  = 3 * time.Second
	redisKeyExpiry  = 30 * time.Minute
	derivKeyPrefix  = "quant:deriv:"
	signalKeyPrefix = "quant:signal:"
)

// StateManager 运行期状态管理器：按交易对维护衍生品指标与最新信号，
// 注册表首次访问即创建，Redis可用时异步备份，不可用时纯内存运行
type StateManager struct {
	derivatives map[string]*types.DerivativesMetrics
	lastSignals map[string]*types.TradingSignal
	mutex       sync.RWMutex
	redisClient *redis.Client
	useRedis    bool
}

// NewStateManager 创建状态管理器，Redis连接失败降级为纯内存模式
func NewStateManager(redisConfig types.RedisConfig) *StateManager {
	sm := &StateManager{
		derivatives: make(map[string]*types.DerivativesMetrics),
		lastSignals: make(map[string]*types.TradingSignal),
	}

	// 尝试连接Redis
	if redisConfig.URL != "" {
		sm.redisClient = redis.NewClient(&redis.Options{
			Addr:     redisConfig.URL,
			Password: redisConfig.Password,
			DB:       redisConfig.DB,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := sm.redisClient.Ping(ctx).Result(); err != nil {
			zap.L().Warn("⚠️ Redis连接失败，使用纯内存模式", zap.Error(err))
			sm.useRedis = false
		} else {
			zap.L().Info("✅ Redis连接成功")
			sm.useRedis = true
		}
	} else {
		zap.L().Info("🔧 未配置Redis，使用纯内存模式")
	}

	return sm
}

// UpdateDerivatives 更新某交易对的衍生品指标，保留上一周期持仓量用于变化率计算
func (sm *StateManager) UpdateDerivatives(symbol string, fundingRate, openInterest float64, updatedAt time.Time) {
	sm.mutex.Lock()

	prev := sm.derivatives[symbol]
	metrics := &types.DerivativesMetrics{
		Symbol:       symbol,
		FundingRate:  fundingRate,
		OpenInterest: openInterest,
		UpdatedAt:    updatedAt,
	}
	if prev != nil {
		metrics.PrevOpenInterest = prev.OpenInterest
	}
	sm.derivatives[symbol] = metrics

	sm.mutex.Unlock()

	if sm.useRedis {
		go sm.backupToRedis(derivKeyPrefix+symbol, metrics)
	}
}

// GetDerivatives 读取某交易对的衍生品指标副本，无数据返回nil
func (sm *StateManager) GetDerivatives(symbol string) *types.DerivativesMetrics {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	metrics := sm.derivatives[symbol]
	if metrics == nil {
		return nil
	}
	clone := *metrics
	return &clone
}

// SetLastSignal 缓存某交易对的最新信号
func (sm *StateManager) SetLastSignal(signal *types.TradingSignal) {
	sm.mutex.Lock()
	sm.lastSignals[signal.Symbol] = signal
	sm.mutex.Unlock()

	if sm.useRedis {
		go sm.backupToRedis(signalKeyPrefix+signal.Symbol, signal)
	}
}

// GetLastSignal 读取某交易对的最新信号，无数据返回nil
func (sm *StateManager) GetLastSignal(symbol string) *types.TradingSignal {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.lastSignals[symbol]
}

// GetAllSymbols 已有状态的交易对列表
func (sm *StateManager) GetAllSymbols() []string {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	symbols := make([]string, 0, len(sm.derivatives))
	for symbol := range sm.derivatives {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// backupToRedis 异步备份状态到Redis，失败只记日志
func (sm *StateManager) backupToRedis(key string, value interface{}) {
	ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
	defer cancel()

	data, err := json.Marshal(value)
	if err != nil {
		zap.L().Error("序列化状态数据失败", zap.Error(err), zap.String("key", key))
		return
	}

	if err := sm.redisClient.Set(ctx, key, data, redisKeyExpiry).Err(); err != nil {
		zap.L().Warn("Redis备份失败", zap.Error(err), zap.String("key", key))
	}
}

// GetRedisStats 状态管理器统计信息
func (sm *StateManager) GetRedisStats() map[string]interface{} {
	sm.mutex.RLock()
	memorySymbols := len(sm.derivatives)
	sm.mutex.RUnlock()

	stats := map[string]interface{}{
		"redis_enabled":  sm.useRedis,
		"memory_symbols": memorySymbols,
	}

	if sm.useRedis {
		ctx, cancel := context.WithTimeout(context.Background(), redisOpTimeout)
		defer cancel()

		keys, err := sm.redisClient.Keys(ctx, fmt.Sprintf("%s*", derivKeyPrefix)).Result()
		if err == nil {
			stats["redis_keys"] = len(keys)
		} else {
			stats["redis_error"] = err.Error()
		}
	}

	return stats
}

// Close 关闭Redis连接
func (sm *StateManager) Close() error {
	if sm.redisClient != nil {
		return sm.redisClient.Close()
	}
	return nil
}
