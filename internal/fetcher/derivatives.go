package fetcher

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	okxcommon "github.com/nntaoli-project/goex/v2/okx/common"
	"go.uber.org/zap"

	"quant-decision-core/internal/storage"
	"quant-decision-core/pkg/types"
)

const (
	publicAPIBase  = "https://www.okx.com/api/v5/public"
	maxRetries     = 3
	defaultTimeout = 30 * time.Second
)

// DerivativesFetcher 衍生品指标获取器：周期拉取资金费率与持仓量写入状态管理器
type DerivativesFetcher struct {
	storage    *storage.StateManager
	symbols    []string
	interval   time.Duration
	okxClient  *okxcommon.OKxV5
	httpClient *http.Client // 自定义HTTP客户端，支持代理
}

// NewDerivativesFetcher 创建衍生品指标获取器
func NewDerivativesFetcher(stateManager *storage.StateManager, symbols []string, fetchInterval time.Duration, networkConfig types.NetworkConfig) *DerivativesFetcher {
	// 使用goex v2 OKX客户端
	client := okxcommon.New()

	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: false,
			},
		},
	}

	// 如果配置了代理，则使用代理
	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			httpClient.Transport.(*http.Transport).Proxy = http.ProxyURL(proxyURL)
			zap.L().Info("✅ 已配置HTTP代理", zap.String("proxy", networkConfig.Proxy))
		} else {
			zap.L().Warn("⚠️ 代理地址格式错误", zap.Error(err))
		}
	}

	if fetchInterval <= 0 {
		fetchInterval = time.Minute
	}

	zap.L().Info("✅ 初始化衍生品指标获取器",
		zap.Duration("timeout", timeout),
		zap.Duration("interval", fetchInterval),
		zap.Int("symbols", len(symbols)))

	return &DerivativesFetcher{
		storage:    stateManager,
		symbols:    symbols,
		interval:   fetchInterval,
		okxClient:  client,
		httpClient: httpClient,
	}
}

// Start 启动拉取循环，随ctx取消退出
func (f *DerivativesFetcher) Start(ctx context.Context) {
	zap.L().Info("🚀 衍生品指标获取器启动")

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	// 立即执行一次
	f.fetchAndStore()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("📴 衍生品指标获取器已停止")
			return
		case <-ticker.C:
			f.fetchAndStore()
		}
	}
}

// fetchAndStore 拉取所有交易对的衍生品指标，单个失败不中断其余
func (f *DerivativesFetcher) fetchAndStore() {
	for i, symbol := range f.symbols {
		// 限速：请求间隔200毫秒
		if i > 0 {
			time.Sleep(200 * time.Millisecond)
		}

		fundingRate, err := f.getFundingRate(symbol)
		if err != nil {
			zap.L().Error("❌ 获取资金费率失败", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		openInterest, err := f.getOpenInterest(symbol)
		if err != nil {
			zap.L().Error("❌ 获取持仓量失败", zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		f.storage.UpdateDerivatives(symbol, fundingRate, openInterest, time.Now())

		zap.L().Debug("📊 衍生品指标已更新",
			zap.String("symbol", symbol),
			zap.Float64("funding_rate", fundingRate),
			zap.Float64("open_interest", openInterest))
	}
}

// getFundingRate 获取当前资金费率
func (f *DerivativesFetcher) getFundingRate(symbol string) (float64, error) {
	var payload []struct {
		InstID      string `json:"instId"`
		FundingRate string `json:"fundingRate"`
	}
	requestURL := fmt.Sprintf("%s/funding-rate?instId=%s", publicAPIBase, symbol)
	if err := f.getJSON(requestURL, &payload); err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("资金费率响应为空: %s", symbol)
	}
	return strconv.ParseFloat(payload[0].FundingRate, 64)
}

// getOpenInterest 获取当前持仓量
func (f *DerivativesFetcher) getOpenInterest(symbol string) (float64, error) {
	var payload []struct {
		InstID string `json:"instId"`
		Oi     string `json:"oi"`
	}
	requestURL := fmt.Sprintf("%s/open-interest?instId=%s", publicAPIBase, symbol)
	if err := f.getJSON(requestURL, &payload); err != nil {
		return 0, err
	}
	if len(payload) == 0 {
		return 0, fmt.Errorf("持仓量响应为空: %s", symbol)
	}
	return strconv.ParseFloat(payload[0].Oi, 64)
}

// getJSON 带重试的GET请求，直接使用自定义HTTP客户端（绕过goex库的限制）
func (f *DerivativesFetcher) getJSON(requestURL string, out interface{}) error {
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		if attempt > 1 {
			zap.L().Info("🔄 重试获取数据", zap.Int("attempt", attempt))
			time.Sleep(time.Duration(attempt) * time.Second) // 指数退避
		}

		resp, err := f.httpClient.Get(requestURL)
		if err != nil {
			lastErr = fmt.Errorf("HTTP请求失败(第%d次尝试): %v", attempt, err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("读取响应失败(第%d次尝试): %v", attempt, err)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("HTTP状态码错误(第%d次尝试): %d", attempt, resp.StatusCode)
			continue
		}

		var apiResp struct {
			Code string          `json:"code"`
			Msg  string          `json:"msg"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(body, &apiResp); err != nil {
			lastErr = fmt.Errorf("解析API响应失败(第%d次尝试): %v", attempt, err)
			continue
		}
		if apiResp.Code != "0" {
			lastErr = fmt.Errorf("API返回错误(第%d次尝试): %s - %s", attempt, apiResp.Code, apiResp.Msg)
			continue
		}

		return json.Unmarshal(apiResp.Data, out)
	}

	return lastErr
}
