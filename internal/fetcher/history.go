package fetcher

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"quant-decision-core/internal/indicators"
	"quant-decision-core/pkg/types"
)

// HistoryKlineFetcher 历史K线获取器，为回测准备数据
type HistoryKlineFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// okxKlineResponse OKX K线API响应
type okxKlineResponse struct {
	Code string     `json:"code"`
	Msg  string     `json:"msg"`
	Data [][]string `json:"data"`
}

// NewHistoryKlineFetcher 创建历史K线获取器
func NewHistoryKlineFetcher(networkConfig types.NetworkConfig) *HistoryKlineFetcher {
	timeout := networkConfig.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	client := &http.Client{
		Timeout: timeout,
	}

	// 设置代理
	if networkConfig.Proxy != "" {
		proxyURL, err := url.Parse(networkConfig.Proxy)
		if err == nil {
			client.Transport = &http.Transport{
				Proxy: http.ProxyURL(proxyURL),
			}
		}
	}

	return &HistoryKlineFetcher{
		baseURL:    "https://www.okx.com/api/v5/market",
		httpClient: client,
	}
}

// FetchHistoryKlines 获取历史K线数据，返回时间升序并补齐CVD
func (h *HistoryKlineFetcher) FetchHistoryKlines(symbol, interval string, limit int) ([]*types.KLine, error) {
	requestURL := fmt.Sprintf("%s/candles?instId=%s&bar=%s&limit=%d",
		h.baseURL, symbol, interval, limit)

	zap.L().Info("📊 获取历史K线数据",
		zap.String("symbol", symbol),
		zap.String("interval", interval),
		zap.Int("limit", limit))

	req, err := http.NewRequest("GET", requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %v", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP请求失败: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP响应错误: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %v", err)
	}

	var okxResponse okxKlineResponse
	if err := json.Unmarshal(body, &okxResponse); err != nil {
		return nil, fmt.Errorf("解析JSON失败: %v", err)
	}
	if okxResponse.Code != "0" {
		return nil, fmt.Errorf("OKX API返回错误: code=%s, msg=%s", okxResponse.Code, okxResponse.Msg)
	}

	klines := make([]*types.KLine, 0, len(okxResponse.Data))
	for _, data := range okxResponse.Data {
		kline, err := h.parseKlineData(symbol, data, interval)
		if err != nil {
			zap.L().Warn("解析历史K线数据失败", zap.Error(err))
			continue
		}
		klines = append(klines, kline)
	}

	// OKX返回从新到旧，反转为从旧到新后补齐CVD
	reverseKlines(klines)
	indicators.FillCVD(klines)

	zap.L().Info("✅ 历史K线数据获取完成",
		zap.String("symbol", symbol),
		zap.Int("requested", limit),
		zap.Int("received", len(klines)))

	return klines, nil
}

// FetchMultipleSymbolsHistory 批量获取多个交易对的历史数据，单个失败不中断
func (h *HistoryKlineFetcher) FetchMultipleSymbolsHistory(symbols []string, interval string, limit int) (map[string][]*types.KLine, error) {
	result := make(map[string][]*types.KLine)

	for i, symbol := range symbols {
		// 限速：每个请求间隔200毫秒
		if i > 0 {
			time.Sleep(200 * time.Millisecond)
		}

		klines, err := h.FetchHistoryKlines(symbol, interval, limit)
		if err != nil {
			zap.L().Error("获取历史K线失败",
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}
		result[symbol] = klines
	}

	return result, nil
}

// parseKlineData 解析OKX K线数组格式: [ts, open, high, low, close, vol, ...]
func (h *HistoryKlineFetcher) parseKlineData(symbol string, data []string, interval string) (*types.KLine, error) {
	if len(data) < 6 {
		return nil, fmt.Errorf("K线数据格式不正确")
	}

	timestamp, err := strconv.ParseInt(data[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("解析时间戳失败: %v", err)
	}
	open, err := strconv.ParseFloat(data[1], 64)
	if err != nil {
		return nil, fmt.Errorf("解析开盘价失败: %v", err)
	}
	high, err := strconv.ParseFloat(data[2], 64)
	if err != nil {
		return nil, fmt.Errorf("解析最高价失败: %v", err)
	}
	low, err := strconv.ParseFloat(data[3], 64)
	if err != nil {
		return nil, fmt.Errorf("解析最低价失败: %v", err)
	}
	closePrice, err := strconv.ParseFloat(data[4], 64)
	if err != nil {
		return nil, fmt.Errorf("解析收盘价失败: %v", err)
	}
	volume, err := strconv.ParseFloat(data[5], 64)
	if err != nil {
		return nil, fmt.Errorf("解析成交量失败: %v", err)
	}

	openTime := time.Unix(timestamp/1000, (timestamp%1000)*1000000)
	return &types.KLine{
		Symbol:    symbol,
		OpenTime:  openTime,
		CloseTime: openTime.Add(intervalDuration(interval)),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePrice,
		Volume:    volume,
		Interval:  interval,
	}, nil
}

// intervalDuration 解析时间间隔字符串为Duration
func intervalDuration(interval string) time.Duration {
	switch interval {
	case "1m":
		return time.Minute
	case "3m":
		return 3 * time.Minute
	case "5m":
		return 5 * time.Minute
	case "15m":
		return 15 * time.Minute
	case "30m":
		return 30 * time.Minute
	case "1H", "1h":
		return time.Hour
	case "4H", "4h":
		return 4 * time.Hour
	case "1D", "1d":
		return 24 * time.Hour
	default:
		return 15 * time.Minute
	}
}

// reverseKlines 反转K线数组（从新到旧 → 从旧到新）
func reverseKlines(klines []*types.KLine) {
	for i, j := 0, len(klines)-1; i < j; i, j = i+1, j-1 {
		klines[i], klines[j] = klines[j], klines[i]
	}
}
