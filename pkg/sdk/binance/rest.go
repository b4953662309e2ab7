package binance

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// RestClient Binance 公共行情 REST 客户端
// 只用于启动时拉取 24hr ticker 快照作为初始价格，后续价格全部来自
// WebSocket 流。
type RestClient struct {
	client *resty.Client
}

// NewRestClient 创建 REST 客户端
// resty 会自动从环境变量读取代理配置（HTTP_PROXY, HTTPS_PROXY）
func NewRestClient() *RestClient {
	client := resty.New().
		SetBaseURL(restBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429 限流时尊重 Retry-After 头
			if resp.StatusCode() == 429 {
				if retryAfter := resp.Header().Get("Retry-After"); retryAfter != "" {
					if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
						return seconds, nil
					}
				}
				return 10 * time.Second, nil
			}
			return 0, nil
		})

	return &RestClient{client: client}
}

// ticker24hResponse GET /api/v3/ticker/24hr 的响应（只保留需要的字段）
type ticker24hResponse struct {
	Symbol             string `json:"symbol"`
	LastPrice          string `json:"lastPrice"`
	PriceChangePercent string `json:"priceChangePercent"`
	CloseTime          int64  `json:"closeTime"`
}

// Ticker24h 拉取单个交易对的 24hr ticker 快照
func (c *RestClient) Ticker24h(ctx context.Context, symbol string) (TickerEvent, error) {
	var out ticker24hResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/api/v3/ticker/24hr")
	if err != nil {
		return TickerEvent{}, errors.Wrapf(err, "获取 %s 行情快照失败", symbol)
	}
	if !resp.IsSuccess() {
		return TickerEvent{}, errors.Errorf("获取 %s 行情快照失败: http %d: %s",
			symbol, resp.StatusCode(), resp.String())
	}

	price, err := decimal.NewFromString(out.LastPrice)
	if err != nil {
		return TickerEvent{}, errors.Wrapf(err, "解析 %s 快照价格失败 (%q)", symbol, out.LastPrice)
	}
	change, err := decimal.NewFromString(out.PriceChangePercent)
	if err != nil {
		change = decimal.Zero
	}

	return TickerEvent{
		Symbol:        out.Symbol,
		Price:         price,
		ChangePercent: change,
		EventTime:     time.UnixMilli(out.CloseTime),
	}, nil
}
