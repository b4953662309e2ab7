// Package binance 提供 Binance 行情数据客户端
// WebSocket 部分订阅 24hr ticker 流（@ticker），REST 部分用于启动时的
// 行情快照（避免第一条流消息到达前没有任何价格可用）。
package binance

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// WebSocket 端点
	wsStreamURL = "wss://stream.binance.com:9443/ws"

	// REST 端点
	restBaseURL = "https://api.binance.com"

	// 重连设置
	defaultReconnectDelay    = 2 * time.Second
	defaultMaxReconnectDelay = 30 * time.Second
	defaultPingInterval      = 3 * time.Minute // Binance 允许空闲连接，控制帧 ping 保活即可

	// 消息通道缓冲区大小
	defaultTickBufferSize  = 1000
	defaultErrorBufferSize = 100

	// 连接重试设置
	defaultMaxRetries = 3
)

// TickerEvent 一条解码后的 24hr ticker 行情事件
type TickerEvent struct {
	Symbol        string          // 交易所符号（如 "BTCUSDT"）
	Price         decimal.Decimal // 最新成交价（字段 c）
	ChangePercent decimal.Decimal // 24 小时涨跌幅（字段 P，带符号百分比）
	EventTime     time.Time       // 交易所事件时间（字段 E）
}

// tickerMessage Binance @ticker 流的原始消息（只保留需要的字段）
type tickerMessage struct {
	EventType   string `json:"e"` // "24hrTicker"
	EventTimeMs int64  `json:"E"`
	Symbol      string `json:"s"`
	LastPrice   string `json:"c"`
	ChangePct   string `json:"P"`
}

// subscribeRequest Binance 流的订阅/退订控制消息
type subscribeRequest struct {
	Method string   `json:"method"` // "SUBSCRIBE" / "UNSUBSCRIBE"
	Params []string `json:"params"` // 如 ["btcusdt@ticker"]
	ID     int64    `json:"id"`
}

// Config WebSocket 客户端配置
type Config struct {
	// 代理设置
	ProxyURL string // 代理 URL（可选）

	// 重连设置
	// 引擎本身不决定重连策略：是否自动重连由调用方通过此配置决定。
	ReconnectEnabled     bool
	ReconnectDelay       time.Duration
	MaxReconnectDelay    time.Duration
	MaxReconnectAttempts int

	// 心跳设置
	PingInterval time.Duration

	// 缓冲区设置
	TickBufferSize  int
	ErrorBufferSize int

	// 连接设置
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
}

// DefaultConfig 返回默认配置（默认不自动重连，交由调用方决定）
func DefaultConfig() *Config {
	return &Config{
		ReconnectEnabled:     false,
		ReconnectDelay:       defaultReconnectDelay,
		MaxReconnectDelay:    defaultMaxReconnectDelay,
		MaxReconnectAttempts: 10,
		PingInterval:         defaultPingInterval,
		TickBufferSize:       defaultTickBufferSize,
		ErrorBufferSize:      defaultErrorBufferSize,
		ReadBufferSize:       4096,
		WriteBufferSize:      4096,
		HandshakeTimeout:     15 * time.Second,
	}
}
