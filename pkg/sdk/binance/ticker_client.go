package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// TickerClient 管理 Binance 行情 WebSocket 连接
// 通过 SUBSCRIBE 控制消息订阅若干交易对的 @ticker 流，解码后的行情
// 事件经 Ticks() 通道向外输出。
type TickerClient struct {
	// 连接相关
	conn      *websocket.Conn
	connMu    sync.Mutex
	url       string
	config    *Config
	running   bool
	runningMu sync.RWMutex

	// 订阅管理
	subscriptions map[string]bool // 流名（如 "btcusdt@ticker"）-> 是否已订阅
	subMu         sync.RWMutex
	nextReqID     int64

	// 消息通道
	tickChan chan TickerEvent
	errChan  chan error

	// 生命周期管理
	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	doneCh chan struct{}

	// 重连状态
	reconnectAttempts int
	reconnectMu       sync.Mutex
}

// NewTickerClient 创建行情 WebSocket 客户端
func NewTickerClient(config *Config) *TickerClient {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TickerClient{
		url:           wsStreamURL,
		config:        config,
		subscriptions: make(map[string]bool),
		tickChan:      make(chan TickerEvent, config.TickBufferSize),
		errChan:       make(chan error, config.ErrorBufferSize),
		ctx:           ctx,
		cancel:        cancel,
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start 连接到 WebSocket 并开始监听
func (c *TickerClient) Start(ctx context.Context) error {
	c.runningMu.Lock()
	if c.running {
		c.runningMu.Unlock()
		return fmt.Errorf("行情客户端已在运行")
	}
	c.running = true
	c.runningMu.Unlock()

	if ctx != nil {
		c.ctx = ctx
	}

	if err := c.connect(); err != nil {
		c.runningMu.Lock()
		c.running = false
		c.runningMu.Unlock()
		return fmt.Errorf("初始连接失败: %w", err)
	}

	go c.readLoop()
	go c.pingLoop()

	log.Printf("[Binance WS] 已启动连接到 %s", c.url)
	return nil
}

// Stop 优雅地关闭 WebSocket 连接
func (c *TickerClient) Stop() {
	c.runningMu.Lock()
	if !c.running {
		c.runningMu.Unlock()
		return
	}
	c.running = false
	c.runningMu.Unlock()

	c.cancel()
	close(c.stopCh)

	c.connMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()

	select {
	case <-c.doneCh:
	case <-time.After(5 * time.Second):
		log.Printf("[Binance WS] 关闭超时")
	}

	log.Printf("[Binance WS] 已停止")
}

// Subscribe 订阅交易对的 24hr ticker 流
// symbols: 交易所符号（如 "BTCUSDT"，大小写不敏感）
func (c *TickerClient) Subscribe(symbols ...string) error {
	c.subMu.Lock()
	newStreams := make([]string, 0)
	for _, s := range symbols {
		stream := streamName(s)
		if !c.subscriptions[stream] {
			c.subscriptions[stream] = true
			newStreams = append(newStreams, stream)
		}
	}
	c.subMu.Unlock()

	if len(newStreams) == 0 {
		return nil
	}

	return c.sendControl("SUBSCRIBE", newStreams)
}

// Unsubscribe 取消订阅交易对
func (c *TickerClient) Unsubscribe(symbols ...string) error {
	c.subMu.Lock()
	toRemove := make([]string, 0)
	for _, s := range symbols {
		stream := streamName(s)
		if c.subscriptions[stream] {
			delete(c.subscriptions, stream)
			toRemove = append(toRemove, stream)
		}
	}
	c.subMu.Unlock()

	if len(toRemove) == 0 {
		return nil
	}

	return c.sendControl("UNSUBSCRIBE", toRemove)
}

// SubscriptionCount 返回活跃订阅数量
func (c *TickerClient) SubscriptionCount() int {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subscriptions)
}

// Ticks 返回行情事件通道
func (c *TickerClient) Ticks() <-chan TickerEvent {
	return c.tickChan
}

// Errors 返回错误通道
func (c *TickerClient) Errors() <-chan error {
	return c.errChan
}

// IsRunning 检查客户端是否正在运行
func (c *TickerClient) IsRunning() bool {
	c.runningMu.RLock()
	defer c.runningMu.RUnlock()
	return c.running
}

// streamName 把交易所符号转为流名："BTCUSDT" -> "btcusdt@ticker"
func streamName(symbol string) string {
	return strings.ToLower(strings.TrimSpace(symbol)) + "@ticker"
}

// connect 建立 WebSocket 连接
func (c *TickerClient) connect() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		c.conn.Close()
	}

	dialer := websocket.Dialer{
		ReadBufferSize:   c.config.ReadBufferSize,
		WriteBufferSize:  c.config.WriteBufferSize,
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	// 配置代理（如果提供）
	if c.config.ProxyURL != "" {
		proxyURL, err := url.Parse(c.config.ProxyURL)
		if err != nil {
			return fmt.Errorf("无效的代理 URL: %w", err)
		}
		dialer.Proxy = http.ProxyURL(proxyURL)
		log.Printf("[Binance WS] 使用代理: %s", c.config.ProxyURL)
	}

	headers := make(http.Header)
	headers.Set("User-Agent", "perpbot/1.0")

	// 尝试连接（带重试）
	var conn *websocket.Conn
	var err error
	for i := 0; i < defaultMaxRetries; i++ {
		conn, _, err = dialer.Dial(c.url, headers)
		if err == nil {
			break
		}
		if i < defaultMaxRetries-1 {
			log.Printf("[Binance WS] 连接尝试 %d/%d 失败: %v, 重试中...", i+1, defaultMaxRetries, err)
			time.Sleep(time.Duration(i+1) * time.Second)
		}
	}

	if err != nil {
		return fmt.Errorf("连接失败: %w", err)
	}

	c.conn = conn

	c.reconnectMu.Lock()
	c.reconnectAttempts = 0
	c.reconnectMu.Unlock()

	return nil
}

// sendControl 发送订阅/退订控制消息
func (c *TickerClient) sendControl(method string, streams []string) error {
	if len(streams) == 0 {
		return nil
	}

	c.subMu.Lock()
	c.nextReqID++
	id := c.nextReqID
	c.subMu.Unlock()

	msg := subscribeRequest{
		Method: method,
		Params: streams,
		ID:     id,
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return fmt.Errorf("未连接")
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("发送 %s 失败: %w", method, err)
	}

	log.Printf("[Binance WS] %s %d 个流", method, len(streams))
	return nil
}

// resubscribe 重新订阅所有流（重连后使用）
func (c *TickerClient) resubscribe() error {
	c.subMu.RLock()
	streams := make([]string, 0, len(c.subscriptions))
	for s := range c.subscriptions {
		streams = append(streams, s)
	}
	c.subMu.RUnlock()

	if len(streams) == 0 {
		return nil
	}

	return c.sendControl("SUBSCRIBE", streams)
}

// readLoop 读取循环，持续从 WebSocket 读取消息
func (c *TickerClient) readLoop() {
	defer close(c.doneCh)

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.stopCh:
			return
		default:
		}

		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()

		if conn == nil {
			if c.config.ReconnectEnabled {
				c.reconnect()
			}
			// 连接为 nil 时等待一段时间再重试，避免忙等待
			time.Sleep(1 * time.Second)
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// 连接出错，立即清理连接，避免重复读取失败的连接
			c.connMu.Lock()
			if c.conn != nil {
				c.conn.Close()
				c.conn = nil
			}
			c.connMu.Unlock()

			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[Binance WS] 连接正常关闭")
				return
			}
			log.Printf("[Binance WS] 读取错误: %v", err)
			if c.config.ReconnectEnabled {
				c.reconnect()
			} else {
				// 不允许自动重连时向调用方上报，由其决定处置
				select {
				case c.errChan <- fmt.Errorf("行情连接中断: %w", err):
				default:
				}
				time.Sleep(1 * time.Second)
			}
			continue
		}

		c.handleMessage(message)
	}
}

// pingLoop 心跳循环
// Binance 使用标准 WebSocket 控制帧，gorilla 默认的 PingHandler 会自动
// 回复服务端 ping；这里只定期发送客户端 ping 保活。
func (c *TickerClient) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn := c.conn
			c.connMu.Unlock()

			if conn == nil {
				continue
			}

			if err := conn.WriteControl(websocket.PingMessage, nil,
				time.Now().Add(10*time.Second)); err != nil {
				log.Printf("[Binance WS] ping 发送失败: %v", err)
				if c.config.ReconnectEnabled {
					c.reconnect()
				}
			}
		}
	}
}

// reconnect 重连逻辑（带指数退避）
func (c *TickerClient) reconnect() {
	c.reconnectMu.Lock()
	c.reconnectAttempts++
	attempts := c.reconnectAttempts
	c.reconnectMu.Unlock()

	if attempts > c.config.MaxReconnectAttempts {
		select {
		case c.errChan <- fmt.Errorf("达到最大重连次数 (%d)", c.config.MaxReconnectAttempts):
		default:
		}
		return
	}

	delay := c.config.ReconnectDelay * time.Duration(attempts)
	if delay > c.config.MaxReconnectDelay {
		delay = c.config.MaxReconnectDelay
	}

	log.Printf("[Binance WS] %v 后重连 (尝试 %d/%d)...", delay, attempts, c.config.MaxReconnectAttempts)

	select {
	case <-c.ctx.Done():
		return
	case <-c.stopCh:
		return
	case <-time.After(delay):
	}

	if err := c.connect(); err != nil {
		log.Printf("[Binance WS] 重连失败: %v", err)
		return
	}

	if err := c.resubscribe(); err != nil {
		log.Printf("[Binance WS] 重新订阅失败: %v", err)
	}
}

// handleMessage 处理接收到的消息
// 只关心 24hrTicker 事件；订阅回执（{"result":null,"id":N}）与其他事件
// 类型直接忽略。解码失败的消息丢弃并上报，不中断流。
func (c *TickerClient) handleMessage(data []byte) {
	var msg tickerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		preview := string(data)
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
		select {
		case c.errChan <- fmt.Errorf("解析消息失败，数据: %s", preview):
		default:
		}
		return
	}

	if msg.EventType != "24hrTicker" {
		return
	}

	event, err := decodeTicker(&msg)
	if err != nil {
		// 单条坏消息不影响后续行情
		select {
		case c.errChan <- err:
		default:
		}
		return
	}

	select {
	case c.tickChan <- event:
	default:
		select {
		case c.errChan <- fmt.Errorf("行情通道已满，丢弃 %s 行情", event.Symbol):
		default:
		}
	}
}

// decodeTicker 把原始 ticker 消息解码为行情事件
func decodeTicker(msg *tickerMessage) (TickerEvent, error) {
	if msg.Symbol == "" {
		return TickerEvent{}, fmt.Errorf("ticker 消息缺少 symbol")
	}

	price, err := decimal.NewFromString(msg.LastPrice)
	if err != nil {
		return TickerEvent{}, fmt.Errorf("解析 %s 价格失败 (%q): %w", msg.Symbol, msg.LastPrice, err)
	}

	// 涨跌幅解析失败不致命，置零即可
	change, err := decimal.NewFromString(msg.ChangePct)
	if err != nil {
		change = decimal.Zero
	}

	return TickerEvent{
		Symbol:        msg.Symbol,
		Price:         price,
		ChangePercent: change,
		EventTime:     time.UnixMilli(msg.EventTimeMs),
	}, nil
}
