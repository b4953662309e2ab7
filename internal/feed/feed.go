// Package feed 维护各资产的最新行情快照
// 从 Binance WebSocket 流消费 ticker 事件，按资产保留最近一条可用价格，
// 供校验与展示层通过 Latest 读取。价格语义为 last-write-wins：没有过期
// 概念，流中断期间继续提供最后一条已知价格。
package feed

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/ports"
	"github.com/hellarekt/perpbot/pkg/sdk/binance"
	"github.com/hellarekt/perpbot/pkg/syncgroup"
)

var log = logrus.WithField("component", "price_feed")

// Config 行情引擎配置
type Config struct {
	// Assets 内部资产符号列表（如 ["BTC","ETH","SOL"]）
	Assets []string

	// QuoteSuffix 交易所符号的计价后缀（内部 "BTC" -> 交易所 "BTCUSDT"）
	QuoteSuffix string

	// SeedFromRest 启动时是否先用 REST 快照填充初始价格
	SeedFromRest bool

	// WS 底层 WebSocket 客户端配置（nil 使用默认值）
	WS *binance.Config
}

// Feed 行情引擎
// 持有最新价格表的唯一写入方；读取方只通过 Latest。
type Feed struct {
	cfg    Config
	client *binance.TickerClient
	rest   *binance.RestClient

	// 交易所符号 -> 内部资产符号
	assetBySymbol map[string]string

	mu     sync.RWMutex
	latest map[string]domain.PriceTick // 内部资产符号 -> 最新行情

	errChan chan error

	sg      *syncgroup.SyncGroup
	stopCh  chan struct{}
	started bool
}

// New 创建行情引擎
func New(cfg Config) (*Feed, error) {
	if len(cfg.Assets) == 0 {
		return nil, fmt.Errorf("行情引擎需要至少一个资产")
	}
	if cfg.QuoteSuffix == "" {
		cfg.QuoteSuffix = "USDT"
	}

	assetBySymbol := make(map[string]string, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		a := strings.ToUpper(strings.TrimSpace(asset))
		if a == "" {
			return nil, fmt.Errorf("资产符号不能为空")
		}
		assetBySymbol[a+cfg.QuoteSuffix] = a
	}

	return &Feed{
		cfg:           cfg,
		client:        binance.NewTickerClient(cfg.WS),
		rest:          binance.NewRestClient(),
		assetBySymbol: assetBySymbol,
		latest:        make(map[string]domain.PriceTick, len(cfg.Assets)),
		errChan:       make(chan error, 16),
		sg:            syncgroup.NewSyncGroup(),
		stopCh:        make(chan struct{}),
	}, nil
}

// Start 启动行情引擎：可选 REST 快照预热，然后订阅 WebSocket 流
func (f *Feed) Start(ctx context.Context) error {
	if f.started {
		return fmt.Errorf("行情引擎已在运行")
	}

	if f.cfg.SeedFromRest {
		f.seed(ctx)
	}

	if err := f.client.Start(ctx); err != nil {
		return fmt.Errorf("启动行情连接失败: %w", err)
	}

	symbols := make([]string, 0, len(f.assetBySymbol))
	for s := range f.assetBySymbol {
		symbols = append(symbols, s)
	}
	if err := f.client.Subscribe(symbols...); err != nil {
		f.client.Stop()
		return fmt.Errorf("订阅行情流失败: %w", err)
	}

	f.sg.Add(func() { f.consumeLoop(ctx) })
	f.sg.Run()
	f.started = true

	log.WithField("assets", f.cfg.Assets).Info("行情引擎已启动")
	return nil
}

// Stop 停止行情引擎
func (f *Feed) Stop() {
	if !f.started {
		return
	}
	f.started = false
	close(f.stopCh)
	f.client.Stop()
	f.sg.Wait()
	log.Info("行情引擎已停止")
}

// Errors 返回错误通道（连接中断、达到重连上限等）
// 是否据此重启引擎由调用方决定。
func (f *Feed) Errors() <-chan error {
	return f.errChan
}

// Latest 返回资产的最新行情，ok=false 表示尚未观察到任何可用价格
// symbol 为内部资产符号（如 "BTC"）。
func (f *Feed) Latest(symbol string) (domain.PriceTick, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	tick, ok := f.latest[strings.ToUpper(symbol)]
	if !ok || !tick.IsUsable() {
		return domain.PriceTick{}, false
	}
	return tick, true
}

// Snapshot 返回所有资产当前行情的副本（展示层使用）
func (f *Feed) Snapshot() map[string]domain.PriceTick {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]domain.PriceTick, len(f.latest))
	for k, v := range f.latest {
		out[k] = v
	}
	return out
}

// seed 用 REST 24hr 快照填充初始价格，失败只记日志不阻止启动
func (f *Feed) seed(ctx context.Context) {
	for symbol, asset := range f.assetBySymbol {
		event, err := f.rest.Ticker24h(ctx, symbol)
		if err != nil {
			log.WithError(err).WithField("symbol", symbol).Warn("行情快照预热失败")
			continue
		}
		f.apply(asset, event)
	}
}

// consumeLoop 消费 WebSocket 行情与错误
func (f *Feed) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.stopCh:
			return
		case event := <-f.client.Ticks():
			asset, ok := f.assetBySymbol[event.Symbol]
			if !ok {
				// 未订阅的符号（退订竞态），忽略
				continue
			}
			f.apply(asset, event)
		case err := <-f.client.Errors():
			log.WithError(err).Warn("行情流错误")
			select {
			case f.errChan <- err:
			default:
			}
		}
	}
}

// apply 应用一条行情事件。价格必须为正，否则丢弃
func (f *Feed) apply(asset string, event binance.TickerEvent) {
	if !event.Price.IsPositive() {
		log.WithFields(logrus.Fields{
			"asset": asset,
			"price": event.Price,
		}).Warn("丢弃非正价格行情")
		return
	}

	observedAt := event.EventTime
	if observedAt.IsZero() {
		observedAt = time.Now()
	}

	f.mu.Lock()
	f.latest[asset] = domain.PriceTick{
		Symbol:     asset,
		Price:      event.Price,
		Change24h:  event.ChangePercent,
		ObservedAt: observedAt,
	}
	f.mu.Unlock()
}

var _ ports.PriceSource = (*Feed)(nil)

// applyTick 仅测试使用：直接注入一条行情
func (f *Feed) applyTick(asset string, price decimal.Decimal, change decimal.Decimal, at time.Time) {
	f.apply(asset, binance.TickerEvent{
		Symbol:        asset + f.cfg.QuoteSuffix,
		Price:         price,
		ChangePercent: change,
		EventTime:     at,
	})
}
