package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hellarekt/perpbot/pkg/sdk/binance"
)

// 独立的行情监控程序：订阅若干交易对并把 ticker 打印到控制台，
// 用于排查行情流问题，不依赖钱包和链上配置。
func main() {
	symbols := flag.String("symbols", "BTCUSDT,ETHUSDT,SOLUSDT", "订阅的交易对（逗号分隔）")
	proxyURL := flag.String("proxy", os.Getenv("PROXY_URL"), "代理 URL（可选）")
	flag.Parse()

	cfg := binance.DefaultConfig()
	cfg.ProxyURL = *proxyURL
	cfg.ReconnectEnabled = true

	client := binance.NewTickerClient(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		log.Fatalf("启动 WebSocket 客户端失败: %v", err)
	}
	defer client.Stop()

	for _, s := range strings.Split(*symbols, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if err := client.Subscribe(s); err != nil {
			log.Fatalf("订阅 %s 失败: %v", s, err)
		}
	}

	fmt.Printf("已订阅 %d 个交易对，Ctrl+C 退出\n\n", client.SubscriptionCount())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case tick := <-client.Ticks():
			fmt.Printf("[%s] %-10s %14s  (%+.2f%% 24h)\n",
				tick.EventTime.Format("15:04:05"), tick.Symbol,
				tick.Price.StringFixed(2), tick.ChangePercent.InexactFloat64())
		case err := <-client.Errors():
			log.Printf("行情流错误: %v", err)
		case <-sigCh:
			fmt.Println("\n退出")
			return
		case <-time.After(2 * time.Minute):
			log.Printf("2 分钟未收到行情，连接可能已断开")
		}
	}
}
