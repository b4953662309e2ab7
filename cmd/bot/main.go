package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hellarekt/perpbot/internal/chain"
	"github.com/hellarekt/perpbot/internal/controlplane/server"
	"github.com/hellarekt/perpbot/internal/feed"
	"github.com/hellarekt/perpbot/internal/services"
	"github.com/hellarekt/perpbot/pkg/config"
	"github.com/hellarekt/perpbot/pkg/logger"
	"github.com/hellarekt/perpbot/pkg/sdk/binance"
	"github.com/hellarekt/perpbot/pkg/shutdown"
	"github.com/hellarekt/perpbot/pkg/wallet"
)

func main() {
	// 解析命令行参数
	configPath := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// .env 可选：本地开发时携带私钥等敏感环境变量
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	logFile := cfg.LogFile
	if logFile == "" {
		logFile = "logs/perpbot.log"
	}
	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: logFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	// 加载签名账户
	privateKey, address, err := wallet.Load(cfg.Wallet.PrivateKey, cfg.Wallet.Mnemonic, cfg.Wallet.DerivationPath)
	if err != nil {
		logger.Errorf("加载钱包失败: %v", err)
		os.Exit(1)
	}
	logger.Infof("交易账户: %s", address)

	// 结算账本客户端
	ledger, err := chain.NewClient(chain.Config{
		RPCURL:              cfg.Chain.RPCURL,
		ChainID:             cfg.Chain.ChainID,
		PerpsAddress:        cfg.Chain.PerpsAddress,
		PoolAddress:         cfg.Chain.PoolAddress,
		TokenAddress:        cfg.Chain.TokenAddress,
		ReceiptPollInterval: cfg.ReceiptPollInterval(),
		ReceiptTimeout:      cfg.ReceiptTimeout(),
	}, privateKey)
	if err != nil {
		logger.Errorf("创建链上客户端失败: %v", err)
		os.Exit(1)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	// 行情引擎
	wsCfg := binance.DefaultConfig()
	wsCfg.ProxyURL = cfg.Feed.ProxyURL
	wsCfg.ReconnectEnabled = cfg.Feed.Reconnect
	priceFeed, err := feed.New(feed.Config{
		Assets:       cfg.Feed.Assets,
		QuoteSuffix:  cfg.Feed.QuoteSuffix,
		SeedFromRest: cfg.Feed.SeedFromRest,
		WS:           wsCfg,
	})
	if err != nil {
		logger.Errorf("创建行情引擎失败: %v", err)
		os.Exit(1)
	}
	if err := priceFeed.Start(appCtx); err != nil {
		logger.Errorf("启动行情引擎失败: %v", err)
		os.Exit(1)
	}
	go func() {
		for err := range priceFeed.Errors() {
			logger.Warnf("行情引擎: %v", err)
		}
	}()

	// 仓位快照 + 动作序列化执行
	store := services.NewPositionStore(ledger, address)
	if err := store.RefreshAll(appCtx); err != nil {
		// 启动时拉不到账本快照不算致命，周期刷新会补上
		logger.Warnf("初始快照刷新失败: %v", err)
	}
	seq := services.NewSequencer(appCtx, store)
	svc := services.NewTradingService(store, seq, priceFeed, ledger, cfg.Feed.Assets)

	// 周期刷新账本快照
	go func() {
		ticker := time.NewTicker(cfg.RefreshInterval())
		defer ticker.Stop()
		for {
			select {
			case <-appCtx.Done():
				return
			case <-ticker.C:
				if err := svc.Refresh(appCtx); err != nil {
					logger.Warnf("周期刷新失败: %v", err)
				}
			}
		}
	}()

	// API 服务
	httpServer := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: server.New(svc, priceFeed).Router(),
	}
	go func() {
		logger.Infof("API 服务监听 %s", cfg.Server.Listen)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("API 服务退出: %v", err)
		}
	}()

	// 注册关闭回调
	sd := shutdown.NewManager()
	sd.OnShutdown(func(ctx context.Context) {
		if err := httpServer.Shutdown(ctx); err != nil {
			logger.Warnf("关闭 API 服务失败: %v", err)
		}
	})
	sd.OnShutdown(func(ctx context.Context) {
		priceFeed.Stop()
	})

	// 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Infof("收到退出信号 %v，开始关闭", sig)

	appCancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	sd.Shutdown(shutdownCtx)

	logger.Info("已退出")
}
