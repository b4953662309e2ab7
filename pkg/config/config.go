// Package config 应用配置
// 从 YAML 文件加载，敏感项（私钥/助记词/RPC）可用环境变量覆盖。
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// WalletConfig 钱包配置
// PrivateKey 与 Mnemonic 二选一，私钥优先。
type WalletConfig struct {
	PrivateKey     string `yaml:"private_key"`
	Mnemonic       string `yaml:"mnemonic"`
	DerivationPath string `yaml:"derivation_path"`
}

// ChainConfig 结算账本配置
type ChainConfig struct {
	RPCURL       string `yaml:"rpc_url"`
	ChainID      int64  `yaml:"chain_id"`
	PerpsAddress string `yaml:"perps_address"`
	PoolAddress  string `yaml:"pool_address"`
	TokenAddress string `yaml:"token_address"`

	ReceiptPollSeconds    int `yaml:"receipt_poll_seconds"`
	ReceiptTimeoutSeconds int `yaml:"receipt_timeout_seconds"`
}

// FeedConfig 行情配置
type FeedConfig struct {
	Assets       []string `yaml:"assets"`        // 内部资产符号，如 [BTC, ETH, SOL]
	QuoteSuffix  string   `yaml:"quote_suffix"`  // 交易所符号后缀，默认 USDT
	SeedFromRest bool     `yaml:"seed_from_rest"`
	Reconnect    bool     `yaml:"reconnect"` // 是否自动重连行情流
	ProxyURL     string   `yaml:"proxy_url"`
}

// ServerConfig API 服务配置
type ServerConfig struct {
	Listen string `yaml:"listen"` // 监听地址，默认 :8080
}

// Config 应用配置
type Config struct {
	Wallet WalletConfig `yaml:"wallet"`
	Chain  ChainConfig  `yaml:"chain"`
	Feed   FeedConfig   `yaml:"feed"`
	Server ServerConfig `yaml:"server"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`

	// 快照周期刷新间隔（秒），默认 30
	RefreshSeconds int `yaml:"refresh_seconds"`
}

// Load 从文件加载配置并应用环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败 %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides 环境变量覆盖（优先级高于配置文件）
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WALLET_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("WALLET_MNEMONIC"); v != "" {
		cfg.Wallet.Mnemonic = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		cfg.Feed.ProxyURL = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Wallet.DerivationPath == "" {
		cfg.Wallet.DerivationPath = "m/44'/60'/0'/0/0"
	}
	if len(cfg.Feed.Assets) == 0 {
		cfg.Feed.Assets = []string{"BTC", "ETH", "SOL"}
	}
	if cfg.Feed.QuoteSuffix == "" {
		cfg.Feed.QuoteSuffix = "USDT"
	}
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RefreshSeconds <= 0 {
		cfg.RefreshSeconds = 30
	}
}

// Validate 校验必填项
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Wallet.PrivateKey) == "" && strings.TrimSpace(c.Wallet.Mnemonic) == "" {
		return fmt.Errorf("钱包配置缺失: 需要 private_key 或 mnemonic")
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc_url 不能为空")
	}
	if c.Chain.ChainID == 0 {
		return fmt.Errorf("chain.chain_id 不能为空")
	}
	for name, addr := range map[string]string{
		"chain.perps_address": c.Chain.PerpsAddress,
		"chain.pool_address":  c.Chain.PoolAddress,
		"chain.token_address": c.Chain.TokenAddress,
	} {
		if addr == "" {
			return fmt.Errorf("%s 不能为空", name)
		}
	}
	return nil
}

// RefreshInterval 快照刷新间隔
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshSeconds) * time.Second
}

// ReceiptPollInterval 结算轮询间隔（0 表示使用客户端默认值）
func (c *Config) ReceiptPollInterval() time.Duration {
	return time.Duration(c.Chain.ReceiptPollSeconds) * time.Second
}

// ReceiptTimeout 结算等待超时（0 表示使用客户端默认值）
func (c *Config) ReceiptTimeout() time.Duration {
	return time.Duration(c.Chain.ReceiptTimeoutSeconds) * time.Second
}
