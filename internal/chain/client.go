// Package chain 实现结算账本（永续合约 + 流动性池 + 测试 USDT）的以太坊客户端
// 引擎侧从不复算结算逻辑：这里只读取链上权威状态、提交已签名的写入请求，
// 请求是否被接受由合约决定。
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/ports"
)

var log = logrus.WithField("component", "chain_client")

// Config 账本客户端配置
type Config struct {
	RPCURL       string
	ChainID      int64
	PerpsAddress string // 永续仓位合约
	PoolAddress  string // 流动性池合约
	TokenAddress string // 测试 USDT 合约

	// 结算轮询设置（零值使用默认）
	ReceiptPollInterval time.Duration
	ReceiptTimeout      time.Duration
}

// Client 账本客户端
// 同时实现 ports.LedgerReader 与 ports.LedgerWriter。
type Client struct {
	client *ethclient.Client
	cfg    Config

	perpsAddress common.Address
	poolAddress  common.Address
	tokenAddress common.Address

	privateKey *ecdsa.PrivateKey
	from       common.Address
	chainID    *big.Int

	perpsABI abi.ABI
	poolABI  abi.ABI
	tokenABI abi.ABI

	// 同一签名账户的写入必须串行取 nonce
	writeMu sync.Mutex
}

var (
	_ ports.LedgerReader = (*Client)(nil)
	_ ports.LedgerWriter = (*Client)(nil)
)

// NewClient 创建账本客户端
func NewClient(cfg Config, privateKey *ecdsa.PrivateKey) (*Client, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("缺少签名私钥")
	}
	for name, addr := range map[string]string{
		"perps": cfg.PerpsAddress,
		"pool":  cfg.PoolAddress,
		"token": cfg.TokenAddress,
	} {
		if !common.IsHexAddress(addr) {
			return nil, fmt.Errorf("无效的 %s 合约地址: %q", name, addr)
		}
	}
	if cfg.ReceiptPollInterval <= 0 {
		cfg.ReceiptPollInterval = defaultReceiptPollInterval
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("连接RPC节点失败: %w", err)
	}

	perpsABI, err := abi.JSON(strings.NewReader(PerpsABI))
	if err != nil {
		return nil, fmt.Errorf("解析仓位合约ABI失败: %w", err)
	}
	poolABI, err := abi.JSON(strings.NewReader(PoolABI))
	if err != nil {
		return nil, fmt.Errorf("解析流动性池ABI失败: %w", err)
	}
	tokenABI, err := abi.JSON(strings.NewReader(TokenABI))
	if err != nil {
		return nil, fmt.Errorf("解析代币ABI失败: %w", err)
	}

	return &Client{
		client:       client,
		cfg:          cfg,
		perpsAddress: common.HexToAddress(cfg.PerpsAddress),
		poolAddress:  common.HexToAddress(cfg.PoolAddress),
		tokenAddress: common.HexToAddress(cfg.TokenAddress),
		privateKey:   privateKey,
		from:         crypto.PubkeyToAddress(privateKey.PublicKey),
		chainID:      big.NewInt(cfg.ChainID),
		perpsABI:     perpsABI,
		poolABI:      poolABI,
		tokenABI:     tokenABI,
	}, nil
}

// SignerAddress 返回签名账户地址
func (c *Client) SignerAddress() string {
	return c.from.Hex()
}

// call 调用合约 view 函数并解包结果
func (c *Client) call(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("打包%s参数失败: %w", method, err)
	}

	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &to,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("调用%s失败: %w", method, err)
	}

	out, err := contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("解析%s结果失败: %w", method, err)
	}
	return out, nil
}

// GetOwnedPositionIDs 获取账户名下所有仓位 ID（按合约记录顺序，含已平仓）
func (c *Client) GetOwnedPositionIDs(ctx context.Context, owner string) ([]string, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("无效的账户地址: %q", owner)
	}

	out, err := c.call(ctx, c.perpsAddress, c.perpsABI, "getUserPositions", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	rawIDs, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getUserPositions 返回类型异常: %T", out[0])
	}

	ids := make([]string, 0, len(rawIDs))
	for _, id := range rawIDs {
		ids = append(ids, id.String())
	}
	return ids, nil
}

// GetPositionByID 读取单个仓位记录
// id 无法解析到可读记录时返回 (nil, nil)。
func (c *Client) GetPositionByID(ctx context.Context, id string) (*domain.Position, error) {
	rawID, ok := new(big.Int).SetString(id, 10)
	if !ok {
		return nil, nil
	}

	out, err := c.call(ctx, c.perpsAddress, c.perpsABI, "positions", rawID)
	if err != nil {
		return nil, err
	}
	if len(out) != 9 {
		return nil, fmt.Errorf("positions 返回 %d 个字段，期望 9 个", len(out))
	}

	trader, ok := out[0].(common.Address)
	if !ok {
		return nil, fmt.Errorf("positions.trader 类型异常: %T", out[0])
	}
	// 零地址表示该 id 没有对应记录
	if trader == (common.Address{}) {
		return nil, nil
	}

	asset, _ := out[1].(string)
	collateral, _ := out[2].(*big.Int)
	entryPrice, _ := out[3].(*big.Int)
	leverage, _ := out[4].(*big.Int)
	size, _ := out[5].(*big.Int)
	isLong, _ := out[6].(bool)
	timestamp, _ := out[7].(*big.Int)
	isActive, _ := out[8].(bool)

	if leverage == nil || timestamp == nil {
		return nil, fmt.Errorf("positions %s 缺少必要字段", id)
	}

	return &domain.Position{
		ID:         id,
		Trader:     trader.Hex(),
		Asset:      asset,
		Collateral: fromUnits(collateral),
		EntryPrice: fromUnits(entryPrice),
		Leverage:   int(leverage.Int64()),
		Size:       fromUnits(size),
		IsLong:     isLong,
		Timestamp:  time.Unix(timestamp.Int64(), 0),
		IsActive:   isActive,
	}, nil
}

// GetPoolStats 读取流动性池总量
func (c *Client) GetPoolStats(ctx context.Context) (*domain.PoolStats, error) {
	out, err := c.call(ctx, c.poolAddress, c.poolABI, "getPoolStats")
	if err != nil {
		return nil, err
	}
	total, _ := out[0].(*big.Int)
	available, _ := out[1].(*big.Int)

	return &domain.PoolStats{
		TotalLiquidity:     fromUnits(total),
		AvailableLiquidity: fromUnits(available),
	}, nil
}

// GetUserPoolShare 读取账户的流动性池份额
func (c *Client) GetUserPoolShare(ctx context.Context, owner string) (*domain.PoolShare, error) {
	if !common.IsHexAddress(owner) {
		return nil, fmt.Errorf("无效的账户地址: %q", owner)
	}

	out, err := c.call(ctx, c.poolAddress, c.poolABI, "getUserPoolShare", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	shares, _ := out[0].(*big.Int)
	value, _ := out[1].(*big.Int)

	return &domain.PoolShare{
		Shares: fromUnits(shares),
		Value:  fromUnits(value),
	}, nil
}

// CollateralBalance 读取账户的测试 USDT 余额
func (c *Client) CollateralBalance(ctx context.Context, owner string) (decimal.Decimal, error) {
	if !common.IsHexAddress(owner) {
		return decimal.Zero, fmt.Errorf("无效的账户地址: %q", owner)
	}

	out, err := c.call(ctx, c.tokenAddress, c.tokenABI, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return decimal.Zero, err
	}
	balance, _ := out[0].(*big.Int)
	return fromUnits(balance), nil
}

// SubmitApproval 授权目标合约支配测试 USDT
func (c *Client) SubmitApproval(ctx context.Context, target ports.ApprovalTarget, amount decimal.Decimal) (ports.PendingTx, error) {
	var spender common.Address
	switch target {
	case ports.ApproveForPerps:
		spender = c.perpsAddress
	case ports.ApproveForPool:
		spender = c.poolAddress
	default:
		return nil, fmt.Errorf("未知的授权目标: %q", target)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("授权金额必须大于0: %s", amount)
	}

	return c.submit(ctx, c.tokenAddress, c.tokenABI, "approve", spender, toUnits(amount))
}

// SubmitAction 派发一个合约写入动作
func (c *Client) SubmitAction(ctx context.Context, kind ports.ActionKind, args any) (ports.PendingTx, error) {
	switch kind {
	case ports.ActionOpenPosition:
		a, ok := args.(ports.OpenPositionArgs)
		if !ok {
			return nil, fmt.Errorf("%s 参数类型异常: %T", kind, args)
		}
		return c.submit(ctx, c.perpsAddress, c.perpsABI, "openPosition",
			a.Asset, big.NewInt(int64(a.Leverage)), a.IsLong,
			toUnits(a.Collateral), toUnits(a.EntryPrice))

	case ports.ActionClosePosition:
		a, ok := args.(ports.ClosePositionArgs)
		if !ok {
			return nil, fmt.Errorf("%s 参数类型异常: %T", kind, args)
		}
		rawID, ok := new(big.Int).SetString(a.PositionID, 10)
		if !ok {
			return nil, fmt.Errorf("无效的仓位 ID: %q", a.PositionID)
		}
		return c.submit(ctx, c.perpsAddress, c.perpsABI, "closePosition",
			rawID, toUnits(a.ClosePrice))

	case ports.ActionFaucetClaim:
		return c.submit(ctx, c.tokenAddress, c.tokenABI, "faucet")

	case ports.ActionPoolDeposit:
		a, ok := args.(ports.PoolDepositArgs)
		if !ok {
			return nil, fmt.Errorf("%s 参数类型异常: %T", kind, args)
		}
		return c.submit(ctx, c.poolAddress, c.poolABI, "deposit", toUnits(a.Amount))

	default:
		return nil, fmt.Errorf("未知的动作类型: %q", kind)
	}
}

// submit 打包、签名并广播一笔交易
// 返回即表示已被网络接受，结算结果经 PendingTx.Wait 观察。
func (c *Client) submit(ctx context.Context, to common.Address, contractABI abi.ABI, method string, args ...interface{}) (ports.PendingTx, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("打包%s参数失败: %w", method, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("获取nonce失败: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取gas价格失败: %w", err)
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.from,
		To:    &to,
		Data:  data,
		Value: big.NewInt(0),
	})
	if err != nil {
		// 估算失败通常意味着调用会回滚，参数或前置条件有问题
		return nil, fmt.Errorf("估算%s gas失败: %w", method, err)
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)

	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return nil, fmt.Errorf("签名交易失败: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, fmt.Errorf("发送交易失败: %w", err)
	}

	log.WithFields(logrus.Fields{
		"method": method,
		"tx":     signedTx.Hash().Hex(),
		"nonce":  nonce,
	}).Info("交易已广播")

	return &pendingTx{
		client:       c.client,
		hash:         signedTx.Hash(),
		pollInterval: c.cfg.ReceiptPollInterval,
		timeout:      c.cfg.ReceiptTimeout,
	}, nil
}
