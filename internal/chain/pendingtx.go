package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/hellarekt/perpbot/internal/ports"
)

const (
	defaultReceiptPollInterval = 2 * time.Second
	defaultReceiptTimeout      = 3 * time.Minute
)

// pendingTx 一笔已广播、等待结算的交易
// 广播后交易不可撤回；Wait 只观察结算结果，不会重新发送。
type pendingTx struct {
	client       *ethclient.Client
	hash         common.Hash
	pollInterval time.Duration
	timeout      time.Duration
}

var _ ports.PendingTx = (*pendingTx)(nil)

// Hash 返回交易哈希
func (p *pendingTx) Hash() string {
	return p.hash.Hex()
}

// Wait 轮询交易回执直到结算
// 被打包但回滚的交易视为结算失败，返回错误。
func (p *pendingTx) Wait(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := p.client.TransactionReceipt(ctx, p.hash)
		switch {
		case err == nil:
			if receipt.Status == ethtypes.ReceiptStatusFailed {
				return fmt.Errorf("交易 %s 已回滚", p.hash.Hex())
			}
			return nil
		case errors.Is(err, ethereum.NotFound):
			// 还未被打包，继续轮询
		default:
			return fmt.Errorf("获取交易 %s 回执失败: %w", p.hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("等待交易 %s 结算超时: %w", p.hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
