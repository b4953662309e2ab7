package services

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/ports"
	"github.com/hellarekt/perpbot/pkg/riskmath"
)

var log = logrus.WithField("component", "trading_service")

// 步骤名
const (
	stepApprove       = "approve"
	stepOpenPosition  = "open_position"
	stepClosePosition = "close_position"
	stepFaucetClaim   = "faucet_claim"
	stepPoolDeposit   = "pool_deposit"
)

// PositionView 附带风险指标的仓位视图
// 行情缺失时 CurrentPrice 为零、衍生指标为零，仓位本身仍然返回。
type PositionView struct {
	*domain.Position

	CurrentPrice     decimal.Decimal
	PnL              decimal.Decimal
	PnLPercent       decimal.Decimal
	LiquidationPrice decimal.Decimal
}

// TradingService 交易门面
// 展示层/API 层唯一的入口：校验用户输入、把意图交给 Sequencer、
// 组合快照与行情产出视图。所有校验都是提交前的快速失败，最终
// 接受与否由合约决定。
type TradingService struct {
	store  *PositionStore
	seq    *Sequencer
	prices ports.PriceSource
	writer ports.LedgerWriter

	owner  string
	assets map[string]bool // 支持的资产符号（大写）
}

// NewTradingService 创建交易门面
func NewTradingService(
	store *PositionStore,
	seq *Sequencer,
	prices ports.PriceSource,
	writer ports.LedgerWriter,
	assets []string,
) *TradingService {
	supported := make(map[string]bool, len(assets))
	for _, a := range assets {
		supported[strings.ToUpper(strings.TrimSpace(a))] = true
	}
	return &TradingService{
		store:  store,
		seq:    seq,
		prices: prices,
		writer: writer,
		owner:  store.Owner(),
		assets: supported,
	}
}

// OpenPosition 提交开仓意图（approve -> openPosition）
// 开仓价取提交瞬间的最新行情并随意图固定；行情缺失时同步拒绝。
func (t *TradingService) OpenPosition(asset string, leverage int, isLong bool, collateral decimal.Decimal) (*domain.PendingIntent, error) {
	asset = strings.ToUpper(strings.TrimSpace(asset))
	if !t.assets[asset] {
		return nil, newValidationError("asset", "不支持的资产 %q", asset)
	}
	if leverage < domain.MinLeverage || leverage > domain.MaxLeverage {
		return nil, newValidationError("leverage", "杠杆必须在 %d 到 %d 之间，得到 %d",
			domain.MinLeverage, domain.MaxLeverage, leverage)
	}
	if !collateral.IsPositive() {
		return nil, newValidationError("collateral", "保证金必须大于0，得到 %s", collateral)
	}
	if balance := t.store.Balance(); balance.LessThan(collateral) {
		return nil, newValidationError("collateral", "余额不足: 需要 %s，当前 %s", collateral, balance)
	}

	tick, ok := t.prices.Latest(asset)
	if !ok {
		return nil, newValidationError("asset", "%s 行情尚不可用，无法确定开仓价", asset)
	}
	entryPrice := tick.Price

	args := ports.OpenPositionArgs{
		Asset:      asset,
		Leverage:   leverage,
		IsLong:     isLong,
		Collateral: collateral,
		EntryPrice: entryPrice,
	}

	log.WithFields(logrus.Fields{
		"asset":      asset,
		"leverage":   leverage,
		"long":       isLong,
		"collateral": collateral,
		"entry":      entryPrice,
	}).Info("提交开仓意图")

	return t.seq.Submit(domain.IntentOpen, t.owner, []Step{
		{
			Name: stepApprove,
			Dispatch: func(ctx context.Context) (ports.PendingTx, error) {
				return t.writer.SubmitApproval(ctx, ports.ApproveForPerps, collateral)
			},
		},
		{
			Name: stepOpenPosition,
			Dispatch: func(ctx context.Context) (ports.PendingTx, error) {
				return t.writer.SubmitAction(ctx, ports.ActionOpenPosition, args)
			},
		},
	})
}

// ClosePosition 提交平仓意图（closePosition）
// 平仓价取提交瞬间的最新行情并随意图固定。
func (t *TradingService) ClosePosition(positionID string) (*domain.PendingIntent, error) {
	if strings.TrimSpace(positionID) == "" {
		return nil, newValidationError("position_id", "仓位 ID 不能为空")
	}

	p := t.store.Position(positionID)
	if p == nil {
		return nil, newValidationError("position_id", "仓位 %s 不存在或已关闭", positionID)
	}

	tick, ok := t.prices.Latest(p.Asset)
	if !ok {
		return nil, newValidationError("position_id", "%s 行情尚不可用，无法确定平仓价", p.Asset)
	}

	args := ports.ClosePositionArgs{
		PositionID: positionID,
		ClosePrice: tick.Price,
	}

	log.WithFields(logrus.Fields{
		"position": positionID,
		"asset":    p.Asset,
		"price":    tick.Price,
	}).Info("提交平仓意图")

	return t.seq.Submit(domain.IntentClose, t.owner, []Step{
		{
			Name: stepClosePosition,
			Dispatch: func(ctx context.Context) (ports.PendingTx, error) {
				return t.writer.SubmitAction(ctx, ports.ActionClosePosition, args)
			},
		},
	})
}

// ClaimTestFunds 提交领取测试 USDT 的意图（faucet）
func (t *TradingService) ClaimTestFunds() (*domain.PendingIntent, error) {
	log.Info("提交水龙头领取意图")

	return t.seq.Submit(domain.IntentClaim, t.owner, []Step{
		{
			Name: stepFaucetClaim,
			Dispatch: func(ctx context.Context) (ports.PendingTx, error) {
				return t.writer.SubmitAction(ctx, ports.ActionFaucetClaim, nil)
			},
		},
	})
}

// DepositLiquidity 提交流动性注入意图（approve -> deposit）
func (t *TradingService) DepositLiquidity(amount decimal.Decimal) (*domain.PendingIntent, error) {
	if !amount.IsPositive() {
		return nil, newValidationError("amount", "注入金额必须大于0，得到 %s", amount)
	}
	if balance := t.store.Balance(); balance.LessThan(amount) {
		return nil, newValidationError("amount", "余额不足: 需要 %s，当前 %s", amount, balance)
	}

	args := ports.PoolDepositArgs{Amount: amount}

	log.WithField("amount", amount).Info("提交流动性注入意图")

	return t.seq.Submit(domain.IntentDeposit, t.owner, []Step{
		{
			Name: stepApprove,
			Dispatch: func(ctx context.Context) (ports.PendingTx, error) {
				return t.writer.SubmitApproval(ctx, ports.ApproveForPool, amount)
			},
		},
		{
			Name: stepPoolDeposit,
			Dispatch: func(ctx context.Context) (ports.PendingTx, error) {
				return t.writer.SubmitAction(ctx, ports.ActionPoolDeposit, args)
			},
		},
	})
}

// PositionViews 返回附带风险指标的活跃仓位视图
// 指标基于快照仓位与最新行情现算，不做缓存。
func (t *TradingService) PositionViews() []PositionView {
	positions := t.store.Positions()
	views := make([]PositionView, 0, len(positions))

	for _, p := range positions {
		v := PositionView{
			Position:         p,
			LiquidationPrice: riskmath.LiquidationPrice(p),
		}
		if tick, ok := t.prices.Latest(p.Asset); ok {
			v.CurrentPrice = tick.Price
			v.PnL = riskmath.UnrealizedPnL(p, tick.Price)
			v.PnLPercent = riskmath.PnLPercent(v.PnL, p.Collateral)
		}
		views = append(views, v)
	}
	return views
}

// Owner 返回交易账户地址
func (t *TradingService) Owner() string {
	return t.owner
}

// Balance 返回快照余额
func (t *TradingService) Balance() decimal.Decimal {
	return t.store.Balance()
}

// Pool 返回快照中的流动性池状态
func (t *TradingService) Pool() (*domain.PoolStats, *domain.PoolShare) {
	return t.store.Pool()
}

// InFlight 检查某类意图是否在途（展示层用于禁用按钮）
func (t *TradingService) InFlight(kind domain.IntentKind) bool {
	return t.seq.InFlight(t.owner, kind)
}

// Intent 查询意图状态
func (t *TradingService) Intent(id string) *domain.PendingIntent {
	return t.seq.Intent(id)
}

// Intents 返回全部意图
func (t *TradingService) Intents() []*domain.PendingIntent {
	return t.seq.Intents()
}

// Refresh 手动刷新账户快照
func (t *TradingService) Refresh(ctx context.Context) error {
	return t.store.RefreshAll(ctx)
}
