package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// 杠杆倍数的合法区间（合约侧同样强制，此处提前校验避免无谓的链上交互）
const (
	MinLeverage = 2
	MaxLeverage = 50
)

// Position 杠杆仓位领域模型
// 链上账本是仓位的唯一权威来源，本结构只是账本记录的本地视图。
// 金额字段（Collateral/EntryPrice/Size）在链上以 6 位小数定点数存储，
// 读取时已转换为 decimal。
type Position struct {
	ID         string          // 仓位 ID（账本分配，用户内唯一）
	Trader     string          // 持仓地址
	Asset      string          // 标的符号（内部统一不带计价后缀，如 "BTC"）
	Collateral decimal.Decimal // 保证金（USDT），> 0
	EntryPrice decimal.Decimal // 开仓价格，> 0
	Leverage   int             // 杠杆倍数，[MinLeverage, MaxLeverage]
	Size       decimal.Decimal // 名义仓位 = Collateral * Leverage（开仓时）
	IsLong     bool            // 方向：true=做多
	Timestamp  time.Time       // 开仓时间
	IsActive   bool            // 是否仍然开放；false 的仓位不展示、不可操作
}

// Validate 校验仓位记录的不变量
// 用于过滤账本返回的异常记录（单条异常不应影响整批刷新）。
func (p *Position) Validate() error {
	if p == nil {
		return fmt.Errorf("position is nil")
	}
	if p.ID == "" {
		return fmt.Errorf("position ID 为空")
	}
	if p.Asset == "" {
		return fmt.Errorf("position %s: asset 为空", p.ID)
	}
	if !p.Collateral.IsPositive() {
		return fmt.Errorf("position %s: collateral 必须大于 0", p.ID)
	}
	if !p.EntryPrice.IsPositive() {
		return fmt.Errorf("position %s: entryPrice 必须大于 0", p.ID)
	}
	if p.Leverage < MinLeverage || p.Leverage > MaxLeverage {
		return fmt.Errorf("position %s: leverage %d 超出 [%d, %d]", p.ID, p.Leverage, MinLeverage, MaxLeverage)
	}
	// size == collateral * leverage（开仓时不变量）
	want := p.Collateral.Mul(decimal.NewFromInt(int64(p.Leverage)))
	if !p.Size.Equal(want) {
		return fmt.Errorf("position %s: size %s != collateral*leverage %s", p.ID, p.Size, want)
	}
	return nil
}

// Notional 名义仓位价值（= Collateral * Leverage）
func (p *Position) Notional() decimal.Decimal {
	return p.Collateral.Mul(decimal.NewFromInt(int64(p.Leverage)))
}

// Direction 方向系数：多头 +1，空头 -1
func (p *Position) Direction() decimal.Decimal {
	if p.IsLong {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(-1)
}

// PoolStats 流动性池概览（账本只读数据）
type PoolStats struct {
	TotalLiquidity     decimal.Decimal // 池内总流动性（USDT）
	AvailableLiquidity decimal.Decimal // 可用流动性（USDT）
}

// PoolShare 用户在流动性池中的份额
type PoolShare struct {
	Shares decimal.Decimal // 份额数量
	Value  decimal.Decimal // 折合 USDT 价值
}
