package riskmath

import (
	"github.com/shopspring/decimal"

	"github.com/hellarekt/perpbot/internal/domain"
)

// 本包只做纯计算：无 I/O、无日志、无状态。
// 所有公式必须与合约展示层使用的公式完全一致（前端展示的爆仓价/盈亏
// 以这里为准），不要为了"数学上更优雅"而改写。

// liquidationThreshold 爆仓阈值：保证金被侵蚀到 90% 即视为可被强平。
var liquidationThreshold = decimal.NewFromFloat(0.9)

var hundred = decimal.NewFromInt(100)

// UnrealizedPnL 计算未实现盈亏（保证金货币单位，非百分比）。
//
//	pnl = (currentPrice - entryPrice) * direction * size / entryPrice
//
// currentPrice 缺失或 <= 0 时返回 0（不是错误：行情尚未到达时仓位列表
// 仍需正常渲染）。collateral == 0 的非法仓位同样不会导致 panic。
func UnrealizedPnL(p *domain.Position, currentPrice decimal.Decimal) decimal.Decimal {
	if p == nil || !currentPrice.IsPositive() || !p.EntryPrice.IsPositive() {
		return decimal.Zero
	}
	diff := currentPrice.Sub(p.EntryPrice)
	return diff.Mul(p.Direction()).Mul(p.Size).Div(p.EntryPrice)
}

// LiquidationPrice 计算模型爆仓价。
//
//	priceMove = collateral * 0.9 / size     （相对开仓价的价格波动比例）
//	多头: entryPrice * (1 - priceMove)
//	空头: entryPrice * (1 + priceMove)
//
// 注意 priceMove 公式依赖 size = collateral * leverage 这一不变量
// （等价于 0.9/leverage），保持原式不要化简：展示层爆仓价必须与
// 合约展示口径逐位一致。这是简化风险模型（无资金费率、无部分强平）。
func LiquidationPrice(p *domain.Position) decimal.Decimal {
	if p == nil || !p.Size.IsPositive() || !p.EntryPrice.IsPositive() {
		return decimal.Zero
	}
	priceMove := p.Collateral.Mul(liquidationThreshold).Div(p.Size)
	if p.IsLong {
		return p.EntryPrice.Mul(decimal.NewFromInt(1).Sub(priceMove))
	}
	return p.EntryPrice.Mul(decimal.NewFromInt(1).Add(priceMove))
}

// PnLPercent 盈亏相对保证金的百分比。collateral == 0 时返回 0（不除零）。
func PnLPercent(pnl, collateral decimal.Decimal) decimal.Decimal {
	if collateral.IsZero() {
		return decimal.Zero
	}
	return pnl.Div(collateral).Mul(hundred)
}
