package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// 链上所有金额与价格均为 6 位小数定点数（1 USDT = 1000000）。
// 转换集中在这里，客户端其他代码只处理 decimal。

const tokenDecimals = 6

// toUnits 把 decimal 金额转为链上定点整数（多余小数位截断）
func toUnits(d decimal.Decimal) *big.Int {
	return d.Shift(tokenDecimals).BigInt()
}

// fromUnits 把链上定点整数转回 decimal 金额
func fromUnits(x *big.Int) decimal.Decimal {
	if x == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(x, -tokenDecimals)
}
