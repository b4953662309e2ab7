package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceTick 某个标的的最新行情快照
// 每个标的只保留最新一条（last write wins），不保留历史。
// ObservedAt 暴露数据新鲜度，但引擎不做过期淘汰：
// 旧 tick 会一直被使用直到被新 tick 覆盖，是否可接受由调用方判断。
type PriceTick struct {
	Symbol     string          // 标的符号（内部格式，如 "BTC"）
	Price      decimal.Decimal // 最新成交价，> 0
	Change24h  decimal.Decimal // 24 小时涨跌幅（百分比，带符号）
	ObservedAt time.Time       // 本地接收时间
}

// IsUsable tick 是否可用于计算（价格必须为正）
func (t PriceTick) IsUsable() bool {
	return t.Price.IsPositive()
}
