package services

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/ports"
)

var storeLog = logrus.WithField("component", "position_store")

// PositionStore 账户状态快照
// 持有一个账户在账本上的仓位、余额与流动性池份额的本地只读副本。
// 快照整体替换：刷新要么完整成功并原子换入，要么整体失败并保留旧
// 快照（last-complete-wins），读取方永远看到一个自洽的版本。
type PositionStore struct {
	reader ports.LedgerReader
	owner  string

	mu            sync.RWMutex
	positions     []*domain.Position // 仅活跃仓位，按账本记录顺序
	balance       decimal.Decimal
	poolStats     *domain.PoolStats
	poolShare     *domain.PoolShare
	lastRefreshAt time.Time
}

// NewPositionStore 创建账户状态快照
func NewPositionStore(reader ports.LedgerReader, owner string) *PositionStore {
	return &PositionStore{
		reader: reader,
		owner:  owner,
	}
}

// Owner 返回快照对应的账户地址
func (s *PositionStore) Owner() string {
	return s.owner
}

// Refresh 重新拉取仓位与余额并原子换入
//
// 任何一步账本读取失败都会使本次刷新整体失败并返回 TransientReadError，
// 旧快照原样保留。单条仓位记录损坏（校验不过）只丢弃该条并告警，
// 不影响其余仓位。
func (s *PositionStore) Refresh(ctx context.Context) error {
	ids, err := s.reader.GetOwnedPositionIDs(ctx, s.owner)
	if err != nil {
		return &TransientReadError{Op: "getUserPositions", Err: err}
	}

	fresh := make([]*domain.Position, 0, len(ids))
	for _, id := range ids {
		p, err := s.reader.GetPositionByID(ctx, id)
		if err != nil {
			return &TransientReadError{Op: "positions:" + id, Err: err}
		}
		if p == nil {
			// id 列出但记录不可读：丢弃该条
			storeLog.WithField("id", id).Warn("仓位 id 无法解析为记录，跳过")
			continue
		}
		if !p.IsActive {
			continue
		}
		if err := p.Validate(); err != nil {
			storeLog.WithError(err).WithField("id", id).Warn("仓位记录校验失败，跳过")
			continue
		}
		fresh = append(fresh, p)
	}

	balance, err := s.reader.CollateralBalance(ctx, s.owner)
	if err != nil {
		return &TransientReadError{Op: "balanceOf", Err: err}
	}

	s.mu.Lock()
	s.positions = fresh
	s.balance = balance
	s.lastRefreshAt = time.Now()
	s.mu.Unlock()

	storeLog.WithFields(logrus.Fields{
		"positions": len(fresh),
		"balance":   balance,
	}).Debug("仓位快照已刷新")
	return nil
}

// RefreshPool 重新拉取流动性池状态并原子换入
func (s *PositionStore) RefreshPool(ctx context.Context) error {
	stats, err := s.reader.GetPoolStats(ctx)
	if err != nil {
		return &TransientReadError{Op: "getPoolStats", Err: err}
	}
	share, err := s.reader.GetUserPoolShare(ctx, s.owner)
	if err != nil {
		return &TransientReadError{Op: "getUserPoolShare", Err: err}
	}

	s.mu.Lock()
	s.poolStats = stats
	s.poolShare = share
	s.mu.Unlock()
	return nil
}

// RefreshAll 刷新仓位、余额与流动性池
func (s *PositionStore) RefreshAll(ctx context.Context) error {
	if err := s.Refresh(ctx); err != nil {
		return err
	}
	return s.RefreshPool(ctx)
}

// Positions 返回当前快照中的活跃仓位（副本）
func (s *PositionStore) Positions() []*domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Position, len(s.positions))
	copy(out, s.positions)
	return out
}

// Position 按 id 查找当前快照中的活跃仓位，不存在返回 nil
func (s *PositionStore) Position(id string) *domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.positions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Balance 返回快照中的测试 USDT 余额
func (s *PositionStore) Balance() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.balance
}

// Pool 返回快照中的流动性池状态（尚未刷新过时为 nil）
func (s *PositionStore) Pool() (*domain.PoolStats, *domain.PoolShare) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.poolStats, s.poolShare
}

// LastRefreshAt 返回最近一次仓位刷新成功的时间
func (s *PositionStore) LastRefreshAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRefreshAt
}
