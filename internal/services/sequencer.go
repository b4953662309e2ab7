package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hellarekt/perpbot/internal/domain"
	"github.com/hellarekt/perpbot/internal/execution"
	"github.com/hellarekt/perpbot/internal/ports"
)

var seqLog = logrus.WithField("component", "tx_sequencer")

// Step 意图步骤链中的一步
// Dispatch 负责派发（签名并广播）一笔账本写入，返回的 PendingTx 用于
// 等待结算。Dispatch 在前序步骤全部结算成功后才会被调用。
type Step struct {
	Name     string
	Dispatch func(ctx context.Context) (ports.PendingTx, error)
}

// Sequencer 意图执行器
// 把一次用户意图展开为严格按序的账本写入步骤链：
//   - 第 n+1 步只在第 n 步结算成功后派发
//   - 派发失败或结算为失败（回滚）都使意图在该步终止，后续步骤不再派发
//   - 已结算的步骤不可回滚；失败意图不做自动重试，由用户重新提交
//
// 同一 (owner, kind) 同时至多一个未到终态的意图，重复提交被同步拒绝。
type Sequencer struct {
	store *PositionStore
	gate  *execution.InFlightGate

	// 步骤执行使用的基准 context（与单次提交的请求生命周期无关）
	baseCtx context.Context

	mu      sync.RWMutex
	intents map[string]*domain.PendingIntent
}

// NewSequencer 创建意图执行器
// baseCtx 控制所有在途步骤的生命周期，应传入应用级 context。
func NewSequencer(baseCtx context.Context, store *PositionStore) *Sequencer {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Sequencer{
		store:   store,
		gate:    execution.NewInFlightGate(16),
		baseCtx: baseCtx,
	}
}

// Submit 提交一次意图并异步执行其步骤链
// 返回的意图处于 Created 状态；同 (owner, kind) 已有在途意图时同步
// 返回 DuplicateIntentError，不产生任何账本交互。
func (s *Sequencer) Submit(kind domain.IntentKind, owner string, steps []Step) (*domain.PendingIntent, error) {
	if !kind.Valid() {
		return nil, newValidationError("kind", "未知的意图类型 %q", kind)
	}
	if len(steps) == 0 {
		return nil, newValidationError("steps", "意图必须至少包含一个步骤")
	}

	key := gateKey(owner, kind)
	if err := s.gate.TryAcquire(key); err != nil {
		return nil, &DuplicateIntentError{Owner: owner, Kind: kind}
	}

	now := time.Now()
	intent := &domain.PendingIntent{
		ID:        uuid.NewString(),
		Kind:      kind,
		Owner:     owner,
		Steps:     make([]domain.IntentStep, len(steps)),
		State:     domain.IntentStateCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, st := range steps {
		intent.Steps[i] = domain.IntentStep{Name: st.Name, State: domain.StepStateWaiting}
	}

	s.mu.Lock()
	if s.intents == nil {
		s.intents = make(map[string]*domain.PendingIntent)
	}
	s.intents[intent.ID] = intent
	snapshot := *intent
	s.mu.Unlock()

	seqLog.WithFields(logrus.Fields{
		"intent": intent.ID,
		"kind":   kind,
		"steps":  len(steps),
	}).Info("意图已创建")

	go s.run(intent.ID, key, steps)

	return &snapshot, nil
}

// InFlight 检查某账户某类意图是否在途
func (s *Sequencer) InFlight(owner string, kind domain.IntentKind) bool {
	return s.gate.Held(gateKey(owner, kind))
}

// Intent 按 id 查询意图状态（副本），不存在返回 nil
func (s *Sequencer) Intent(id string) *domain.PendingIntent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	in, ok := s.intents[id]
	if !ok {
		return nil
	}
	cp := s.copyIntent(in)
	return cp
}

// Intents 返回所有意图（副本），按创建时间排序
func (s *Sequencer) Intents() []*domain.PendingIntent {
	s.mu.RLock()
	out := make([]*domain.PendingIntent, 0, len(s.intents))
	for _, in := range s.intents {
		out = append(out, s.copyIntent(in))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// copyIntent 调用方必须持有 s.mu
func (s *Sequencer) copyIntent(in *domain.PendingIntent) *domain.PendingIntent {
	cp := *in
	cp.Steps = make([]domain.IntentStep, len(in.Steps))
	copy(cp.Steps, in.Steps)
	return &cp
}

// run 顺序执行步骤链，到达终态后释放互斥令牌
func (s *Sequencer) run(id, key string, steps []Step) {
	defer s.gate.Release(key)

	log := seqLog.WithField("intent", id)

	s.update(id, func(in *domain.PendingIntent) {
		in.State = domain.IntentStateInFlight
	})

	for i, step := range steps {
		stepLog := log.WithField("step", step.Name)

		tx, err := step.Dispatch(s.baseCtx)
		if err != nil {
			stepLog.WithError(err).Error("步骤派发失败")
			s.failAt(id, i, err.Error())
			return
		}

		s.update(id, func(in *domain.PendingIntent) {
			in.StepIndex = i
			in.Steps[i].State = domain.StepStatePending
			in.Steps[i].TxHash = tx.Hash()
		})
		stepLog.WithField("tx", tx.Hash()).Info("步骤已派发，等待结算")

		if err := tx.Wait(s.baseCtx); err != nil {
			// 结算为失败（回滚）或等待被中止：链在此终止
			stepLog.WithError(err).Error("步骤结算失败")
			s.failAt(id, i, err.Error())
			return
		}

		s.update(id, func(in *domain.PendingIntent) {
			in.Steps[i].State = domain.StepStateSettled
		})
		stepLog.Info("步骤已结算")
	}

	// 全部步骤结算成功：先刷新快照，让读取方在看到 Completed 时
	// 就能看到新的账本状态。刷新失败不改变意图结果（账本已结算），
	// 留给下一次周期刷新补齐。
	if s.store != nil {
		if err := s.store.RefreshAll(s.baseCtx); err != nil {
			log.WithError(err).Warn("意图完成后的快照刷新失败")
		}
	}

	s.update(id, func(in *domain.PendingIntent) {
		in.StepIndex = len(in.Steps) - 1
		in.State = domain.IntentStateCompleted
	})
	log.Info("意图已完成")
}

// failAt 把意图标记为在第 i 步永久失败
func (s *Sequencer) failAt(id string, i int, reason string) {
	s.update(id, func(in *domain.PendingIntent) {
		in.StepIndex = i
		in.Steps[i].State = domain.StepStateFailed
		in.Steps[i].Err = reason
		in.State = domain.IntentStateFailed
	})
}

// update 在锁内修改意图并刷新时间戳
func (s *Sequencer) update(id string, fn func(*domain.PendingIntent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[id]
	if !ok {
		return
	}
	fn(in)
	in.UpdatedAt = time.Now()
}

func gateKey(owner string, kind domain.IntentKind) string {
	return owner + ":" + string(kind)
}
