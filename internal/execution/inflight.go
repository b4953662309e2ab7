// Package execution 提供意图执行的并发控制原语
package execution

import (
	"fmt"
	"hash/fnv"
	"sync"
)

// ErrDuplicateInFlight 表示同一 key 的意图仍在 in-flight。
// 用于防止重复点击/重复触发导致同一账户同类意图并发上链。
var ErrDuplicateInFlight = fmt.Errorf("duplicate in-flight")

// InFlightGate 提供确定性的 in-flight 互斥。
//
// 与基于 TTL 的去重不同：一次意图可能要等多笔交易结算，持续时间
// 不可预估，因此令牌只能由持有方显式 Release，绝不自动过期。
// 误判放行的代价是重复上链，优先选择确定性。
type InFlightGate struct {
	shards []gateShard
}

type gateShard struct {
	mu sync.Mutex
	m  map[string]struct{}
}

// NewInFlightGate 创建互斥门
func NewInFlightGate(shardCount int) *InFlightGate {
	if shardCount <= 0 {
		shardCount = 16
	}
	shards := make([]gateShard, shardCount)
	for i := range shards {
		shards[i].m = make(map[string]struct{})
	}
	return &InFlightGate{shards: shards}
}

// TryAcquire 尝试获取 key 的 in-flight 令牌。
// - 成功返回 nil
// - 已被占用返回 ErrDuplicateInFlight
func (g *InFlightGate) TryAcquire(key string) error {
	if g == nil || key == "" {
		return nil
	}
	sh := g.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.m[key]; ok {
		return ErrDuplicateInFlight
	}
	sh.m[key] = struct{}{}
	return nil
}

// Release 释放 key 的令牌（意图到达终态后调用）
func (g *InFlightGate) Release(key string) {
	if g == nil || key == "" {
		return
	}
	sh := g.shard(key)
	sh.mu.Lock()
	delete(sh.m, key)
	sh.mu.Unlock()
}

// Held 检查 key 是否在 in-flight（展示层查询用）
func (g *InFlightGate) Held(key string) bool {
	if g == nil || key == "" {
		return false
	}
	sh := g.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	_, ok := sh.m[key]
	return ok
}

func (g *InFlightGate) shard(key string) *gateShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	idx := int(h.Sum32()) % len(g.shards)
	return &g.shards[idx]
}
