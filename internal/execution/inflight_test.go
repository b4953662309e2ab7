package execution

import (
	"errors"
	"sync"
	"testing"
)

// TestInFlightGate_AcquireRelease 测试基本的获取/释放
func TestInFlightGate_AcquireRelease(t *testing.T) {
	g := NewInFlightGate(0)

	if err := g.TryAcquire("0xabc:open"); err != nil {
		t.Fatalf("首次获取应该成功: %v", err)
	}
	if err := g.TryAcquire("0xabc:open"); !errors.Is(err, ErrDuplicateInFlight) {
		t.Fatalf("重复获取应该返回 ErrDuplicateInFlight，得到 %v", err)
	}

	// 不同 key 互不影响
	if err := g.TryAcquire("0xabc:close"); err != nil {
		t.Fatalf("不同 key 应该可以获取: %v", err)
	}
	if err := g.TryAcquire("0xdef:open"); err != nil {
		t.Fatalf("不同账户应该可以获取: %v", err)
	}

	g.Release("0xabc:open")
	if err := g.TryAcquire("0xabc:open"); err != nil {
		t.Fatalf("释放后应该可以再次获取: %v", err)
	}
}

// TestInFlightGate_NeverExpires 测试令牌不会自动过期
func TestInFlightGate_NeverExpires(t *testing.T) {
	g := NewInFlightGate(4)

	if err := g.TryAcquire("k"); err != nil {
		t.Fatal(err)
	}
	if !g.Held("k") {
		t.Error("令牌应该处于持有状态")
	}
	// 没有 Release 之前始终占用
	if err := g.TryAcquire("k"); !errors.Is(err, ErrDuplicateInFlight) {
		t.Errorf("未释放时应该始终互斥，得到 %v", err)
	}

	g.Release("k")
	if g.Held("k") {
		t.Error("释放后不应该处于持有状态")
	}
}

// TestInFlightGate_EmptyKey 测试空 key 与 nil 接收者不做互斥
func TestInFlightGate_EmptyKey(t *testing.T) {
	g := NewInFlightGate(1)
	if err := g.TryAcquire(""); err != nil {
		t.Errorf("空 key 不应该互斥: %v", err)
	}
	if err := g.TryAcquire(""); err != nil {
		t.Errorf("空 key 不应该互斥: %v", err)
	}

	var nilGate *InFlightGate
	if err := nilGate.TryAcquire("k"); err != nil {
		t.Errorf("nil 接收者不应该互斥: %v", err)
	}
	nilGate.Release("k")
}

// TestInFlightGate_Concurrent 测试并发下只有一个获取者成功
func TestInFlightGate_Concurrent(t *testing.T) {
	g := NewInFlightGate(16)

	const n = 64
	var wg sync.WaitGroup
	acquired := make(chan struct{}, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.TryAcquire("hot-key"); err == nil {
				acquired <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(acquired)

	count := 0
	for range acquired {
		count++
	}
	if count != 1 {
		t.Errorf("期望恰好 1 个获取者成功，得到 %d", count)
	}
}
