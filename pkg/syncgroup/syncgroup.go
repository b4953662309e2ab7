package syncgroup

import (
	"sync"
)

// SyncGroup 是 sync.WaitGroup 的包装器，简化 goroutine 生命周期管理
// 自动配对 Add/Done，避免手写 WaitGroup 时遗漏 Done 的问题。
type SyncGroup struct {
	wg sync.WaitGroup

	mu      sync.Mutex
	fns     []func()
	running int
}

// NewSyncGroup 创建新的 SyncGroup
func NewSyncGroup() *SyncGroup {
	return &SyncGroup{}
}

// Add 注册一个 goroutine 函数
// 应在 Run() 之前调用；已有 goroutine 在运行时的注册会被忽略。
func (w *SyncGroup) Add(fn func()) {
	if fn == nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running > 0 {
		return
	}
	w.fns = append(w.fns, fn)
}

// Run 启动所有已注册的 goroutine 并清空注册列表
func (w *SyncGroup) Run() {
	w.mu.Lock()
	if w.running > 0 {
		w.mu.Unlock()
		return
	}
	fns := w.fns
	w.fns = nil
	w.running = len(fns)
	w.mu.Unlock()

	for _, fn := range fns {
		w.wg.Add(1)
		go func(doFunc func()) {
			defer func() {
				w.wg.Done()
				w.mu.Lock()
				w.running--
				w.mu.Unlock()
			}()
			doFunc()
		}(fn)
	}
}

// Wait 等待所有 goroutine 完成
func (w *SyncGroup) Wait() {
	w.wg.Wait()
}
