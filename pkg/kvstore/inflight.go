package kvstore

import (
	"sync"
	"time"
)

// InflightTracker 记录正在进行中的昂贵计算，避免并发的重复重算。
// 这是一种建议性的去重机制，不是互斥锁：标记超过maxAge后视为失效，
// 等待方会放弃等待并独立计算（fail-open），因此计算本身必须是幂等的。
type InflightTracker struct {
	mu       sync.Mutex
	inflight map[string]time.Time
	maxAge   time.Duration
}

// NewInflightTracker 创建一个新的进行中计算追踪器。
func NewInflightTracker(maxAge time.Duration) *InflightTracker {
	return &InflightTracker{
		inflight: make(map[string]time.Time),
		maxAge:   maxAge,
	}
}

// Begin 尝试为指定键登记一次进行中的计算。
// 如果已有未失效的计算在进行，返回false。
func (t *InflightTracker) Begin(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if startedAt, ok := t.inflight[key]; ok {
		if time.Since(startedAt) < t.maxAge {
			return false
		}
		// 超龄的标记视为前一次计算已异常终止，允许接管
	}
	t.inflight[key] = time.Now()
	return true
}

// End 清除指定键的进行中标记。必须在计算结束后调用（无论成败）。
func (t *InflightTracker) End(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, key)
}

// IsInflight 查询指定键是否有未失效的进行中计算。
func (t *InflightTracker) IsInflight(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	startedAt, ok := t.inflight[key]
	if !ok {
		return false
	}
	return time.Since(startedAt) < t.maxAge
}
