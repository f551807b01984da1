package kvstore

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Entry 定义了存储在KV仓库中的单个缓存条目。
// ETag 是根据载荷内容派生的完整性标签，供传输层做条件请求使用。
type Entry struct {
	Key       string
	Payload   []byte
	ETag      string
	ExpiresAt time.Time

	// insertedAt 记录条目首次插入的时间，用于"最旧优先"的淘汰策略。
	insertedAt time.Time
}

// Expired 判断条目在给定时刻是否已经过期。
func (e *Entry) Expired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// Store 是注入式的进程内KV后端接口。
// 它只持有可重建的派生状态（缓存、限流计数），绝不能成为唯一的数据来源；
// 进程重启后除缓存热度外不应造成任何数据丢失。
type Store interface {
	Get(key string) (*Entry, bool)
	Set(key string, payload []byte, ttl time.Duration) *Entry
	Delete(key string)
	// IncrementWithExpiry 为固定窗口限流器增加一次计数。
	// 返回窗口内的最新计数值和窗口的重置时间。
	IncrementWithExpiry(key string, window time.Duration) (int64, time.Time)
}

// windowCounter 是固定窗口计数器的内部状态。
type windowCounter struct {
	count       int64
	windowStart time.Time
	window      time.Duration
}

// MemoryStore 是Store接口的进程内实现。
// 所有操作都由互斥锁保护，可被任意请求处理协程并发调用。
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	counters map[string]*windowCounter

	// order 按首次插入顺序记录键名，用于容量超限时的淘汰。
	// 被删除或覆盖的键会留下惰性的脏记录，在淘汰扫描时跳过。
	order    []string
	capacity int

	// lastCounterSweep 记录上次清扫过期计数器的时间，控制清扫节拍。
	lastCounterSweep time.Time
}

// NewMemoryStore 创建一个容量有界的内存KV仓库。
// capacity <= 0 表示不限制容量。
func NewMemoryStore(capacity int) *MemoryStore {
	return &MemoryStore{
		entries:  make(map[string]*Entry),
		counters: make(map[string]*windowCounter),
		capacity: capacity,
	}
}

// Get 返回指定键的缓存条目。过期的条目会被就地删除并按未命中处理。
func (s *MemoryStore) Get(key string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if entry.Expired(time.Now()) {
		delete(s.entries, key)
		return nil, false
	}
	return entry, true
}

// Set 写入或覆盖一个缓存条目，并返回写入后的条目。
// 覆盖写不会刷新条目在淘汰队列中的位置（最旧插入优先，而非LRU）。
func (s *MemoryStore) Set(key string, payload []byte, ttl time.Duration) *Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry := &Entry{
		Key:        key,
		Payload:    payload,
		ETag:       ComputeETag(payload),
		ExpiresAt:  now.Add(ttl),
		insertedAt: now,
	}

	if old, ok := s.entries[key]; ok {
		// 覆盖写保留原插入时间，维持淘汰顺序的稳定
		entry.insertedAt = old.insertedAt
		s.entries[key] = entry
		return entry
	}

	s.entries[key] = entry
	s.order = append(s.order, key)
	s.evictLocked()
	return entry
}

// Delete 删除一个缓存条目。键不存在时是无害的空操作。
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// Len 返回当前持有的缓存条目数量。
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// evictLocked 在容量超限时按最旧插入顺序淘汰条目。
// 必须在持有锁的情况下调用。
func (s *MemoryStore) evictLocked() {
	if s.capacity <= 0 {
		return
	}
	for len(s.entries) > s.capacity && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		// order中可能存在已被Delete的脏记录，跳过即可
		if _, ok := s.entries[oldest]; ok {
			delete(s.entries, oldest)
		}
	}
}

// IncrementWithExpiry 实现固定窗口计数。
// 当前窗口结束后，首次调用会开启一个新窗口并从1重新计数。
func (s *MemoryStore) IncrementWithExpiry(key string, window time.Duration) (int64, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.sweepCountersLocked(now, window)

	counter, ok := s.counters[key]
	if !ok || now.Sub(counter.windowStart) >= window {
		counter = &windowCounter{windowStart: now, window: window}
		s.counters[key] = counter
	}
	counter.count++
	return counter.count, counter.windowStart.Add(window)
}

// sweepCountersLocked 顺带清理窗口已过期的计数器，
// 不再出现的调用者不会让计数表无限增长。必须在持有锁的情况下调用。
func (s *MemoryStore) sweepCountersLocked(now time.Time, window time.Duration) {
	if now.Sub(s.lastCounterSweep) < window {
		return
	}
	s.lastCounterSweep = now
	for key, counter := range s.counters {
		if now.Sub(counter.windowStart) >= counter.window {
			delete(s.counters, key)
		}
	}
}

// ComputeETag 根据序列化后的载荷派生完整性标签。
func ComputeETag(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:16])
}
