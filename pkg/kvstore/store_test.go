package kvstore

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreSetGet(t *testing.T) {
	store := NewMemoryStore(10)

	payload := []byte(`{"hello":"world"}`)
	entry := store.Set("k1", payload, time.Minute)
	require.NotNil(t, entry)
	assert.NotEmpty(t, entry.ETag)

	got, ok := store.Get("k1")
	require.True(t, ok)
	assert.Equal(t, payload, got.Payload)
	assert.Equal(t, entry.ETag, got.ETag)
}

func TestMemoryStoreTTLExpiry(t *testing.T) {
	store := NewMemoryStore(10)

	store.Set("short", []byte("v"), 30*time.Millisecond)
	if _, ok := store.Get("short"); !ok {
		t.Fatal("条目在TTL内就不可见了")
	}

	time.Sleep(60 * time.Millisecond)
	if _, ok := store.Get("short"); ok {
		t.Fatal("条目过了TTL仍然可见")
	}
	// 过期读取应当顺带清除条目
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStoreEvictsOldestInserted(t *testing.T) {
	store := NewMemoryStore(3)

	store.Set("a", []byte("1"), time.Minute)
	store.Set("b", []byte("2"), time.Minute)
	store.Set("c", []byte("3"), time.Minute)

	// 重写a不会刷新它的插入位次：淘汰按最旧插入，不是最近最少使用
	store.Set("a", []byte("1x"), time.Minute)

	store.Set("d", []byte("4"), time.Minute)

	if _, ok := store.Get("a"); ok {
		t.Fatal("超容后最旧插入的条目a应当被淘汰")
	}
	for _, key := range []string{"b", "c", "d"} {
		if _, ok := store.Get(key); !ok {
			t.Fatalf("条目%s不应被淘汰", key)
		}
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(10)
	store.Set("k", []byte("v"), time.Minute)
	store.Delete("k")
	if _, ok := store.Get("k"); ok {
		t.Fatal("删除后的条目仍然可见")
	}
}

func TestIncrementWithExpiryFixedWindow(t *testing.T) {
	store := NewMemoryStore(10)

	for i := 1; i <= 5; i++ {
		count, _ := store.IncrementWithExpiry("caller", time.Minute)
		assert.Equal(t, int64(i), count)
	}

	// 短窗口过期后计数重置
	count, reset := store.IncrementWithExpiry("burst", 40*time.Millisecond)
	assert.Equal(t, int64(1), count)
	assert.True(t, reset.After(time.Now()))

	time.Sleep(60 * time.Millisecond)
	count, _ = store.IncrementWithExpiry("burst", 40*time.Millisecond)
	assert.Equal(t, int64(1), count, "窗口重置后计数应从1重新开始")
}

func TestIncrementWithExpirySweepsStaleCounters(t *testing.T) {
	store := NewMemoryStore(10)

	store.IncrementWithExpiry("one-shot", 20*time.Millisecond)
	store.IncrementWithExpiry("another", 20*time.Millisecond)
	time.Sleep(40 * time.Millisecond)

	// 后续调用应顺带清理不再出现的过期计数器，计数表不随历史调用者增长
	store.IncrementWithExpiry("active", 20*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.counters, 1)
	_, ok := store.counters["active"]
	assert.True(t, ok, "活跃调用者的计数器应保留")
}

func TestComputeETagDeterministic(t *testing.T) {
	a := ComputeETag([]byte("payload"))
	b := ComputeETag([]byte("payload"))
	c := ComputeETag([]byte("different"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestInflightTrackerBeginEnd(t *testing.T) {
	tracker := NewInflightTracker(time.Minute)

	require.True(t, tracker.Begin("job"))
	assert.False(t, tracker.Begin("job"), "同键的第二次Begin应当失败")
	assert.True(t, tracker.IsInflight("job"))

	tracker.End("job")
	assert.False(t, tracker.IsInflight("job"))
	assert.True(t, tracker.Begin("job"), "End之后应当可以重新Begin")
}

func TestInflightTrackerStaleTakeover(t *testing.T) {
	tracker := NewInflightTracker(30 * time.Millisecond)

	require.True(t, tracker.Begin("job"))
	time.Sleep(50 * time.Millisecond)

	// 持有者超龄后，新的请求者可以接管
	assert.True(t, tracker.Begin("job"))
}

func TestMemoryStoreConcurrentAccess(t *testing.T) {
	store := NewMemoryStore(100)
	done := make(chan struct{})

	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				key := fmt.Sprintf("k%d", j%10)
				store.Set(key, []byte("v"), time.Minute)
				store.Get(key)
				store.IncrementWithExpiry("counter", time.Minute)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}
