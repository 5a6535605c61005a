package license

import (
	"sync"
	"time"

	"automation-license-server/internal/device"
)

const (
	DefaultCacheTTL        = 24 * time.Hour
	DefaultCacheMaxEntries = 1000
)

// CacheEntry 缓存的验证结论，只保存是否有效和到期时间
type CacheEntry struct {
	IsValid   bool       `json:"is_valid"`
	ExpiresAt *time.Time `json:"expires_at"`
	CachedAt  time.Time  `json:"cached_at"`
}

// Cache 进程内的验证结果缓存。
// Get 不检查过期，调用方通过 Usable 判断能否直接使用；条目数超过 maxEntries 时 Put 会整体清理超过 TTL 的条目。
type Cache struct {
	entries    map[device.Fingerprint]CacheEntry
	mutex      sync.RWMutex
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
	hitCount   int64
	missCount  int64
	swept      int64
	onSweep    func(removed int)
}

type CacheOption func(*Cache)

// WithCacheClock 替换时钟，测试用
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithSweepHook 每次清理后回调删除的条目数
func WithSweepHook(fn func(removed int)) CacheOption {
	return func(c *Cache) { c.onSweep = fn }
}

func NewCache(ttl time.Duration, maxEntries int, opts ...CacheOption) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	c := &Cache{
		entries:    make(map[device.Fingerprint]CacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get 返回原始条目，不会因过期而删除；命中计数只统计 Usable 的条目
func (c *Cache) Get(fp device.Fingerprint) (CacheEntry, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[fp]
	if ok && c.Usable(entry) {
		c.hitCount++
	} else {
		c.missCount++
	}
	return entry, ok
}

// IsFresh 条目仍在 TTL 窗口内
func (c *Cache) IsFresh(entry CacheEntry) bool {
	return c.now().Sub(entry.CachedAt) < c.ttl
}

// Usable 条目在 TTL 内，且标记有效的条目到期时间必须还在未来
func (c *Cache) Usable(entry CacheEntry) bool {
	if !c.IsFresh(entry) {
		return false
	}
	if entry.IsValid && (entry.ExpiresAt == nil || !c.now().Before(*entry.ExpiresAt)) {
		return false
	}
	return true
}

// Put 无条件覆盖
func (c *Cache) Put(fp device.Fingerprint, isValid bool, expiresAt *time.Time) {
	var exp *time.Time
	if expiresAt != nil {
		t := *expiresAt
		exp = &t
	}

	c.mutex.Lock()
	c.entries[fp] = CacheEntry{
		IsValid:   isValid,
		ExpiresAt: exp,
		CachedAt:  c.now(),
	}
	overflow := len(c.entries) > c.maxEntries
	c.mutex.Unlock()

	if overflow {
		c.Sweep()
	}
}

// Invalidate 删除单个设备的条目
func (c *Cache) Invalidate(fp device.Fingerprint) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.entries, fp)
}

// Sweep 全量扫描，删除 cached_at 早于 now-TTL 的条目，返回删除数量
func (c *Cache) Sweep() int {
	c.mutex.Lock()
	cutoff := c.now().Add(-c.ttl)
	removed := 0
	for fp, entry := range c.entries {
		if !entry.CachedAt.After(cutoff) {
			delete(c.entries, fp)
			removed++
		}
	}
	c.swept += int64(removed)
	hook := c.onSweep
	c.mutex.Unlock()

	if hook != nil {
		hook(removed)
	}
	return removed
}

func (c *Cache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// GetStats 返回缓存统计
func (c *Cache) GetStats() map[string]interface{} {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	total := c.hitCount + c.missCount
	hitRatio := float64(0)
	if total > 0 {
		hitRatio = float64(c.hitCount) / float64(total)
	}

	return map[string]interface{}{
		"entries":     len(c.entries),
		"max_entries": c.maxEntries,
		"hit_count":   c.hitCount,
		"miss_count":  c.missCount,
		"hit_ratio":   hitRatio,
		"swept":       c.swept,
		"ttl_seconds": c.ttl.Seconds(),
	}
}
