// 本文件用于共享记录的两层 TTL 缓存
package cache

import (
	"sync"
	"time"
)

const (
	defaultFastTTL    = 5 * time.Second
	defaultNetworkTTL = 30 * time.Second
)

// LoaderFunc 在两层缓存均过期时拉取最新值
type LoaderFunc func() (interface{}, error)

// Stats 表示缓存命中与降级指标
type Stats struct {
	FastHitTotal     uint64
	NetworkHitTotal  uint64
	LoadTotal        uint64
	LoadFailureTotal uint64
	StaleServeTotal  uint64
}

// TwoTier 表示快层加网络层的两层 TTL 缓存
// 快层满足界面高频查询 网络层约束共享文件的实际读取频率
type TwoTier struct {
	fastTTL    time.Duration
	networkTTL time.Duration

	mu          sync.Mutex
	value       interface{}
	hasValue    bool
	fastFreshAt time.Time
	netFreshAt  time.Time
	stats       Stats
}

// New 创建两层缓存 非正 TTL 使用默认值
func New(fastTTL, networkTTL time.Duration) *TwoTier {
	if fastTTL <= 0 {
		fastTTL = defaultFastTTL
	}
	if networkTTL <= 0 {
		networkTTL = defaultNetworkTTL
	}
	return &TwoTier{
		fastTTL:    fastTTL,
		networkTTL: networkTTL,
	}
}

// Get 依次查询快层与网络层 两层皆过期时调用 loader 拉取
// loader 失败时回退最近一次已知值并标记 stale 没有历史值时才返回错误
func (c *TwoTier) Get(now time.Time, loader LoaderFunc) (interface{}, bool, error) {
	c.mu.Lock()
	if c.hasValue && now.Sub(c.fastFreshAt) < c.fastTTL {
		c.stats.FastHitTotal++
		value := c.value
		c.mu.Unlock()
		return value, false, nil
	}
	if c.hasValue && now.Sub(c.netFreshAt) < c.networkTTL {
		c.stats.NetworkHitTotal++
		// 网络层命中时重新点亮快层 后续高频查询零开销
		c.fastFreshAt = now
		value := c.value
		c.mu.Unlock()
		return value, false, nil
	}
	c.mu.Unlock()

	// loader 在锁外执行 并发未命中允许重复拉取 后写覆盖
	loaded, err := loader()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.LoadTotal++
	if err != nil {
		c.stats.LoadFailureTotal++
		if c.hasValue {
			c.stats.StaleServeTotal++
			return c.value, true, nil
		}
		return nil, false, err
	}
	c.storeLocked(loaded, now)
	return loaded, false, nil
}

// Put 写穿两层 本进程随后的读取立即可见
func (c *TwoTier) Put(value interface{}, now time.Time) {
	c.mu.Lock()
	c.storeLocked(value, now)
	c.mu.Unlock()
}

// Invalidate 同时失效两层
func (c *TwoTier) Invalidate() {
	c.mu.Lock()
	c.value = nil
	c.hasValue = false
	c.fastFreshAt = time.Time{}
	c.netFreshAt = time.Time{}
	c.mu.Unlock()
}

// Stats 返回缓存指标快照
func (c *TwoTier) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func (c *TwoTier) storeLocked(value interface{}, now time.Time) {
	c.value = value
	c.hasValue = true
	c.fastFreshAt = now
	c.netFreshAt = now
}
