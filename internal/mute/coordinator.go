// 本文件用于跨进程共享静音旗标的协调
package mute

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"manifest-watch/internal/cache"
	"manifest-watch/internal/clock"
	"manifest-watch/internal/logger"
	"manifest-watch/internal/models"
	"manifest-watch/internal/netio"
	"manifest-watch/internal/sharedstore"
)

const defaultReadTimeout = time.Second

// Options 用于配置静音协调器
type Options struct {
	Clock       clock.Clock
	File        *sharedstore.File
	Pool        *netio.Pool
	FastTTL     time.Duration
	NetworkTTL  time.Duration
	ReadTimeout time.Duration
}

// Coordinator 管理共享静音旗标
// 读取经两层缓存与后台读取池 到期判定只依赖本地时钟 各进程独立收敛
type Coordinator struct {
	clk         clock.Clock
	file        *sharedstore.File
	pool        *netio.Pool
	tiers       *cache.TwoTier
	readTimeout time.Duration

	mu              sync.Mutex
	degraded        bool
	degradedReason  string
	persistedExpiry string
}

// New 创建静音协调器
func New(opts Options) *Coordinator {
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &Coordinator{
		clk:         clk,
		file:        opts.File,
		pool:        opts.Pool,
		tiers:       cache.New(opts.FastTTL, opts.NetworkTTL),
		readTimeout: readTimeout,
	}
}

// IsCurrentlyMuted 返回当前是否静音及操作人 到期的限时静音视为已解除
func (c *Coordinator) IsCurrentlyMuted() (bool, string) {
	record := c.Status()
	if !record.IsMuted {
		return false, ""
	}
	return true, record.MutedBy
}

// Status 返回应用到期判定后的静音记录
func (c *Coordinator) Status() models.MuteRecord {
	now := c.clk.Now()
	record := c.currentRecord(now)
	if record.IsMuted && c.isExpired(record, now) {
		c.persistExpiryOnce(record)
		return models.MuteRecord{
			IsMuted:     false,
			MutedBy:     record.MutedBy,
			LastUpdated: record.LastUpdated,
		}
	}
	return record
}

// Remaining 返回限时静音的剩余时长 无静音或无期限时返回 false
func (c *Coordinator) Remaining() (time.Duration, bool) {
	now := c.clk.Now()
	record := c.currentRecord(now)
	if !record.IsMuted || record.UnmuteAt == nil {
		return 0, false
	}
	deadline, err := models.ParseStamp(*record.UnmuteAt)
	if err != nil || !now.Before(deadline) {
		return 0, false
	}
	return deadline.Sub(now), true
}

// SetMute 写入静音状态 duration 大于零时计算自动解除时间
// 写入成功才刷新两层缓存 本进程随后的查询立即可见 失败时缓存保持原值
func (c *Coordinator) SetMute(isMuted bool, user string, duration time.Duration) (models.MuteRecord, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return models.MuteRecord{}, fmt.Errorf("操作人不能为空")
	}

	now := c.clk.Now()
	record := models.MuteRecord{
		IsMuted:     isMuted,
		MutedBy:     user,
		LastUpdated: models.FormatStamp(now),
	}
	if isMuted {
		record.MutedAt = models.FormatStamp(now)
		if duration > 0 {
			stamp := models.FormatStamp(now.Add(duration))
			record.UnmuteAt = &stamp
		}
	}

	if err := c.saveViaPool(record); err != nil {
		return models.MuteRecord{}, err
	}
	c.tiers.Put(record, now)
	return record, nil
}

// Extend 延长限时静音 未静音或已到期时等同于开启一段新的限时静音
// 无期限静音保持不变
func (c *Coordinator) Extend(user string, additional time.Duration) (models.MuteRecord, error) {
	if additional <= 0 {
		return models.MuteRecord{}, fmt.Errorf("延长时长必须大于零")
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return models.MuteRecord{}, fmt.Errorf("操作人不能为空")
	}

	now := c.clk.Now()
	current := c.currentRecord(now)
	if !current.IsMuted || c.isExpired(current, now) {
		return c.SetMute(true, user, additional)
	}
	if current.UnmuteAt == nil {
		return current, nil
	}
	deadline, err := models.ParseStamp(*current.UnmuteAt)
	if err != nil {
		return c.SetMute(true, user, additional)
	}

	stamp := models.FormatStamp(deadline.Add(additional))
	record := models.MuteRecord{
		IsMuted:     true,
		MutedAt:     current.MutedAt,
		MutedBy:     user,
		UnmuteAt:    &stamp,
		LastUpdated: models.FormatStamp(now),
	}
	if err := c.saveViaPool(record); err != nil {
		return models.MuteRecord{}, err
	}
	c.tiers.Put(record, now)
	return record, nil
}

// Degraded 返回读取链路是否处于降级及原因
func (c *Coordinator) Degraded() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded, c.degradedReason
}

// CacheStats 返回缓存命中指标
func (c *Coordinator) CacheStats() cache.Stats {
	return c.tiers.Stats()
}

// Health 返回底层存储健康指标
func (c *Coordinator) Health() models.StoreHealth {
	return c.file.Health()
}

// currentRecord 经缓存取静音记录 读取失败时回退最近已知值 冷启动失败返回未静音
func (c *Coordinator) currentRecord(now time.Time) models.MuteRecord {
	value, stale, err := c.tiers.Get(now, c.loadViaPool)
	if err != nil {
		return models.MuteRecord{}
	}
	if stale {
		logger.Debug("静音记录读取降级，沿用最近已知值")
	}
	record, ok := value.(models.MuteRecord)
	if !ok {
		return models.MuteRecord{}
	}
	return record
}

// loadViaPool 在后台读取池中加载静音记录 超时放弃等待 迟到结果回填缓存
func (c *Coordinator) loadViaPool() (interface{}, error) {
	value, err := c.pool.Execute(c.readFromShare, c.readTimeout, c.acceptLateResult)
	if err != nil {
		c.noteDegraded(err)
		return nil, err
	}
	c.noteHealthy()
	return value, nil
}

func (c *Coordinator) readFromShare() (interface{}, error) {
	parsed := models.MuteRecord{}
	err := c.file.Load(func(data []byte) error {
		var record models.MuteRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return err
		}
		parsed = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func (c *Coordinator) acceptLateResult(value interface{}, err error) {
	if err != nil {
		return
	}
	c.tiers.Put(value, c.clk.Now())
	logger.Debug("迟到的静音记录读取已回填缓存")
}

func (c *Coordinator) saveViaPool(record models.MuteRecord) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化静音记录失败: %w", err)
	}
	_, err = c.pool.Execute(func() (interface{}, error) {
		return nil, c.file.Save(data)
	}, c.readTimeout, nil)
	if err != nil {
		c.noteDegraded(err)
		return err
	}
	c.noteHealthy()
	return nil
}

// isExpired 判断限时静音是否已到本地时钟的解除时间
// 解除时间无法解析时按已到期处理 避免错误记录长期压制告警
func (c *Coordinator) isExpired(record models.MuteRecord, now time.Time) bool {
	if record.UnmuteAt == nil {
		return false
	}
	deadline, err := models.ParseStamp(*record.UnmuteAt)
	if err != nil {
		return true
	}
	return !now.Before(deadline)
}

// persistExpiryOnce 机会性回写到期解除 每个解除时间只尝试一次
// 读取的正确性不依赖这次写入 各进程靠本地时钟独立判定
func (c *Coordinator) persistExpiryOnce(record models.MuteRecord) {
	key := ""
	if record.UnmuteAt != nil {
		key = *record.UnmuteAt
	}
	c.mu.Lock()
	if c.persistedExpiry == key {
		c.mu.Unlock()
		return
	}
	c.persistedExpiry = key
	c.mu.Unlock()

	go func() {
		now := c.clk.Now()
		expired := models.MuteRecord{
			IsMuted:     false,
			MutedBy:     record.MutedBy,
			LastUpdated: models.FormatStamp(now),
		}
		data, err := json.MarshalIndent(expired, "", "  ")
		if err != nil {
			return
		}
		if err := c.file.Save(data); err != nil {
			logger.Warn("静音到期回写失败: %v", err)
			return
		}
		c.tiers.Put(expired, c.clk.Now())
		logger.Info("限时静音已到期，解除状态已回写: 原操作人=%s", record.MutedBy)
	}()
}

func (c *Coordinator) noteDegraded(err error) {
	c.mu.Lock()
	c.degraded = true
	c.degradedReason = err.Error()
	c.mu.Unlock()
}

func (c *Coordinator) noteHealthy() {
	c.mu.Lock()
	c.degraded = false
	c.degradedReason = ""
	c.mu.Unlock()
}
