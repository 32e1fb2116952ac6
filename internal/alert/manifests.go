// 本文件用于加载与校验共享清单配置
package alert

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"manifest-watch/internal/alerterr"
	"manifest-watch/internal/cache"
	"manifest-watch/internal/clock"
	"manifest-watch/internal/logger"
	"manifest-watch/internal/models"
	"manifest-watch/internal/netio"
	"manifest-watch/internal/sharedstore"
)

const defaultConfigReadTimeout = time.Second

// loadedManifests 表示一次配置加载的规整结果
type loadedManifests struct {
	entries  []models.ManifestEntry
	problems []error
}

// SourceOptions 表示清单配置源的构建参数
type SourceOptions struct {
	Clock       clock.Clock
	File        *sharedstore.File
	Pool        *netio.Pool
	FastTTL     time.Duration
	NetworkTTL  time.Duration
	ReadTimeout time.Duration
}

// Source 负责从共享配置文件加载当天的截单班次计划
type Source struct {
	clk         clock.Clock
	file        *sharedstore.File
	pool        *netio.Pool
	tiers       *cache.TwoTier
	readTimeout time.Duration

	mu       sync.Mutex
	degraded bool
	reason   string
	lastLog  string
}

// NewSource 构建清单配置源
func NewSource(opts SourceOptions) *Source {
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	timeout := opts.ReadTimeout
	if timeout <= 0 {
		timeout = defaultConfigReadTimeout
	}
	return &Source{
		clk:         clk,
		file:        opts.File,
		pool:        opts.Pool,
		tiers:       cache.New(opts.FastTTL, opts.NetworkTTL),
		readTimeout: timeout,
	}
}

// Entries 返回按截单时刻排序的有效班次配置与逐条校验问题
// 非法条目不阻断其余条目加载
func (s *Source) Entries(now time.Time) ([]models.ManifestEntry, []error, error) {
	value, stale, err := s.tiers.Get(now, s.loadViaPool)
	if err != nil {
		return nil, nil, err
	}
	if stale {
		logger.Debug("清单配置读取失败 使用最近一次成功结果")
	}
	loaded, ok := value.(loadedManifests)
	if !ok {
		return nil, nil, nil
	}
	entries := append([]models.ManifestEntry(nil), loaded.entries...)
	problems := append([]error(nil), loaded.problems...)
	return entries, problems, nil
}

// Reload 丢弃缓存 下次读取强制回源
func (s *Source) Reload() {
	s.tiers.Invalidate()
	logger.Info("清单配置缓存已失效 等待下一轮巡检重载")
}

// Degraded 返回配置源是否处于降级状态
func (s *Source) Degraded() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded, s.reason
}

// CacheStats 返回配置缓存命中统计
func (s *Source) CacheStats() cache.Stats {
	return s.tiers.Stats()
}

// Health 返回底层存储健康指标
func (s *Source) Health() models.StoreHealth {
	return s.file.Health()
}

// loadViaPool 用于经由读取协程池回源加载配置
func (s *Source) loadViaPool() (interface{}, error) {
	value, err := s.pool.Execute(s.readFromShare, s.readTimeout, s.acceptLateResult)
	if err != nil {
		s.noteDegraded(err)
		return nil, err
	}
	s.noteHealthy()
	return value, nil
}

// readFromShare 用于读取数据
func (s *Source) readFromShare() (interface{}, error) {
	cfg := models.ManifestConfig{}
	err := s.file.Load(func(data []byte) error {
		var parsed models.ManifestConfig
		if err := json.Unmarshal(data, &parsed); err != nil {
			return err
		}
		cfg = parsed
		return nil
	})
	if err != nil {
		return nil, err
	}
	loaded := normalizeConfig(cfg)
	s.logProblemsOnce(loaded.problems)
	return loaded, nil
}

// acceptLateResult 用于接收超时后才完成的读取结果
func (s *Source) acceptLateResult(value interface{}, err error) {
	if err != nil {
		return
	}
	s.tiers.Put(value, s.clk.Now())
	logger.Debug("迟到的配置读取结果已回填缓存")
}

// normalizeConfig 用于逐条校验并规整清单配置
func normalizeConfig(cfg models.ManifestConfig) loadedManifests {
	loaded := loadedManifests{}
	byClock := make(map[string]int)
	for i, entry := range cfg.Manifests {
		raw := strings.TrimSpace(entry.Time)
		parsed, err := time.Parse(models.ClockLayout, raw)
		if err != nil {
			loaded.problems = append(loaded.problems, fmt.Errorf("%w: 第%d条班次时间无效: %q", alerterr.ErrConfigurationInvalid, i+1, entry.Time))
			continue
		}
		carriers := normalizeCarriers(entry.Carriers)
		if len(carriers) == 0 {
			loaded.problems = append(loaded.problems, fmt.Errorf("%w: 第%d条班次缺少承运商", alerterr.ErrConfigurationInvalid, i+1))
			continue
		}
		clockKey := parsed.Format(models.ClockLayout)
		if idx, ok := byClock[clockKey]; ok {
			// 同一时刻重复配置时合并承运商
			loaded.entries[idx].Carriers = mergeCarriers(loaded.entries[idx].Carriers, carriers)
			continue
		}
		byClock[clockKey] = len(loaded.entries)
		loaded.entries = append(loaded.entries, models.ManifestEntry{Time: clockKey, Carriers: carriers})
	}
	// HH:MM 字符串按字典序即时间序
	sort.Slice(loaded.entries, func(i, j int) bool {
		return loaded.entries[i].Time < loaded.entries[j].Time
	})
	return loaded
}

// normalizeCarriers 用于清理承运商列表并保持原有顺序去重
func normalizeCarriers(raw []string) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// mergeCarriers 用于合并两组承运商并保持先出现者在前
func mergeCarriers(base, extra []string) []string {
	seen := make(map[string]struct{}, len(base))
	for _, name := range base {
		seen[name] = struct{}{}
	}
	out := append([]string(nil), base...)
	for _, name := range extra {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// logProblemsOnce 用于记录配置问题 同一批问题只记录一次
func (s *Source) logProblemsOnce(problems []error) {
	parts := make([]string, 0, len(problems))
	for _, p := range problems {
		parts = append(parts, p.Error())
	}
	fingerprint := strings.Join(parts, "; ")

	s.mu.Lock()
	repeated := fingerprint == s.lastLog
	s.lastLog = fingerprint
	s.mu.Unlock()
	if repeated || fingerprint == "" {
		return
	}
	for _, p := range problems {
		logger.Warn("清单配置存在问题: %v", p)
	}
}

// noteDegraded 用于记录降级原因
func (s *Source) noteDegraded(err error) {
	s.mu.Lock()
	s.degraded = true
	s.reason = err.Error()
	s.mu.Unlock()
}

// noteHealthy 用于清除降级标记
func (s *Source) noteHealthy() {
	s.mu.Lock()
	s.degraded = false
	s.reason = ""
	s.mu.Unlock()
}
