// 本文件用于 Prometheus 指标聚合与导出 将运行时指标统一收口便于监控接入

package metrics

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"manifest-watch/internal/cache"
	"manifest-watch/internal/models"
)

// Collector 聚合运行期指标，并以 Prometheus 文本格式输出。
type Collector struct {
	ticksTotal        atomic.Uint64
	acksTotal         atomic.Uint64
	acksRejectedTotal atomic.Uint64
	muteTogglesTotal  atomic.Uint64
	archivedDaysTotal atomic.Uint64

	netWorkers  atomic.Int64
	netPending  atomic.Int64
	netExecuted atomic.Uint64
	netTimeouts atomic.Uint64

	storageDegraded atomic.Int64

	mu             sync.RWMutex
	notifyTotals   map[notifyKey]uint64
	storeHealths   map[string]models.StoreHealth
	cacheStats     map[string]cache.Stats
	alertsByStatus map[string]int
	tickSeconds    *histogram
}

type notifyKey struct {
	channel string
	outcome string
}

type histogram struct {
	buckets []float64
	counts  []uint64 // 累计桶计数
	count   uint64
	sum     float64
}

var globalCollector = NewCollector()

// Global 返回进程级全局指标收集器。
func Global() *Collector {
	return globalCollector
}

// NewCollector 创建指标收集器。
func NewCollector() *Collector {
	return &Collector{
		notifyTotals:   make(map[notifyKey]uint64),
		storeHealths:   make(map[string]models.StoreHealth),
		cacheStats:     make(map[string]cache.Stats),
		alertsByStatus: make(map[string]int),
		tickSeconds:    newHistogram(tickBuckets()),
	}
}

func tickBuckets() []float64 {
	return []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5}
}

func newHistogram(buckets []float64) *histogram {
	clean := make([]float64, 0, len(buckets))
	for _, bucket := range buckets {
		if bucket <= 0 {
			continue
		}
		clean = append(clean, bucket)
	}
	sort.Float64s(clean)
	return &histogram{
		buckets: clean,
		counts:  make([]uint64, len(clean)),
	}
}

func (h *histogram) observe(v float64) {
	if h == nil {
		return
	}
	for idx, bound := range h.buckets {
		if v <= bound {
			h.counts[idx]++
		}
	}
	h.count++
	h.sum += v
}

func (h *histogram) writePrometheus(builder *strings.Builder, metric string, labels map[string]string) {
	if h == nil {
		return
	}
	for idx, bound := range h.buckets {
		bucketLabels := mergeLabels(labels, map[string]string{
			"le": trimFloat(bound),
		})
		builder.WriteString(metric)
		builder.WriteString("_bucket")
		writeLabels(builder, bucketLabels)
		builder.WriteByte(' ')
		builder.WriteString(strconv.FormatUint(h.counts[idx], 10))
		builder.WriteByte('\n')
	}
	infLabels := mergeLabels(labels, map[string]string{
		"le": "+Inf",
	})
	builder.WriteString(metric)
	builder.WriteString("_bucket")
	writeLabels(builder, infLabels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(h.count, 10))
	builder.WriteByte('\n')

	builder.WriteString(metric)
	builder.WriteString("_sum")
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(trimFloat(h.sum))
	builder.WriteByte('\n')

	builder.WriteString(metric)
	builder.WriteString("_count")
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(h.count, 10))
	builder.WriteByte('\n')
}

// ObserveTick 记录一轮巡检及其耗时。
func (c *Collector) ObserveTick(latency time.Duration) {
	if c == nil {
		return
	}
	c.ticksTotal.Add(1)
	c.mu.Lock()
	c.tickSeconds.observe(latency.Seconds())
	c.mu.Unlock()
}

// IncAck 记录一次确认写入。
func (c *Collector) IncAck() {
	if c == nil {
		return
	}
	c.acksTotal.Add(1)
}

// IncAckRejected 记录一次被校验拒绝的确认请求。
func (c *Collector) IncAckRejected() {
	if c == nil {
		return
	}
	c.acksRejectedTotal.Add(1)
}

// IncMuteToggle 记录一次静音状态切换。
func (c *Collector) IncMuteToggle() {
	if c == nil {
		return
	}
	c.muteTogglesTotal.Add(1)
}

// IncArchivedDay 记录一次日终归档落盘。
func (c *Collector) IncArchivedDay() {
	if c == nil {
		return
	}
	c.archivedDaysTotal.Add(1)
}

// ObserveNotify 记录一次通知发送结果。
func (c *Collector) ObserveNotify(channel, outcome string) {
	if c == nil {
		return
	}
	key := notifyKey{
		channel: normalizeMetricLabel(channel),
		outcome: normalizeMetricLabel(outcome),
	}
	c.mu.Lock()
	c.notifyTotals[key]++
	c.mu.Unlock()
}

// SetNetIO 刷新共享读协程池指标。
func (c *Collector) SetNetIO(stats models.NetIOStats) {
	if c == nil {
		return
	}
	c.netWorkers.Store(int64(stats.Workers))
	c.netPending.Store(int64(stats.Pending))
	c.netExecuted.Store(stats.ExecutedTotal)
	c.netTimeouts.Store(stats.TimeoutTotal)
}

// SetStoreHealth 刷新单个共享存储文件的健康计数。
func (c *Collector) SetStoreHealth(store string, health models.StoreHealth) {
	if c == nil {
		return
	}
	key := normalizeMetricLabel(store)
	c.mu.Lock()
	c.storeHealths[key] = health
	c.mu.Unlock()
}

// SetCacheStats 刷新单个两层缓存的命中计数。
func (c *Collector) SetCacheStats(name string, stats cache.Stats) {
	if c == nil {
		return
	}
	key := normalizeMetricLabel(name)
	c.mu.Lock()
	c.cacheStats[key] = stats
	c.mu.Unlock()
}

// SetAlertCounts 刷新最近一次快照内各状态的班次数量。
func (c *Collector) SetAlertCounts(counts map[string]int) {
	if c == nil {
		return
	}
	copied := make(map[string]int, len(counts))
	for status, count := range counts {
		copied[normalizeMetricLabel(status)] = count
	}
	c.mu.Lock()
	c.alertsByStatus = copied
	c.mu.Unlock()
}

// SetStorageDegraded 刷新共享存储降级标记。
func (c *Collector) SetStorageDegraded(degraded bool) {
	if c == nil {
		return
	}
	if degraded {
		c.storageDegraded.Store(1)
		return
	}
	c.storageDegraded.Store(0)
}

// RenderPrometheus 以 text exposition 格式导出全部指标。
func (c *Collector) RenderPrometheus() string {
	if c == nil {
		return ""
	}

	notifyTotals := make(map[notifyKey]uint64)
	storeHealths := make(map[string]models.StoreHealth)
	cacheStats := make(map[string]cache.Stats)
	alertsByStatus := make(map[string]int)
	var tickSeconds histogram
	c.mu.RLock()
	for key, count := range c.notifyTotals {
		notifyTotals[key] = count
	}
	for store, health := range c.storeHealths {
		storeHealths[store] = health
	}
	for name, stats := range c.cacheStats {
		cacheStats[name] = stats
	}
	for status, count := range c.alertsByStatus {
		alertsByStatus[status] = count
	}
	tickSeconds = cloneHistogram(c.tickSeconds)
	c.mu.RUnlock()

	builder := strings.Builder{}
	builder.Grow(4096)

	writeMetricHeader(&builder, "manifest_ticks_total", "counter", "Total alert engine ticks.")
	writeCounter(&builder, "manifest_ticks_total", c.ticksTotal.Load(), nil)

	writeMetricHeader(&builder, "manifest_tick_seconds", "histogram", "Alert engine tick latency in seconds.")
	tickSeconds.writePrometheus(&builder, "manifest_tick_seconds", nil)

	// 低流量时也要保证基础时序存在 否则报警规则无从比较
	for _, status := range []string{"acknowledged", "active", "missed", "pending"} {
		if _, ok := alertsByStatus[status]; !ok {
			alertsByStatus[status] = 0
		}
	}
	writeMetricHeader(&builder, "manifest_alerts", "gauge", "Manifests in the latest snapshot grouped by status.")
	for _, status := range sortedStringKeysFromIntMap(alertsByStatus) {
		writeGaugeInt(&builder, "manifest_alerts", int64(alertsByStatus[status]), map[string]string{
			"status": status,
		})
	}

	writeMetricHeader(&builder, "manifest_acks_total", "counter", "Acknowledgments written by this node.")
	writeCounter(&builder, "manifest_acks_total", c.acksTotal.Load(), nil)

	writeMetricHeader(&builder, "manifest_acks_rejected_total", "counter", "Acknowledgment requests rejected by validation.")
	writeCounter(&builder, "manifest_acks_rejected_total", c.acksRejectedTotal.Load(), nil)

	writeMetricHeader(&builder, "manifest_mute_toggles_total", "counter", "Mute state toggles performed by this node.")
	writeCounter(&builder, "manifest_mute_toggles_total", c.muteTogglesTotal.Load(), nil)

	writeMetricHeader(&builder, "manifest_archived_days_total", "counter", "Day-end acknowledgment archives written.")
	writeCounter(&builder, "manifest_archived_days_total", c.archivedDaysTotal.Load(), nil)

	for _, channel := range []string{"dingtalk", "email"} {
		for _, outcome := range []string{"failure", "success"} {
			key := notifyKey{channel: channel, outcome: outcome}
			if _, ok := notifyTotals[key]; !ok {
				notifyTotals[key] = 0
			}
		}
	}
	writeMetricHeader(&builder, "manifest_notify_total", "counter", "Missed-manifest notifications grouped by channel and outcome.")
	for _, key := range sortedNotifyKeys(notifyTotals) {
		writeCounter(&builder, "manifest_notify_total", notifyTotals[key], map[string]string{
			"channel": key.channel,
			"outcome": key.outcome,
		})
	}

	writeMetricHeader(&builder, "manifest_storage_degraded", "gauge", "Whether the latest snapshot was built from degraded data (1 degraded).")
	writeGaugeInt(&builder, "manifest_storage_degraded", c.storageDegraded.Load(), nil)

	stores := sortedStringKeysFromHealthMap(storeHealths)
	writeMetricHeader(&builder, "manifest_store_corrupt_fallback_total", "counter", "Corrupt shared files quarantined, grouped by store.")
	for _, store := range stores {
		writeCounter(&builder, "manifest_store_corrupt_fallback_total", storeHealths[store].CorruptFallbackTotal, map[string]string{
			"store": store,
		})
	}
	writeMetricHeader(&builder, "manifest_store_backup_recovered_total", "counter", "Shared files recovered from backup, grouped by store.")
	for _, store := range stores {
		writeCounter(&builder, "manifest_store_backup_recovered_total", storeHealths[store].BackupRecoveredTotal, map[string]string{
			"store": store,
		})
	}
	writeMetricHeader(&builder, "manifest_store_write_failure_total", "counter", "Shared file write failures, grouped by store.")
	for _, store := range stores {
		writeCounter(&builder, "manifest_store_write_failure_total", storeHealths[store].WriteFailureTotal, map[string]string{
			"store": store,
		})
	}

	caches := sortedStringKeysFromCacheMap(cacheStats)
	writeMetricHeader(&builder, "manifest_cache_hits_total", "counter", "Tiered cache hits grouped by cache and tier.")
	for _, name := range caches {
		writeCounter(&builder, "manifest_cache_hits_total", cacheStats[name].FastHitTotal, map[string]string{
			"cache": name,
			"tier":  "fast",
		})
		writeCounter(&builder, "manifest_cache_hits_total", cacheStats[name].NetworkHitTotal, map[string]string{
			"cache": name,
			"tier":  "network",
		})
	}
	writeMetricHeader(&builder, "manifest_cache_loads_total", "counter", "Tiered cache loader executions grouped by cache.")
	for _, name := range caches {
		writeCounter(&builder, "manifest_cache_loads_total", cacheStats[name].LoadTotal, map[string]string{
			"cache": name,
		})
	}
	writeMetricHeader(&builder, "manifest_cache_load_failures_total", "counter", "Tiered cache loader failures grouped by cache.")
	for _, name := range caches {
		writeCounter(&builder, "manifest_cache_load_failures_total", cacheStats[name].LoadFailureTotal, map[string]string{
			"cache": name,
		})
	}
	writeMetricHeader(&builder, "manifest_cache_stale_serves_total", "counter", "Stale cache values served after loader failures, grouped by cache.")
	for _, name := range caches {
		writeCounter(&builder, "manifest_cache_stale_serves_total", cacheStats[name].StaleServeTotal, map[string]string{
			"cache": name,
		})
	}

	writeMetricHeader(&builder, "manifest_read_workers", "gauge", "Shared read pool worker count.")
	writeGaugeInt(&builder, "manifest_read_workers", c.netWorkers.Load(), nil)

	writeMetricHeader(&builder, "manifest_reads_pending", "gauge", "Shared reads waiting in the pool queue.")
	writeGaugeInt(&builder, "manifest_reads_pending", c.netPending.Load(), nil)

	writeMetricHeader(&builder, "manifest_reads_total", "counter", "Shared reads executed by the pool.")
	writeCounter(&builder, "manifest_reads_total", c.netExecuted.Load(), nil)

	writeMetricHeader(&builder, "manifest_reads_timed_out_total", "counter", "Shared reads that exceeded their wait deadline.")
	writeCounter(&builder, "manifest_reads_timed_out_total", c.netTimeouts.Load(), nil)

	return builder.String()
}

func cloneHistogram(h *histogram) histogram {
	if h == nil {
		return histogram{}
	}
	return histogram{
		buckets: append([]float64(nil), h.buckets...),
		counts:  append([]uint64(nil), h.counts...),
		count:   h.count,
		sum:     h.sum,
	}
}

func writeMetricHeader(builder *strings.Builder, metric, metricType, help string) {
	builder.WriteString("# HELP ")
	builder.WriteString(metric)
	builder.WriteByte(' ')
	builder.WriteString(help)
	builder.WriteByte('\n')
	builder.WriteString("# TYPE ")
	builder.WriteString(metric)
	builder.WriteByte(' ')
	builder.WriteString(metricType)
	builder.WriteByte('\n')
}

func writeCounter(builder *strings.Builder, metric string, value uint64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatUint(value, 10))
	builder.WriteByte('\n')
}

func writeGaugeInt(builder *strings.Builder, metric string, value int64, labels map[string]string) {
	builder.WriteString(metric)
	writeLabels(builder, labels)
	builder.WriteByte(' ')
	builder.WriteString(strconv.FormatInt(value, 10))
	builder.WriteByte('\n')
}

func writeLabels(builder *strings.Builder, labels map[string]string) {
	if len(labels) == 0 {
		return
	}
	keys := make([]string, 0, len(labels))
	for key := range labels {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	builder.WriteByte('{')
	for idx, key := range keys {
		if idx > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(key)
		builder.WriteString("=\"")
		builder.WriteString(escapeLabelValue(labels[key]))
		builder.WriteByte('"')
	}
	builder.WriteByte('}')
}

func mergeLabels(base, ext map[string]string) map[string]string {
	if len(base) == 0 && len(ext) == 0 {
		return nil
	}
	merged := make(map[string]string, len(base)+len(ext))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range ext {
		merged[key] = value
	}
	return merged
}

func normalizeMetricLabel(value string) string {
	clean := strings.TrimSpace(strings.ToLower(value))
	if clean == "" {
		return "unknown"
	}
	clean = strings.ReplaceAll(clean, "\n", " ")
	clean = strings.ReplaceAll(clean, "\r", " ")
	clean = strings.ReplaceAll(clean, "\t", " ")
	clean = strings.Join(strings.Fields(clean), " ")
	if len(clean) > 120 {
		clean = clean[:120]
	}
	return clean
}

func escapeLabelValue(value string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		"\n", `\n`,
	)
	return replacer.Replace(value)
}

func sortedStringKeysFromIntMap(items map[string]int) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeysFromHealthMap(items map[string]models.StoreHealth) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeysFromCacheMap(items map[string]cache.Stats) []string {
	keys := make([]string, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedNotifyKeys(items map[notifyKey]uint64) []notifyKey {
	keys := make([]notifyKey, 0, len(items))
	for key := range items {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].channel != keys[j].channel {
			return keys[i].channel < keys[j].channel
		}
		return keys[i].outcome < keys[j].outcome
	})
	return keys
}

func trimFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// ResetForTest 清空全部计数，仅供测试隔离使用。
func (c *Collector) ResetForTest() {
	if c == nil {
		return
	}
	c.ticksTotal.Store(0)
	c.acksTotal.Store(0)
	c.acksRejectedTotal.Store(0)
	c.muteTogglesTotal.Store(0)
	c.archivedDaysTotal.Store(0)
	c.netWorkers.Store(0)
	c.netPending.Store(0)
	c.netExecuted.Store(0)
	c.netTimeouts.Store(0)
	c.storageDegraded.Store(0)

	c.mu.Lock()
	c.notifyTotals = make(map[notifyKey]uint64)
	c.storeHealths = make(map[string]models.StoreHealth)
	c.cacheStats = make(map[string]cache.Stats)
	c.alertsByStatus = make(map[string]int)
	c.tickSeconds = newHistogram(tickBuckets())
	c.mu.Unlock()
}

// MustGlobalPrometheus 返回全局指标文本，便于 handler 直接写响应。
func MustGlobalPrometheus() string {
	return Global().RenderPrometheus()
}

// SnapshotString 输出关键计数的单行摘要，仅用于日志排查。
func (c *Collector) SnapshotString() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf(
		"ticks=%d acks=%d rejected=%d mutes=%d archived=%d read_timeouts=%d",
		c.ticksTotal.Load(),
		c.acksTotal.Load(),
		c.acksRejectedTotal.Load(),
		c.muteTogglesTotal.Load(),
		c.archivedDaysTotal.Load(),
		c.netTimeouts.Load(),
	)
}
