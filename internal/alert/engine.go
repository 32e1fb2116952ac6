// 本文件用于告警巡检编排与快照分发
package alert

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"manifest-watch/internal/ackstore"
	"manifest-watch/internal/clock"
	"manifest-watch/internal/logger"
	"manifest-watch/internal/metrics"
	"manifest-watch/internal/models"
	"manifest-watch/internal/mute"
	"manifest-watch/internal/netio"
)

const (
	defaultAlertWindow   = 30 * time.Minute
	defaultEngineTimeout = time.Second
	notifySendTimeout    = 10 * time.Second
)

// Observer 表示状态快照的观察者回调
// 快照为只读视图 观察者不得修改其中的切片
type Observer func(Snapshot)

// DayArchiver 负责把跨天结转的确认记录写入日终归档
type DayArchiver interface {
	ArchiveDays(days map[string][]models.AckRecord) error
}

// Options 表示告警引擎的构建参数
type Options struct {
	Clock         clock.Clock
	Acks          *ackstore.Store
	Mute          *mute.Coordinator
	Manifests     *Source
	Pool          *netio.Pool
	Notifier      Notifier
	Archiver      DayArchiver
	AlertWindow   time.Duration
	FastRefresh   time.Duration
	NormalRefresh time.Duration
	AckCooldown   time.Duration
	ReadTimeout   time.Duration
}

// Engine 驱动巡检循环 产出只读快照并分发给观察者
type Engine struct {
	clk         clock.Clock
	acks        *ackstore.Store
	muter       *mute.Coordinator
	manifests   *Source
	pool        *netio.Pool
	scheduler   *Scheduler
	notifier    Notifier
	archiver    DayArchiver
	window      time.Duration
	readTimeout time.Duration

	trigger chan struct{}

	mu           sync.Mutex
	observers    []Observer
	latest       Snapshot
	hasSnapshot  bool
	lastLocalAck time.Time
	lastAcks     []models.AckRecord
	lastAcksDate string
	notified     map[string]struct{}
	notifiedDate string
	archiving    bool
	tickTotal    uint64
	lastTickAt   time.Time
}

// NewEngine 构建告警巡检引擎
func NewEngine(opts Options) (*Engine, error) {
	if opts.Acks == nil || opts.Mute == nil || opts.Manifests == nil || opts.Pool == nil {
		return nil, fmt.Errorf("告警引擎依赖不完整")
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.System()
	}
	window := opts.AlertWindow
	if window <= 0 {
		window = defaultAlertWindow
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultEngineTimeout
	}
	return &Engine{
		clk:         clk,
		acks:        opts.Acks,
		muter:       opts.Mute,
		manifests:   opts.Manifests,
		pool:        opts.Pool,
		scheduler:   NewScheduler(opts.FastRefresh, opts.NormalRefresh, opts.AckCooldown),
		notifier:    opts.Notifier,
		archiver:    opts.Archiver,
		window:      window,
		readTimeout: readTimeout,
		trigger:     make(chan struct{}, 1),
		notified:    make(map[string]struct{}),
	}, nil
}

// Run 启动巡检循环 间隔由每轮结果决定 外部触发可提前唤醒
func (e *Engine) Run(ctx context.Context) {
	if e == nil {
		return
	}
	interval := e.Tick()
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-e.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		interval = e.Tick()
		timer.Reset(interval)
	}
}

// Tick 执行一轮巡检并返回下一轮等待时长
func (e *Engine) Tick() time.Duration {
	started := time.Now()
	now := e.clk.Now()
	date := models.FormatDate(now)

	e.startArchiveIfNeeded(date)

	acks, ackErr := e.refreshAcks(date)
	entries, problems, cfgErr := e.manifests.Entries(now)

	ackIndex := indexAcks(acks)
	alerts := make([]Alert, 0, len(entries))
	for _, entry := range entries {
		m, err := NewManifest(date, entry.Time, entry.Carriers)
		if err != nil {
			// 配置源已校验时刻 这里仅兜底
			logger.Warn("跳过无法解析的班次: %v", err)
			continue
		}
		alerts = append(alerts, Classify(m, ackIndex[m.Time], now, e.window))
	}
	alerts = Prioritize(alerts)

	muted, mutedBy := e.muter.IsCurrentlyMuted()
	muteRecord := e.muter.Status()
	layout := Decide(alerts)

	e.mu.Lock()
	lastAck := e.lastLocalAck
	e.mu.Unlock()
	interval, cadence := e.scheduler.NextInterval(alerts, lastAck, now)

	e.notifyMissed(alerts, muted, date)

	degraded, reason := e.degradedState(ackErr, cfgErr)
	snapshot := Snapshot{
		Date:           date,
		At:             now,
		Alerts:         alerts,
		Layout:         layout,
		Muted:          muted,
		MutedBy:        mutedBy,
		Mute:           muteRecord,
		Next:           nextManifest(alerts, now),
		Interval:       interval,
		Cadence:        cadence,
		Degraded:       degraded,
		DegradedReason: reason,
		ConfigProblems: problemStrings(problems),
	}
	e.recordTickMetrics(alerts, degraded, time.Since(started))
	e.publish(snapshot)
	return interval
}

// recordTickMetrics 在每轮巡检末尾统一刷新指标面
// 计数类指标由各写入路径自行累加 这里只负责耗时与状态面
func (e *Engine) recordTickMetrics(alerts []Alert, degraded bool, elapsed time.Duration) {
	collector := metrics.Global()
	collector.ObserveTick(elapsed)

	counts := make(map[string]int, 4)
	for _, alert := range alerts {
		counts[string(alert.Status)]++
	}
	collector.SetAlertCounts(counts)
	collector.SetStorageDegraded(degraded)

	// 指标标签只取文件名 完整路径留给健康接口
	for _, health := range []models.StoreHealth{e.acks.Health(), e.muter.Health(), e.manifests.Health()} {
		collector.SetStoreHealth(filepath.Base(health.StoreFile), health)
	}
	collector.SetCacheStats("mute", e.muter.CacheStats())
	collector.SetCacheStats("manifests", e.manifests.CacheStats())
	collector.SetNetIO(e.pool.Stats())
}

// Subscribe 注册观察者 注册时立即补发最近一次快照
func (e *Engine) Subscribe(observer Observer) {
	if e == nil || observer == nil {
		return
	}
	e.mu.Lock()
	e.observers = append(e.observers, observer)
	latest := e.latest
	ok := e.hasSnapshot
	e.mu.Unlock()
	if ok {
		observer(latest)
	}
}

// Latest 返回最近一次巡检快照
func (e *Engine) Latest() (Snapshot, bool) {
	if e == nil {
		return Snapshot{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.latest, e.hasSnapshot
}

// TriggerTick 请求尽快执行一轮巡检 重复触发会被合并
func (e *Engine) TriggerTick() {
	if e == nil {
		return
	}
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// NoteLocalAck 记录一次本机确认动作 进入快速巡检冷却期并立即巡检
func (e *Engine) NoteLocalAck() {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.lastLocalAck = e.clk.Now()
	e.mu.Unlock()
	e.TriggerTick()
}

// ReloadConfiguration 失效清单配置缓存并立即巡检
func (e *Engine) ReloadConfiguration() {
	if e == nil {
		return
	}
	e.manifests.Reload()
	e.TriggerTick()
}

// TickStats 返回巡检总数与最近巡检时间
func (e *Engine) TickStats() (uint64, time.Time) {
	if e == nil {
		return 0, time.Time{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tickTotal, e.lastTickAt
}

// refreshAcks 经由读取协程池刷新并取出当天确认 超时退回最近一次成功结果
func (e *Engine) refreshAcks(date string) ([]models.AckRecord, error) {
	value, err := e.pool.Execute(func() (interface{}, error) {
		if err := e.acks.Refresh(); err != nil {
			return nil, err
		}
		return e.acks.ForDate(date), nil
	}, e.readTimeout, nil)
	if err != nil {
		e.mu.Lock()
		cached := append([]models.AckRecord(nil), e.lastAcks...)
		sameDate := e.lastAcksDate == date
		e.mu.Unlock()
		if sameDate {
			return cached, err
		}
		return nil, err
	}

	records, _ := value.([]models.AckRecord)
	e.mu.Lock()
	e.lastAcks = records
	e.lastAcksDate = date
	e.mu.Unlock()
	return records, nil
}

// startArchiveIfNeeded 用于触发跨天结转 同一时间只允许一个结转任务
func (e *Engine) startArchiveIfNeeded(date string) {
	e.mu.Lock()
	if e.archiving {
		e.mu.Unlock()
		return
	}
	e.archiving = true
	e.mu.Unlock()
	go e.archiveOlder(date)
}

// archiveOlder 用于把早于当天的确认写入日终归档后再清理共享文件
// 先写归档后清理 归档失败时保留原记录等待下一轮重试
func (e *Engine) archiveOlder(date string) {
	defer func() {
		e.mu.Lock()
		e.archiving = false
		e.mu.Unlock()
	}()

	older := e.acks.OlderThan(date)
	if len(older) == 0 {
		return
	}
	if e.archiver != nil {
		if err := e.archiver.ArchiveDays(older); err != nil {
			logger.Error("日终归档写入失败 暂不清理共享确认: %v", err)
			return
		}
	}
	moved, err := e.acks.ArchiveBefore(date)
	if err != nil {
		logger.Error("清理跨天确认失败: %v", err)
		return
	}
	count := 0
	for _, recs := range moved {
		count += len(recs)
	}
	if count > 0 {
		logger.Info("跨天结转完成: 迁移 %d 条历史确认", count)
	}
}

// notifyMissed 用于发送超窗通知 每个班次每天至多一次 静音期间抑制
func (e *Engine) notifyMissed(alerts []Alert, muted bool, date string) {
	notices := make([]MissedNotice, 0)

	e.mu.Lock()
	if e.notifiedDate != date {
		e.notifiedDate = date
		e.notified = make(map[string]struct{})
	}
	for _, a := range alerts {
		if a.Status != StatusMissed {
			continue
		}
		id := a.Manifest.ID()
		if _, ok := e.notified[id]; ok {
			continue
		}
		// 静音期间同样标记 表示该次超窗已经静音处理 不再补发
		e.notified[id] = struct{}{}
		if muted {
			continue
		}
		notices = append(notices, MissedNotice{
			Date:     a.Manifest.Date,
			Time:     a.Manifest.Time,
			Carriers: pendingCarriers(a),
			At:       e.clk.Now(),
		})
	}
	e.mu.Unlock()

	for _, notice := range notices {
		go e.sendMissedNotice(notice)
	}
}

// sendMissedNotice 用于发送通知并处理异常回退
func (e *Engine) sendMissedNotice(notice MissedNotice) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
	defer cancel()
	if err := e.notifier.Notify(ctx, notice); err != nil {
		logger.Error("发送超窗通知失败: 班次=%s %v", notice.Time, err)
	}
}

// publish 用于记录并分发快照
func (e *Engine) publish(snapshot Snapshot) {
	e.mu.Lock()
	e.latest = snapshot
	e.hasSnapshot = true
	e.tickTotal++
	e.lastTickAt = snapshot.At
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, observer := range observers {
		observer(snapshot)
	}
}

// degradedState 用于汇总各存储源的降级状态
func (e *Engine) degradedState(ackErr, cfgErr error) (bool, string) {
	reasons := make([]string, 0, 3)
	if ackErr != nil {
		reasons = append(reasons, "确认读取: "+ackErr.Error())
	}
	if cfgErr != nil {
		reasons = append(reasons, "配置读取: "+cfgErr.Error())
	} else if degraded, reason := e.manifests.Degraded(); degraded {
		reasons = append(reasons, "配置读取: "+reason)
	}
	if degraded, reason := e.muter.Degraded(); degraded {
		reasons = append(reasons, "静音读取: "+reason)
	}
	if len(reasons) == 0 {
		return false, ""
	}
	return true, strings.Join(reasons, "; ")
}

// nextManifest 用于计算下一个尚未到点的班次倒计时
func nextManifest(alerts []Alert, now time.Time) *NextManifest {
	var best *Alert
	for i := range alerts {
		a := &alerts[i]
		if !a.Manifest.ScheduledAt.After(now) {
			continue
		}
		if best == nil || a.Manifest.ScheduledAt.Before(best.Manifest.ScheduledAt) {
			best = a
		}
	}
	if best == nil {
		return nil
	}
	return &NextManifest{
		Time:      best.Manifest.Time,
		Carriers:  append([]string(nil), best.Manifest.Carriers...),
		Countdown: best.Manifest.ScheduledAt.Sub(now),
	}
}

// pendingCarriers 用于取出班次内未确认的承运商
func pendingCarriers(a Alert) []string {
	out := make([]string, 0, a.Pending)
	for _, carrier := range a.Carriers {
		if carrier.Acknowledged {
			continue
		}
		out = append(out, carrier.Name)
	}
	return out
}

// indexAcks 用于按班次时刻与承运商组织确认记录
func indexAcks(records []models.AckRecord) map[string]map[string]models.AckRecord {
	index := make(map[string]map[string]models.AckRecord)
	for _, rec := range records {
		byCarrier, ok := index[rec.ManifestTime]
		if !ok {
			byCarrier = make(map[string]models.AckRecord)
			index[rec.ManifestTime] = byCarrier
		}
		byCarrier[rec.Carrier] = rec
	}
	return index
}

// problemStrings 用于把配置问题转为展示文本
func problemStrings(problems []error) []string {
	if len(problems) == 0 {
		return nil
	}
	out := make([]string, 0, len(problems))
	for _, p := range problems {
		out = append(out, p.Error())
	}
	return out
}
