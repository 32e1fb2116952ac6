package state

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"manifest-watch/internal/alert"
	"manifest-watch/internal/clock"
	"manifest-watch/internal/models"
)

//“内存中保留数量的上限”常量，用来限制运行态事件列表的长度
const (
	maxTimelineEvents = 120
	maxAckEvents      = 200 //确认动作保留上限
	maxMuteEvents     = 64
)

const displayTime = "2006-01-02 15:04:05"

//时间线事件条目
type timelineEntry struct {
	Label  string
	Time   time.Time
	Status string
}

//确认动作条目
type ackEntry struct {
	ManifestTime string
	Carrier      string
	User         string
	Action       string
	Late         bool
	Reason       string
	Time         string //展示用时刻 已格式化
}

//静音变化条目
type muteEntry struct {
	Action string
	By     string
	Until  string
	Time   time.Time
}

// BoardStats 表示看板聚合计数 供指标采集读取
type BoardStats struct {
	Applied     uint64
	StartedAt   time.Time
	LastUpdate  time.Time
	AcksToday   int
	LateToday   int
	MissedToday int
	ClearsToday int
}

// Board 保存看板接口所需的内存运行态数据
// 消费告警快照 与上一快照比对生成时间线与动作流
type Board struct {
	//并发控制
	mu sync.RWMutex //读多写少，读用 RLock，写用 Lock

	clk       clock.Clock
	startedAt time.Time

	//最近一次快照
	latest    alert.Snapshot
	hasLatest bool
	prevDate  string

	//事件历史（环形缓存式）
	timeline []timelineEntry
	ackFeed  []ackEntry
	muteFeed []muteEntry

	//当日累计计数 跨天归零
	applied     uint64
	acksToday   int
	lateToday   int
	missedToday int
	clearsToday int

	//共享文件健康概览 由服务层推送
	stores []StoreHealthView
}

// NewBoard 创建空看板状态
func NewBoard(clk clock.Clock) *Board {
	if clk == nil {
		clk = clock.System()
	}
	return &Board{clk: clk, startedAt: clk.Now()}
}

// Apply 消费一次告警快照 对比上一快照后更新历史与计数
// 作为观察者注册到告警引擎 每次巡检结束被调用一次
func (b *Board) Apply(snap alert.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if snap.Date != b.prevDate {
		b.rolloverLocked(snap)
	}
	b.diffStatusLocked(snap)
	b.diffAcksLocked(snap)
	b.diffMuteLocked(snap)

	b.latest = snap
	b.hasLatest = true
	b.applied++
}

// SetStoreHealth 更新共享文件健康概览 由服务层在巡检后推送
func (b *Board) SetStoreHealth(acks, mute, manifests models.StoreHealth) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stores = []StoreHealthView{
		storeView("确认记录", acks),
		storeView("静音状态", mute),
		storeView("班次配置", manifests),
	}
}

// Latest 返回最近一次快照 第二个返回值表示是否已有快照
func (b *Board) Latest() (alert.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.hasLatest
}

// Stats 返回看板聚合计数
func (b *Board) Stats() BoardStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return BoardStats{
		Applied:     b.applied,
		StartedAt:   b.startedAt,
		LastUpdate:  b.latest.At,
		AcksToday:   b.acksToday,
		LateToday:   b.lateToday,
		MissedToday: b.missedToday,
		ClearsToday: b.clearsToday,
	}
}

// Timeline 返回状态时间线 最新在前
func (b *Board) Timeline() []TimelineEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.timelineLocked()
}

// AckFeed 返回确认动作流 最新在前
func (b *Board) AckFeed() []AckEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ackFeedLocked()
}

// MuteFeed 返回静音变化流 最新在前
func (b *Board) MuteFeed() []MuteEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.muteFeedLocked()
}

// MetricCards 返回指标卡片
func (b *Board) MetricCards() []MetricCard {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.metricCardsLocked()
}

// Dashboard 聚合看板接口需要的全部数据
func (b *Board) Dashboard() BoardData {
	b.mu.RLock()
	defer b.mu.RUnlock()

	data := BoardData{
		Date:           b.latest.Date,
		UpdatedAt:      formatTime(b.latest.At),
		Layout:         string(b.latest.Layout.Mode),
		Emphasized:     b.latest.Layout.Emphasized,
		Alerts:         b.latest.Alerts,
		MetricCards:    b.metricCardsLocked(),
		Timeline:       b.timelineLocked(),
		AckFeed:        b.ackFeedLocked(),
		MuteFeed:       b.muteFeedLocked(),
		Notes:          b.notesLocked(),
		Muted:          b.latest.Muted,
		MutedBy:        b.latest.MutedBy,
		RefreshSeconds: int(b.latest.Interval.Seconds()),
		Cadence:        string(b.latest.Cadence),
		Degraded:       b.latest.Degraded,
		DegradedReason: b.latest.DegradedReason,
		ConfigProblems: b.latest.ConfigProblems,
		Stores:         append([]StoreHealthView(nil), b.stores...),
	}
	if b.latest.Mute.UnmuteAt != nil {
		data.MuteUntil = *b.latest.Mute.UnmuteAt
	}
	if b.latest.Next != nil {
		data.Next = &NextManifestView{
			Time:      b.latest.Next.Time,
			Carriers:  append([]string(nil), b.latest.Next.Carriers...),
			Countdown: formatCountdown(b.latest.Next.Countdown),
		}
	}
	return data
}

//跨天归零当日计数 并记录日期切换事件
func (b *Board) rolloverLocked(snap alert.Snapshot) {
	label := "进入新的日期 " + snap.Date
	if !b.hasLatest {
		label = "看板启动 " + snap.Date
	}
	b.appendTimelineLocked(timelineEntry{Label: label, Time: snap.At, Status: "info"})
	b.prevDate = snap.Date
	b.acksToday = 0
	b.lateToday = 0
	b.missedToday = 0
	b.clearsToday = 0
}

//比对班次状态 变化写入时间线
func (b *Board) diffStatusLocked(snap alert.Snapshot) {
	prev := map[string]alert.Status{}
	if b.hasLatest && b.latest.Date == snap.Date {
		for _, a := range b.latest.Alerts {
			prev[a.Manifest.ID()] = a.Status
		}
	}
	for _, a := range snap.Alerts {
		old, seen := prev[a.Manifest.ID()]
		if seen && old == a.Status {
			continue
		}
		if !seen && a.Status == alert.StatusPending {
			continue //新出现的待命班次不计入时间线
		}
		b.appendTimelineLocked(transitionEntry(a, snap.At))
		if a.Status == alert.StatusMissed {
			b.missedToday++
		}
	}
}

//比对承运商确认位 新增确认与撤销写入动作流
func (b *Board) diffAcksLocked(snap alert.Snapshot) {
	type carrierKey struct {
		id   string
		name string
	}
	prev := map[carrierKey]alert.CarrierState{}
	if b.hasLatest && b.latest.Date == snap.Date {
		for _, a := range b.latest.Alerts {
			for _, c := range a.Carriers {
				prev[carrierKey{a.Manifest.ID(), c.Name}] = c
			}
		}
	}
	for _, a := range snap.Alerts {
		for _, c := range a.Carriers {
			old := prev[carrierKey{a.Manifest.ID(), c.Name}]
			switch {
			case c.Acknowledged && !old.Acknowledged:
				b.appendAckLocked(ackEntry{
					ManifestTime: a.Manifest.Time,
					Carrier:      c.Name,
					User:         c.AckUser,
					Action:       "acknowledged",
					Late:         c.Late,
					Reason:       c.Reason,
					Time:         ackClock(c.AckTime, snap.At),
				})
				b.acksToday++
				if c.Late {
					b.lateToday++
				}
			case !c.Acknowledged && old.Acknowledged:
				b.appendAckLocked(ackEntry{
					ManifestTime: a.Manifest.Time,
					Carrier:      c.Name,
					User:         old.AckUser,
					Action:       "cleared",
					Time:         formatClock(snap.At),
				})
				b.clearsToday++
			}
		}
	}
}

//比对静音开关 变化写入静音流与时间线
func (b *Board) diffMuteLocked(snap alert.Snapshot) {
	prevMuted := b.hasLatest && b.latest.Muted
	if snap.Muted == prevMuted {
		return
	}
	ev := muteEntry{Time: snap.At}
	if snap.Muted {
		ev.Action = "muted"
		ev.By = snap.MutedBy
		if snap.Mute.UnmuteAt != nil {
			ev.Until = *snap.Mute.UnmuteAt
		}
		label := "告警已静音"
		if snap.MutedBy != "" {
			label += " " + displayUser(snap.MutedBy)
		}
		b.appendTimelineLocked(timelineEntry{Label: label, Time: snap.At, Status: "warning"})
	} else {
		ev.Action = "unmuted"
		b.appendTimelineLocked(timelineEntry{Label: "静音已解除", Time: snap.At, Status: "info"})
	}
	b.appendMuteLocked(ev)
}

func (b *Board) appendTimelineLocked(ev timelineEntry) {
	b.timeline = append(b.timeline, ev)
	if len(b.timeline) > maxTimelineEvents {
		b.timeline = b.timeline[len(b.timeline)-maxTimelineEvents:]
	}
}

func (b *Board) appendAckLocked(ev ackEntry) {
	b.ackFeed = append(b.ackFeed, ev)
	if len(b.ackFeed) > maxAckEvents {
		b.ackFeed = b.ackFeed[len(b.ackFeed)-maxAckEvents:]
	}
}

func (b *Board) appendMuteLocked(ev muteEntry) {
	b.muteFeed = append(b.muteFeed, ev)
	if len(b.muteFeed) > maxMuteEvents {
		b.muteFeed = b.muteFeed[len(b.muteFeed)-maxMuteEvents:]
	}
}

func (b *Board) timelineLocked() []TimelineEvent {
	out := make([]TimelineEvent, len(b.timeline))
	for i, ev := range b.timeline {
		out[len(out)-1-i] = TimelineEvent{ //最新在前
			Label:  ev.Label,
			Time:   formatClock(ev.Time),
			Status: ev.Status,
		}
	}
	return out
}

func (b *Board) ackFeedLocked() []AckEvent {
	out := make([]AckEvent, len(b.ackFeed))
	for i, ev := range b.ackFeed {
		out[len(out)-1-i] = AckEvent{
			ManifestTime: ev.ManifestTime,
			Carrier:      ev.Carrier,
			User:         ev.User,
			Action:       ev.Action,
			Late:         ev.Late,
			Reason:       ev.Reason,
			Time:         ev.Time,
		}
	}
	return out
}

func (b *Board) muteFeedLocked() []MuteEvent {
	out := make([]MuteEvent, len(b.muteFeed))
	for i, ev := range b.muteFeed {
		out[len(out)-1-i] = MuteEvent{
			Action: ev.Action,
			By:     ev.By,
			Until:  ev.Until,
			Time:   formatClock(ev.Time),
		}
	}
	return out
}

func (b *Board) metricCardsLocked() []MetricCard {
	var total, acked, missed, pending int
	for _, a := range b.latest.Alerts {
		total++
		switch a.Status {
		case alert.StatusAcknowledged:
			acked++
		case alert.StatusMissed:
			missed++
		}
		pending += a.Pending
	}
	return []MetricCard{
		{
			Label: "今日班次",
			Value: strconv.Itoa(total),
			Trend: fmt.Sprintf("已完成 %d", acked),
		},
		{
			Label: "待确认承运商",
			Value: strconv.Itoa(pending),
			Trend: fmt.Sprintf("今日确认 %d", b.acksToday),
			Tone:  toneWhen(pending > 0, "warning"),
		},
		{
			Label: "超时班次",
			Value: strconv.Itoa(missed),
			Trend: fmt.Sprintf("今日累计 %d", b.missedToday),
			Tone:  toneWhen(missed > 0, "danger"),
		},
		{
			Label: "迟到确认",
			Value: strconv.Itoa(b.lateToday),
			Trend: fmt.Sprintf("撤销 %d", b.clearsToday),
			Tone:  toneWhen(b.lateToday > 0, "warning"),
		},
	}
}

func (b *Board) notesLocked() []BoardNote {
	cadence := "常规刷新"
	if b.latest.Cadence == alert.CadenceFast {
		cadence = "快速刷新"
	}
	source := "共享目录读取正常"
	if b.latest.Degraded {
		source = "降级: " + b.latest.DegradedReason
	}
	muteNote := "未静音"
	if b.latest.Muted {
		muteNote = "静音中"
		if b.latest.MutedBy != "" {
			muteNote += " " + displayUser(b.latest.MutedBy)
		}
		if b.latest.Mute.UnmuteAt != nil {
			muteNote += " 至 " + *b.latest.Mute.UnmuteAt
		}
	}
	return []BoardNote{
		{Title: "刷新节奏", Detail: fmt.Sprintf("%s 每 %d 秒", cadence, int(b.latest.Interval.Seconds()))},
		{Title: "数据源", Detail: source},
		{Title: "静音状态", Detail: muteNote},
	}
}

func transitionEntry(a alert.Alert, at time.Time) timelineEntry {
	label := "班次 " + a.Manifest.Time + " "
	status := "info"
	switch a.Status {
	case alert.StatusActive:
		label += "进入告警窗口"
		status = "warning"
	case alert.StatusMissed:
		label += "超时未确认"
		status = "danger"
	case alert.StatusAcknowledged:
		label += "全部承运商已确认"
		status = "success"
	default:
		label += "回到待命"
	}
	return timelineEntry{Label: label, Time: at, Status: status}
}

func storeView(name string, h models.StoreHealth) StoreHealthView {
	tone := "normal"
	switch {
	case h.WriteFailureTotal > 0:
		tone = "danger"
	case h.CorruptFallbackTotal > 0 || h.BackupRecoveredTotal > 0:
		tone = "warn"
	}
	return StoreHealthView{
		Name:             name,
		File:             h.StoreFile,
		CorruptFallbacks: h.CorruptFallbackTotal,
		BackupRecovered:  h.BackupRecoveredTotal,
		WriteFailures:    h.WriteFailureTotal,
		Tone:             tone,
	}
}

//确认动作优先显示记录自带时间戳 解析失败退回快照时间
func ackClock(stamp string, fallback time.Time) string {
	if ts, err := models.ParseStamp(stamp); err == nil {
		return ts.Format("15:04:05")
	}
	return formatClock(fallback)
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	return t.Format("15:04:05")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "--"
	}
	return t.Format(displayTime)
}

func formatCountdown(d time.Duration) string {
	if d <= 0 {
		return "即将开始"
	}
	total := int(d.Seconds())
	hours := total / 3600
	mins := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%d小时%02d分", hours, mins)
	}
	if mins > 0 {
		return fmt.Sprintf("%d分%02d秒", mins, secs)
	}
	return fmt.Sprintf("%d秒", secs)
}

func toneWhen(cond bool, tone string) string {
	if cond {
		return tone
	}
	return ""
}

func displayUser(name string) string {
	return "(" + name + ")"
}
