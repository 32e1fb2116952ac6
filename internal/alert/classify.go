// 本文件用于班次告警状态的纯函数判定
package alert

import (
	"strings"
	"time"

	"manifest-watch/internal/models"
)

// Classify 依据给定时间与确认记录判定单个班次的告警视图
// 判定只依赖入参 不读时钟也不做任何 IO
func Classify(m Manifest, acks map[string]models.AckRecord, now time.Time, window time.Duration) Alert {
	deadline := m.ScheduledAt.Add(window)

	carriers := make([]CarrierState, 0, len(m.Carriers))
	pending := 0
	for _, name := range m.Carriers {
		state := CarrierState{Name: name}
		if rec, ok := lookupCarrier(acks, name); ok {
			state.Acknowledged = true
			state.AckUser = rec.User
			state.AckTime = rec.Timestamp
			state.Reason = rec.Reason
			state.Late = ackAfterDeadline(rec, deadline)
		} else {
			pending++
		}
		carriers = append(carriers, state)
	}

	status := statusByTime(m.ScheduledAt, deadline, now)
	if pending == 0 && len(m.Carriers) > 0 {
		// 全员确认后覆盖时间判定 迟到只是承运商标记不改变班次状态
		status = StatusAcknowledged
	}

	return Alert{
		Manifest: m,
		Status:   status,
		Carriers: carriers,
		Pending:  pending,
		Priority: priorityOf(status),
	}
}

// statusByTime 用于按告警窗口划分班次的时间状态
func statusByTime(scheduledAt, deadline, now time.Time) Status {
	if now.Before(scheduledAt) {
		return StatusPending
	}
	if now.Before(deadline) {
		// 截单时刻本身已属于告警窗口
		return StatusActive
	}
	return StatusMissed
}

// priorityOf 用于映射状态到展示优先级
func priorityOf(status Status) int {
	switch status {
	case StatusMissed:
		return priorityMissed
	case StatusActive:
		return priorityActive
	case StatusAcknowledged:
		return priorityAcknowledged
	default:
		return priorityPending
	}
}

// ackAfterDeadline 用于判断确认时间是否晚于截单窗口
func ackAfterDeadline(rec models.AckRecord, deadline time.Time) bool {
	ts, err := models.ParseStamp(rec.Timestamp)
	if err != nil {
		return false
	}
	return ts.After(deadline)
}

// lookupCarrier 用于按承运商名查找确认记录
func lookupCarrier(acks map[string]models.AckRecord, name string) (models.AckRecord, bool) {
	if rec, ok := acks[name]; ok {
		return rec, true
	}
	rec, ok := acks[strings.TrimSpace(name)]
	return rec, ok
}
