// 本文件用于定义告警相关的数据结构
// 文件职责：实现当前模块的核心业务逻辑与数据流转
// 关键路径：入口参数先校验再执行业务处理 最后返回统一结果
// 边界与容错：异常场景显式返回错误 由上层决定重试或降级

package alert

import (
	"fmt"
	"time"

	"manifest-watch/internal/models"
)

// Status 表示班次告警状态
type Status string

const (
	// StatusPending 表示未到截单时间
	StatusPending Status = "PENDING"
	// StatusActive 表示处于截单告警窗口内
	StatusActive Status = "ACTIVE"
	// StatusMissed 表示已超窗且仍有承运商未确认
	StatusMissed Status = "MISSED"
	// StatusAcknowledged 表示全部承运商已确认
	StatusAcknowledged Status = "ACKNOWLEDGED"
)

// 状态优先级 数值越大展示越靠前
const (
	priorityMissed       = 1000
	priorityActive       = 500
	priorityAcknowledged = 100
	priorityPending      = 50
)

// LayoutMode 表示看板布局模式
type LayoutMode string

const (
	// LayoutGrid 表示多班次网格布局
	LayoutGrid LayoutMode = "GRID"
	// LayoutSingleEmphasis 表示单班次强调布局
	LayoutSingleEmphasis LayoutMode = "SINGLE_EMPHASIS"
)

// Manifest 表示某一天的一个截单班次
type Manifest struct {
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	Carriers    []string  `json:"carriers"`
	ScheduledAt time.Time `json:"-"`
}

// NewManifest 构建班次并解析截单时刻
func NewManifest(date, clock string, carriers []string) (Manifest, error) {
	scheduledAt, err := time.ParseInLocation(models.DateLayout+" "+models.ClockLayout, date+" "+clock, time.Local)
	if err != nil {
		return Manifest{}, fmt.Errorf("截单时刻无效: %s %s", date, clock)
	}
	return Manifest{
		Date:        date,
		Time:        clock,
		Carriers:    append([]string(nil), carriers...),
		ScheduledAt: scheduledAt,
	}, nil
}

// ID 返回班次在当天内的唯一标识
func (m Manifest) ID() string {
	return m.Date + " " + m.Time
}

// CarrierState 表示班次内单个承运商的确认视图
type CarrierState struct {
	Name         string `json:"name"`
	Acknowledged bool   `json:"acknowledged"`
	AckUser      string `json:"ackUser,omitempty"`
	AckTime      string `json:"ackTime,omitempty"`
	Reason       string `json:"reason,omitempty"`
	Late         bool   `json:"late"`
}

// Alert 表示单个班次的完整告警视图
type Alert struct {
	Manifest Manifest       `json:"manifest"`
	Status   Status         `json:"status"`
	Carriers []CarrierState `json:"carriers"`
	Pending  int            `json:"pending"`
	Priority int            `json:"priority"`
}

// LayoutState 表示看板布局决策结果
type LayoutState struct {
	Mode       LayoutMode `json:"mode"`
	Emphasized string     `json:"emphasized,omitempty"`
}

// NextManifest 表示下一个未到点班次的倒计时信息
type NextManifest struct {
	Time      string        `json:"time"`
	Carriers  []string      `json:"carriers"`
	Countdown time.Duration `json:"countdown"`
}

// Snapshot 表示一次巡检产出的只读状态快照
type Snapshot struct {
	Date           string            `json:"date"`
	At             time.Time         `json:"at"`
	Alerts         []Alert           `json:"alerts"`
	Layout         LayoutState       `json:"layout"`
	Muted          bool              `json:"muted"`
	MutedBy        string            `json:"mutedBy,omitempty"`
	Mute           models.MuteRecord `json:"mute"`
	Next           *NextManifest     `json:"next,omitempty"`
	Interval       time.Duration     `json:"interval"`
	Cadence        Cadence           `json:"cadence"`
	Degraded       bool              `json:"degraded"`
	DegradedReason string            `json:"degradedReason,omitempty"`
	ConfigProblems []string          `json:"configProblems,omitempty"`
}
