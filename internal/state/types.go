package state

import "manifest-watch/internal/alert"

// 定义看板接口返回给前端的 JSON 结构（DTO）

// MetricCard 表示一个小型指标展示块
type MetricCard struct {
	Label string `json:"label"`
	Value string `json:"value"`
	Trend string `json:"trend"`
	Tone  string `json:"tone,omitempty"`
}

// TimelineEvent 表示状态时间线中的一个事件
type TimelineEvent struct {
	Label  string `json:"label"`
	Time   string `json:"time"`
	Status string `json:"status"` // 状态: info | success | warning | danger
}

// AckEvent 表示一次被观测到的确认动作
type AckEvent struct {
	ManifestTime string `json:"manifestTime"`
	Carrier      string `json:"carrier"`
	User         string `json:"user,omitempty"`
	Action       string `json:"action"` // 动作: acknowledged | cleared
	Late         bool   `json:"late"`
	Reason       string `json:"reason,omitempty"`
	Time         string `json:"time"`
}

// MuteEvent 表示一次静音状态变化
type MuteEvent struct {
	Action string `json:"action"` // 动作: muted | unmuted
	By     string `json:"by,omitempty"`
	Until  string `json:"until,omitempty"`
	Time   string `json:"time"`
}

// BoardNote 表示一个小型说明块
type BoardNote struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// NextManifestView 表示下一班次的倒计时展示
type NextManifestView struct {
	Time      string   `json:"time"`
	Carriers  []string `json:"carriers"`
	Countdown string   `json:"countdown"`
}

// StoreHealthView 表示单个共享文件的健康概览
type StoreHealthView struct {
	Name             string `json:"name"`
	File             string `json:"file"`
	CorruptFallbacks uint64 `json:"corruptFallbacks"`
	BackupRecovered  uint64 `json:"backupRecovered"`
	WriteFailures    uint64 `json:"writeFailures"`
	Tone             string `json:"tone"` // 色调: normal | warn | danger
}

// BoardData 是看板接口需要的聚合数据载体
type BoardData struct {
	Date           string            `json:"date"`
	UpdatedAt      string            `json:"updatedAt"`
	Layout         string            `json:"layout"`
	Emphasized     string            `json:"emphasized,omitempty"`
	Alerts         []alert.Alert     `json:"alerts"`
	MetricCards    []MetricCard      `json:"metricCards"`
	Timeline       []TimelineEvent   `json:"timeline"`
	AckFeed        []AckEvent        `json:"ackFeed"`
	MuteFeed       []MuteEvent       `json:"muteFeed"`
	Notes          []BoardNote       `json:"notes"`
	Next           *NextManifestView `json:"next,omitempty"`
	Muted          bool              `json:"muted"`
	MutedBy        string            `json:"mutedBy,omitempty"`
	MuteUntil      string            `json:"muteUntil,omitempty"`
	RefreshSeconds int               `json:"refreshSeconds"`
	Cadence        string            `json:"cadence"`
	Degraded       bool              `json:"degraded"`
	DegradedReason string            `json:"degradedReason,omitempty"`
	ConfigProblems []string          `json:"configProblems,omitempty"`
	Stores         []StoreHealthView `json:"stores,omitempty"`
}
