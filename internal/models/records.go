// 本文件用于定义跨进程共享文件的记录结构
package models

import (
	"time"
)

// StampLayout 共享文件中的时间戳格式 与历史数据保持字节兼容
const StampLayout = "2006-01-02T15:04:05"

// DateLayout 共享文件中的日期格式
const DateLayout = "2006-01-02"

// ClockLayout 清单时刻格式
const ClockLayout = "15:04"

// AckRecord 表示共享确认文件中的一条确认记录
type AckRecord struct {
	Date          string       `json:"date"`
	ManifestTime  string       `json:"manifest_time"`
	Carrier       string       `json:"carrier"`
	User          string       `json:"user"`
	Reason        string       `json:"reason,omitempty"`
	Timestamp     string       `json:"timestamp"`
	ReasonHistory []ReasonEdit `json:"reason_history,omitempty"`
}

// ReasonEdit 表示确认原因的一次追加修订
type ReasonEdit struct {
	Reason    string `json:"reason"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
}

// MuteRecord 表示共享静音文件的完整内容
type MuteRecord struct {
	IsMuted     bool    `json:"is_muted"`
	MutedAt     string  `json:"muted_at,omitempty"`
	MutedBy     string  `json:"muted_by,omitempty"`
	UnmuteAt    *string `json:"unmute_at"`
	LastUpdated string  `json:"last_updated,omitempty"`
}

// ManifestConfig 表示共享清单配置文件
type ManifestConfig struct {
	Manifests []ManifestEntry `json:"manifests"`
}

// ManifestEntry 表示清单配置中的一条计划
type ManifestEntry struct {
	Time     string   `json:"time"`
	Carriers []string `json:"carriers"`
}

// FormatStamp 按共享文件格式输出时间戳
func FormatStamp(t time.Time) string {
	return t.Format(StampLayout)
}

// ParseStamp 解析共享文件中的时间戳
func ParseStamp(raw string) (time.Time, error) {
	return time.ParseInLocation(StampLayout, raw, time.Local)
}

// FormatDate 按共享文件格式输出日期
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
