// 本文件用于计算下一轮巡检间隔
package alert

import "time"

// Cadence 表示巡检节奏档位
type Cadence string

const (
	// CadenceFast 表示快速巡检
	CadenceFast Cadence = "FAST"
	// CadenceNormal 表示常规巡检
	CadenceNormal Cadence = "NORMAL"
)

// Scheduler 依据告警态势决定巡检间隔
type Scheduler struct {
	fast     time.Duration
	normal   time.Duration
	cooldown time.Duration
}

// NewScheduler 构建巡检间隔调度器
func NewScheduler(fast, normal, cooldown time.Duration) *Scheduler {
	if fast <= 0 {
		fast = 10 * time.Second
	}
	if normal <= 0 {
		normal = 30 * time.Second
	}
	if cooldown < 0 {
		cooldown = 0
	}
	return &Scheduler{fast: fast, normal: normal, cooldown: cooldown}
}

// NextInterval 返回下一轮巡检应等待的时长 等待由调用方执行
func (s *Scheduler) NextInterval(alerts []Alert, lastLocalAck, now time.Time) (time.Duration, Cadence) {
	for _, a := range alerts {
		if a.Status == StatusActive || a.Status == StatusMissed {
			return s.fast, CadenceFast
		}
	}
	if !lastLocalAck.IsZero() && now.Sub(lastLocalAck) < s.cooldown {
		// 本机确认后的冷却期内维持快速巡检 便于看板尽快收敛
		return s.fast, CadenceFast
	}
	return s.normal, CadenceNormal
}
