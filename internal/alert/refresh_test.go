// 本文件用于巡检间隔调度的单元测试
package alert

import (
	"testing"
	"time"
)

func TestNextInterval_FastOnActiveOrMissed(t *testing.T) {
	s := NewScheduler(10*time.Second, 30*time.Second, time.Minute)
	now := localTime(8, 5, 0)

	for _, status := range []Status{StatusActive, StatusMissed} {
		alerts := []Alert{statusAlert(t, "08:00", status), statusAlert(t, "12:00", StatusPending)}
		interval, cadence := s.NextInterval(alerts, time.Time{}, now)
		if cadence != CadenceFast || interval != 10*time.Second {
			t.Fatalf("存在 %s 班次期望快速巡检 实际 %s %s", status, cadence, interval)
		}
	}
}

func TestNextInterval_NormalWhenQuiet(t *testing.T) {
	s := NewScheduler(10*time.Second, 30*time.Second, time.Minute)
	alerts := []Alert{
		statusAlert(t, "08:00", StatusAcknowledged),
		statusAlert(t, "12:00", StatusPending),
	}

	interval, cadence := s.NextInterval(alerts, time.Time{}, localTime(9, 0, 0))
	if cadence != CadenceNormal || interval != 30*time.Second {
		t.Fatalf("无活跃班次期望常规巡检 实际 %s %s", cadence, interval)
	}
}

func TestNextInterval_AckCooldown(t *testing.T) {
	s := NewScheduler(10*time.Second, 30*time.Second, time.Minute)
	alerts := []Alert{statusAlert(t, "12:00", StatusPending)}
	now := localTime(9, 0, 0)

	if _, cadence := s.NextInterval(alerts, now.Add(-30*time.Second), now); cadence != CadenceFast {
		t.Fatal("确认冷却期内期望快速巡检")
	}
	if _, cadence := s.NextInterval(alerts, now.Add(-90*time.Second), now); cadence != CadenceNormal {
		t.Fatal("冷却期过后期望常规巡检")
	}
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(0, 0, -time.Second)
	interval, cadence := s.NextInterval(nil, time.Time{}, localTime(9, 0, 0))
	if cadence != CadenceNormal || interval != 30*time.Second {
		t.Fatalf("默认常规间隔应为 30s 实际 %s", interval)
	}
	interval, _ = s.NextInterval([]Alert{statusAlert(t, "08:00", StatusActive)}, time.Time{}, localTime(8, 5, 0))
	if interval != 10*time.Second {
		t.Fatalf("默认快速间隔应为 10s 实际 %s", interval)
	}
}
