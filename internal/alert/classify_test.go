// 本文件用于班次状态判定的单元测试
package alert

import (
	"testing"
	"time"

	"manifest-watch/internal/models"
)

const testWindow = 30 * time.Minute

func localTime(h, m, s int) time.Time {
	return time.Date(2026, 2, 14, h, m, s, 0, time.Local)
}

func testManifest(t *testing.T, clock string, carriers ...string) Manifest {
	t.Helper()
	m, err := NewManifest("2026-02-14", clock, carriers)
	if err != nil {
		t.Fatalf("构建班次失败: %v", err)
	}
	return m
}

func TestNewManifest_InvalidClock(t *testing.T) {
	if _, err := NewManifest("2026-02-14", "25:99", []string{"顺丰"}); err == nil {
		t.Fatal("非法截单时刻应该返回错误")
	}
}

func TestClassify_TimeWindows(t *testing.T) {
	m := testManifest(t, "08:00", "顺丰", "圆通")
	cases := []struct {
		name string
		now  time.Time
		want Status
	}{
		{"截单前一分钟", localTime(7, 59, 0), StatusPending},
		{"截单时刻", localTime(8, 0, 0), StatusActive},
		{"窗口最后一秒", localTime(8, 29, 59), StatusActive},
		{"窗口到期", localTime(8, 30, 0), StatusMissed},
		{"窗口到期之后", localTime(9, 15, 0), StatusMissed},
	}
	for _, tc := range cases {
		got := Classify(m, nil, tc.now, testWindow)
		if got.Status != tc.want {
			t.Fatalf("%s: 期望状态 %s 实际 %s", tc.name, tc.want, got.Status)
		}
		if got.Pending != 2 {
			t.Fatalf("%s: 期望未确认数 2 实际 %d", tc.name, got.Pending)
		}
	}
}

func TestClassify_AllAckedOverridesTime(t *testing.T) {
	m := testManifest(t, "08:00", "顺丰", "圆通")
	acks := map[string]models.AckRecord{
		"顺丰": {Carrier: "顺丰", User: "张三", Timestamp: "2026-02-14T07:50:00"},
		"圆通": {Carrier: "圆通", User: "李四", Timestamp: "2026-02-14T08:40:00"},
	}
	for _, now := range []time.Time{localTime(7, 59, 0), localTime(8, 10, 0), localTime(9, 0, 0)} {
		got := Classify(m, acks, now, testWindow)
		if got.Status != StatusAcknowledged {
			t.Fatalf("全员确认时 %s 期望 ACKNOWLEDGED 实际 %s", now.Format("15:04"), got.Status)
		}
		if got.Pending != 0 {
			t.Fatalf("全员确认时未确认数应为 0 实际 %d", got.Pending)
		}
	}
}

func TestClassify_PartialAckKeepsTimeStatus(t *testing.T) {
	m := testManifest(t, "08:00", "顺丰", "圆通", "中通")
	acks := map[string]models.AckRecord{
		"顺丰": {Carrier: "顺丰", User: "张三", Timestamp: "2026-02-14T08:05:00", Reason: "到齐"},
	}

	got := Classify(m, acks, localTime(9, 0, 0), testWindow)
	if got.Status != StatusMissed {
		t.Fatalf("部分确认超窗后期望 MISSED 实际 %s", got.Status)
	}
	if got.Pending != 2 {
		t.Fatalf("期望未确认数 2 实际 %d", got.Pending)
	}
	if len(got.Carriers) != 3 {
		t.Fatalf("期望承运商视图 3 条 实际 %d", len(got.Carriers))
	}
	first := got.Carriers[0]
	if !first.Acknowledged || first.AckUser != "张三" || first.Reason != "到齐" {
		t.Fatalf("已确认承运商视图不完整: %+v", first)
	}
	if got.Carriers[1].Acknowledged || got.Carriers[2].Acknowledged {
		t.Fatal("未确认承运商不应标记为已确认")
	}
}

func TestClassify_LateFlag(t *testing.T) {
	m := testManifest(t, "08:00", "顺丰")
	cases := []struct {
		name  string
		stamp string
		late  bool
	}{
		{"窗口内确认", "2026-02-14T08:29:59", false},
		{"恰好到期确认", "2026-02-14T08:30:00", false},
		{"超窗确认", "2026-02-14T08:30:01", true},
	}
	for _, tc := range cases {
		acks := map[string]models.AckRecord{
			"顺丰": {Carrier: "顺丰", User: "张三", Timestamp: tc.stamp},
		}
		got := Classify(m, acks, localTime(10, 0, 0), testWindow)
		if got.Status != StatusAcknowledged {
			t.Fatalf("%s: 期望 ACKNOWLEDGED 实际 %s", tc.name, got.Status)
		}
		if got.Carriers[0].Late != tc.late {
			t.Fatalf("%s: 期望迟到标记 %v 实际 %v", tc.name, tc.late, got.Carriers[0].Late)
		}
	}
}

func TestClassify_PriorityByStatus(t *testing.T) {
	m := testManifest(t, "08:00", "顺丰")
	cases := []struct {
		now  time.Time
		want int
	}{
		{localTime(7, 0, 0), priorityPending},
		{localTime(8, 5, 0), priorityActive},
		{localTime(9, 0, 0), priorityMissed},
	}
	for _, tc := range cases {
		if got := Classify(m, nil, tc.now, testWindow); got.Priority != tc.want {
			t.Fatalf("期望优先级 %d 实际 %d", tc.want, got.Priority)
		}
	}
	acks := map[string]models.AckRecord{"顺丰": {Carrier: "顺丰", User: "张三", Timestamp: "2026-02-14T08:01:00"}}
	if got := Classify(m, acks, localTime(8, 5, 0), testWindow); got.Priority != priorityAcknowledged {
		t.Fatalf("已确认班次期望优先级 %d 实际 %d", priorityAcknowledged, got.Priority)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	m := testManifest(t, "08:00", "顺丰", "圆通")
	acks := map[string]models.AckRecord{
		"顺丰": {Carrier: "顺丰", User: "张三", Timestamp: "2026-02-14T08:05:00"},
	}
	now := localTime(8, 10, 0)

	first := Classify(m, acks, now, testWindow)
	second := Classify(m, acks, now, testWindow)
	if first.Status != second.Status || first.Pending != second.Pending || len(first.Carriers) != len(second.Carriers) {
		t.Fatal("相同输入应产生相同判定")
	}
}
