// 本文件用于看板布局决策与告警排序
package alert

import "sort"

// Decide 依据活跃与超窗班次数量决定看板布局
func Decide(alerts []Alert) LayoutState {
	var active, missed int
	var emphasized string
	for _, a := range alerts {
		switch a.Status {
		case StatusActive:
			active++
			emphasized = a.Manifest.ID()
		case StatusMissed:
			missed++
		}
	}
	if active == 1 && missed == 0 {
		return LayoutState{Mode: LayoutSingleEmphasis, Emphasized: emphasized}
	}
	return LayoutState{Mode: LayoutGrid}
}

// Prioritize 返回按优先级降序排列的告警副本 同级按截单时刻升序
func Prioritize(alerts []Alert) []Alert {
	out := append([]Alert(nil), alerts...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Manifest.ScheduledAt.Before(out[j].Manifest.ScheduledAt)
	})
	return out
}
