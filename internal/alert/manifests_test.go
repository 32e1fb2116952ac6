// 本文件用于清单配置源的单元测试
package alert

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"manifest-watch/internal/alerterr"
	"manifest-watch/internal/netio"
	"manifest-watch/internal/sharedstore"
)

func newTestSource(t *testing.T) (*Source, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	file, err := sharedstore.NewFile(path)
	if err != nil {
		t.Fatalf("构建共享文件失败: %v", err)
	}
	pool := netio.NewPool(2, 16)
	t.Cleanup(pool.Shutdown)
	source := NewSource(SourceOptions{
		File:        file,
		Pool:        pool,
		FastTTL:     5 * time.Second,
		NetworkTTL:  30 * time.Second,
		ReadTimeout: time.Second,
	})
	return source, path
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
}

func TestSource_EntriesSortedAndCanonical(t *testing.T) {
	source, path := newTestSource(t)
	writeConfig(t, path, `{"manifests":[
		{"time":"16:30","carriers":["中通"]},
		{"time":"8:00","carriers":[" 顺丰 ","","顺丰","圆通"]}
	]}`)

	entries, problems, err := source.Entries(localTime(7, 0, 0))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("合法配置不应有问题: %v", problems)
	}
	if len(entries) != 2 {
		t.Fatalf("期望 2 条班次 实际 %d", len(entries))
	}
	if entries[0].Time != "08:00" || entries[1].Time != "16:30" {
		t.Fatalf("班次应按时刻排序且时刻已规整: %+v", entries)
	}
	if len(entries[0].Carriers) != 2 || entries[0].Carriers[0] != "顺丰" || entries[0].Carriers[1] != "圆通" {
		t.Fatalf("承运商应去空白去重并保持顺序: %v", entries[0].Carriers)
	}
}

func TestSource_InvalidEntriesDoNotBlockOthers(t *testing.T) {
	source, path := newTestSource(t)
	writeConfig(t, path, `{"manifests":[
		{"time":"25:99","carriers":["顺丰"]},
		{"time":"09:00","carriers":["  "]},
		{"time":"10:00","carriers":["圆通"]}
	]}`)

	entries, problems, err := source.Entries(localTime(7, 0, 0))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if len(entries) != 1 || entries[0].Time != "10:00" {
		t.Fatalf("合法条目应继续加载: %+v", entries)
	}
	if len(problems) != 2 {
		t.Fatalf("期望 2 条配置问题 实际 %d", len(problems))
	}
	for _, p := range problems {
		if !errors.Is(p, alerterr.ErrConfigurationInvalid) {
			t.Fatalf("配置问题应归类为配置无效: %v", p)
		}
	}
}

func TestSource_DuplicateTimesMerge(t *testing.T) {
	source, path := newTestSource(t)
	writeConfig(t, path, `{"manifests":[
		{"time":"08:00","carriers":["顺丰","圆通"]},
		{"time":"08:00","carriers":["圆通","中通"]}
	]}`)

	entries, _, err := source.Entries(localTime(7, 0, 0))
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("重复时刻应合并为一条 实际 %d", len(entries))
	}
	want := []string{"顺丰", "圆通", "中通"}
	if len(entries[0].Carriers) != len(want) {
		t.Fatalf("合并后承运商数量不符: %v", entries[0].Carriers)
	}
	for i, name := range want {
		if entries[0].Carriers[i] != name {
			t.Fatalf("合并应保持先出现者在前: %v", entries[0].Carriers)
		}
	}
}

func TestSource_MissingFileYieldsEmptyPlan(t *testing.T) {
	source, _ := newTestSource(t)
	entries, problems, err := source.Entries(localTime(7, 0, 0))
	if err != nil {
		t.Fatalf("缺失配置文件不应报错: %v", err)
	}
	if len(entries) != 0 || len(problems) != 0 {
		t.Fatalf("缺失配置应得到空计划: %+v %+v", entries, problems)
	}
}

func TestSource_ReloadForcesRefetch(t *testing.T) {
	source, path := newTestSource(t)
	writeConfig(t, path, `{"manifests":[{"time":"08:00","carriers":["顺丰"]}]}`)
	now := localTime(7, 0, 0)

	entries, _, err := source.Entries(now)
	if err != nil || len(entries) != 1 {
		t.Fatalf("首次加载失败: %v %+v", err, entries)
	}

	writeConfig(t, path, `{"manifests":[{"time":"08:00","carriers":["顺丰"]},{"time":"16:30","carriers":["中通"]}]}`)
	entries, _, _ = source.Entries(now)
	if len(entries) != 1 {
		t.Fatalf("缓存有效期内应返回旧计划 实际 %d 条", len(entries))
	}

	source.Reload()
	entries, _, err = source.Entries(now)
	if err != nil || len(entries) != 2 {
		t.Fatalf("重载后应读到新计划: %v %+v", err, entries)
	}
}

func TestSource_UnreachableServesLastKnownGood(t *testing.T) {
	source, path := newTestSource(t)
	writeConfig(t, path, `{"manifests":[{"time":"08:00","carriers":["顺丰"]}]}`)

	if _, _, err := source.Entries(localTime(7, 0, 0)); err != nil {
		t.Fatalf("首次加载失败: %v", err)
	}

	// 用同名目录替换文件 模拟共享盘不可读
	if err := os.Remove(path); err != nil {
		t.Fatalf("删除配置文件失败: %v", err)
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("创建同名目录失败: %v", err)
	}

	entries, _, err := source.Entries(localTime(7, 2, 0))
	if err != nil {
		t.Fatalf("降级时应返回最近一次成功结果: %v", err)
	}
	if len(entries) != 1 || entries[0].Time != "08:00" {
		t.Fatalf("降级返回内容不符: %+v", entries)
	}
	if degraded, reason := source.Degraded(); !degraded || reason == "" {
		t.Fatal("配置源应标记为降级")
	}
}
