// 本文件用于受跟踪文件过滤器的单元测试
package pathutil

import (
	"path/filepath"
	"testing"
)

func TestNewTrackedSet_EmptyInput(t *testing.T) {
	if NewTrackedSet() != nil {
		t.Fatalf("空输入应返回 nil")
	}
	if NewTrackedSet("", "  ") != nil {
		t.Fatalf("全空白输入应返回 nil")
	}
}

func TestTrackedSet_MatchesByBaseName(t *testing.T) {
	set := NewTrackedSet("acknowledgments.json", "mute_status.json", "config.json")
	if set == nil {
		t.Fatalf("构造受跟踪集合失败")
	}

	hits := []string{
		filepath.Join("share", "acknowledgments.json"),
		filepath.Join("deep", "nested", "mute_status.json"),
		"config.json",
	}
	for _, path := range hits {
		if !set.Matches(path) {
			t.Fatalf("期望命中受跟踪文件: %q", path)
		}
	}

	misses := []string{
		filepath.Join("share", "other.json"),
		filepath.Join("share", "acknowledgments-2026-02-14.json"),
		"",
	}
	for _, path := range misses {
		if set.Matches(path) {
			t.Fatalf("不应命中受跟踪文件: %q", path)
		}
	}
}

func TestTrackedSet_SkipsDerivedArtifacts(t *testing.T) {
	set := NewTrackedSet("acknowledgments.json")
	derived := []string{
		filepath.Join("share", "acknowledgments.json.bak"),
		filepath.Join("share", "acknowledgments.json.tmp-123456"),
		filepath.Join("share", "acknowledgments.json.corrupt-20260214T080000.000000000Z.bak"),
	}
	for _, path := range derived {
		if set.Matches(path) {
			t.Fatalf("派生产物不应触发命中: %q", path)
		}
	}
}

func TestTrackedSet_NilReceiver(t *testing.T) {
	var set *TrackedSet
	if set.Matches("acknowledgments.json") {
		t.Fatalf("nil 集合不应命中任何路径")
	}
}
