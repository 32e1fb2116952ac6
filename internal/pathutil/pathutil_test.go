// 本文件用于路径派生工具的单元测试
package pathutil

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestBackupPath(t *testing.T) {
	got := BackupPath(filepath.Join("share", "acknowledgments.json"))
	want := filepath.Join("share", "acknowledgments.json.bak")
	if got != want {
		t.Fatalf("备份路径不符合预期: %q（期望 %q）", got, want)
	}
}

func TestCorruptBackupPath_UsesUTCNano(t *testing.T) {
	at := time.Date(2026, 2, 14, 8, 0, 0, 123456789, time.UTC)
	got := CorruptBackupPath("share/mute_status.json", at)
	if !strings.HasPrefix(got, "share/mute_status.json.corrupt-") {
		t.Fatalf("损坏转存路径前缀不符合预期: %q", got)
	}
	if !strings.HasSuffix(got, ".bak") {
		t.Fatalf("损坏转存路径应以 .bak 结尾: %q", got)
	}
	again := CorruptBackupPath("share/mute_status.json", at.Add(time.Nanosecond))
	if got == again {
		t.Fatalf("不同时间戳应生成不同路径: %q", got)
	}
}

func TestDatedRecordPath(t *testing.T) {
	got := DatedRecordPath("share", "acknowledgments.json", "2026-02-14")
	want := filepath.Join("share", "acknowledgments-2026-02-14.json")
	if got != want {
		t.Fatalf("归档路径不符合预期: %q（期望 %q）", got, want)
	}
}

func TestDatedRecordPath_NoExtension(t *testing.T) {
	got := DatedRecordPath("share", "acklog", "2026-02-14")
	want := filepath.Join("share", "acklog-2026-02-14")
	if got != want {
		t.Fatalf("归档路径不符合预期: %q（期望 %q）", got, want)
	}
}

func TestIsDerivedArtifact(t *testing.T) {
	derived := []string{
		"acknowledgments.json.bak",
		"mute_status.json.corrupt-20260214T080000.000000000Z.bak",
		"acknowledgments.json.tmp-384729834",
		filepath.Join("share", "config.json.bak"),
	}
	for _, name := range derived {
		if !IsDerivedArtifact(name) {
			t.Fatalf("期望识别为派生产物: %q", name)
		}
	}

	plain := []string{
		"acknowledgments.json",
		"mute_status.json",
		"config.json",
		"acknowledgments-2026-02-14.json",
	}
	for _, name := range plain {
		if IsDerivedArtifact(name) {
			t.Fatalf("不应识别为派生产物: %q", name)
		}
	}
}

func TestNormalizeShareDir(t *testing.T) {
	got := NormalizeShareDir("  share/data/ ")
	want := filepath.Clean("share/data")
	if got != want {
		t.Fatalf("目录清理结果不符合预期: %q（期望 %q）", got, want)
	}
	if NormalizeShareDir("   ") != "" {
		t.Fatalf("空白输入应返回空字符串")
	}
}
