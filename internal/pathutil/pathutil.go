// 本文件用于共享记录文件的路径派生
package pathutil

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// BackupPath 返回记录文件对应的备份文件路径
func BackupPath(path string) string {
	return path + ".bak"
}

// CorruptBackupPath 返回损坏记录的转存路径 带 UTC 时间戳避免覆盖
func CorruptBackupPath(path string, at time.Time) string {
	timestamp := at.UTC().Format("20060102T150405.000000000Z")
	return fmt.Sprintf("%s.corrupt-%s.bak", path, timestamp)
}

// DatedRecordPath 返回某日归档记录的路径 如 acknowledgments-2026-02-14.json
func DatedRecordPath(dir, base, date string) string {
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, fmt.Sprintf("%s-%s%s", stem, date, ext))
}

// IsDerivedArtifact 判断文件名是否为派生产物 包括备份 损坏转存与原子写临时文件
func IsDerivedArtifact(name string) bool {
	base := filepath.Base(name)
	if strings.HasSuffix(base, ".bak") {
		return true
	}
	// 原子写使用 CreateTemp(dir, base+".tmp-*") 生成的中间文件
	if strings.Contains(base, ".tmp-") {
		return true
	}
	return false
}

// NormalizeShareDir 清理共享目录路径并去除结尾分隔符
func NormalizeShareDir(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	return filepath.Clean(trimmed)
}

// normalizeNameKey 统一文件名比较口径 Windows 共享目录不区分大小写
func normalizeNameKey(name string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(name)
	}
	return name
}
