// 本文件用于共享目录下受跟踪记录文件的事件过滤
package pathutil

import (
	"path/filepath"
	"strings"
)

// TrackedSet 用于判断目录事件是否命中受跟踪的记录文件
type TrackedSet struct {
	names map[string]struct{}
}

// NewTrackedSet 构造受跟踪文件名集合 忽略空白项 全空时返回 nil
func NewTrackedSet(names ...string) *TrackedSet {
	set := make(map[string]struct{})
	for _, name := range names {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		base := filepath.Base(filepath.Clean(trimmed))
		if base == "" || base == "." {
			continue
		}
		set[normalizeNameKey(base)] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return &TrackedSet{names: set}
}

// Matches 判断事件路径是否为受跟踪的记录文件 派生产物不计入
func (s *TrackedSet) Matches(path string) bool {
	if s == nil || path == "" {
		return false
	}
	base := filepath.Base(filepath.Clean(path))
	if base == "" || base == "." {
		return false
	}
	if IsDerivedArtifact(base) {
		return false
	}
	_, ok := s.names[normalizeNameKey(base)]
	return ok
}
