// 本文件用于承运商确认记录的共享存储
package ackstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"manifest-watch/internal/alerterr"
	"manifest-watch/internal/models"
	"manifest-watch/internal/sharedstore"
)

// Key 唯一定位一条确认记录
type Key struct {
	Date         string
	ManifestTime string
	Carrier      string
}

// AckStats 表示某日确认记录的统计
type AckStats struct {
	Date       string         `json:"date"`
	Total      int            `json:"total"`
	Late       int            `json:"late"`
	ByUser     map[string]int `json:"byUser"`
	ByManifest map[string]int `json:"byManifest"`
}

// Store 管理共享确认记录文件 内存镜像按修改时间标记增量刷新
type Store struct {
	file *sharedstore.File

	mu         sync.Mutex
	records    []models.AckRecord
	loaded     bool
	loadedMark time.Time
}

// New 创建确认记录存储
func New(file *sharedstore.File) *Store {
	return &Store{file: file}
}

// Refresh 在文件修改标记变化时重新加载 供每轮轮询开始时调用
func (s *Store) Refresh() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(false)
}

// ForDate 返回某日的确认记录副本
func (s *Store) ForDate(date string) []models.AckRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AckRecord, 0, 8)
	for _, rec := range s.records {
		if rec.Date == date {
			out = append(out, rec)
		}
	}
	return out
}

// All 返回全部确认记录副本
func (s *Store) All() []models.AckRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AckRecord{}, s.records...)
}

// Lookup 查找一条确认记录
func (s *Store) Lookup(key Key) (models.AckRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexOfLocked(key); idx >= 0 {
		return s.records[idx], true
	}
	return models.AckRecord{}, false
}

// Acknowledge 写入一条确认 重复确认直接报错 编辑模式保留原时间戳并追加原因历史
func (s *Store) Acknowledge(now time.Time, key Key, user, reason string, edit bool) (models.AckRecord, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return models.AckRecord{}, fmt.Errorf("确认人不能为空")
	}
	if key.Date == "" || key.ManifestTime == "" || strings.TrimSpace(key.Carrier) == "" {
		return models.AckRecord{}, fmt.Errorf("确认记录键不完整: %+v", key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// 写前强制重读 尽量基于其他进程的最新记录做重复判断
	if err := s.refreshLocked(true); err != nil {
		return models.AckRecord{}, err
	}

	idx := s.indexOfLocked(key)
	if idx >= 0 && !edit {
		return models.AckRecord{}, fmt.Errorf("%w: 日期=%s 班次=%s 承运商=%s",
			alerterr.ErrAlreadyAcknowledged, key.Date, key.ManifestTime, key.Carrier)
	}

	prev := append([]models.AckRecord{}, s.records...)
	var record models.AckRecord
	if idx >= 0 {
		record = s.records[idx]
		record.ReasonHistory = append(record.ReasonHistory, models.ReasonEdit{
			Reason:    reason,
			Timestamp: models.FormatStamp(now),
			User:      user,
		})
		record.Reason = reason
		s.records[idx] = record
	} else {
		record = models.AckRecord{
			Date:         key.Date,
			ManifestTime: key.ManifestTime,
			Carrier:      strings.TrimSpace(key.Carrier),
			User:         user,
			Reason:       reason,
			Timestamp:    models.FormatStamp(now),
		}
		s.records = append(s.records, record)
	}

	if err := s.saveLocked(); err != nil {
		s.records = prev
		return models.AckRecord{}, err
	}
	return record, nil
}

// AcknowledgeAll 批量确认一个班次下尚未确认的承运商 已确认的跳过不算错误
func (s *Store) AcknowledgeAll(now time.Time, date, manifestTime string, carriers []string, user, reason string) ([]models.AckRecord, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fmt.Errorf("确认人不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(true); err != nil {
		return nil, err
	}

	prev := append([]models.AckRecord{}, s.records...)
	created := make([]models.AckRecord, 0, len(carriers))
	for _, carrier := range carriers {
		carrier = strings.TrimSpace(carrier)
		if carrier == "" {
			continue
		}
		if s.indexOfLocked(Key{Date: date, ManifestTime: manifestTime, Carrier: carrier}) >= 0 {
			continue
		}
		record := models.AckRecord{
			Date:         date,
			ManifestTime: manifestTime,
			Carrier:      carrier,
			User:         user,
			Reason:       reason,
			Timestamp:    models.FormatStamp(now),
		}
		s.records = append(s.records, record)
		created = append(created, record)
	}
	if len(created) == 0 {
		return created, nil
	}

	if err := s.saveLocked(); err != nil {
		s.records = prev
		return nil, err
	}
	return created, nil
}

// Clear 删除一条确认记录 返回是否确有删除
func (s *Store) Clear(key Key) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(true); err != nil {
		return false, err
	}
	idx := s.indexOfLocked(key)
	if idx < 0 {
		return false, nil
	}

	prev := append([]models.AckRecord{}, s.records...)
	s.records = append(s.records[:idx], s.records[idx+1:]...)
	if err := s.saveLocked(); err != nil {
		s.records = prev
		return false, err
	}
	return true, nil
}

// ClearManifest 删除一个班次当日的全部确认记录 返回删除条数
func (s *Store) ClearManifest(date, manifestTime string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(true); err != nil {
		return 0, err
	}

	prev := append([]models.AckRecord{}, s.records...)
	kept := s.records[:0:0]
	removed := 0
	for _, rec := range s.records {
		if rec.Date == date && rec.ManifestTime == manifestTime {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	if removed == 0 {
		return 0, nil
	}
	s.records = kept
	if err := s.saveLocked(); err != nil {
		s.records = prev
		return 0, err
	}
	return removed, nil
}

// Stats 统计某日确认情况 迟确认按班次时间加告警窗口判定
func (s *Store) Stats(date string, window time.Duration) AckStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := AckStats{
		Date:       date,
		ByUser:     make(map[string]int),
		ByManifest: make(map[string]int),
	}
	for _, rec := range s.records {
		if rec.Date != date {
			continue
		}
		stats.Total++
		stats.ByUser[rec.User]++
		stats.ByManifest[rec.ManifestTime]++
		if isLate(rec, window) {
			stats.Late++
		}
	}
	return stats
}

// OlderThan 返回早于给定日期的记录 按日期分组 不修改共享文件
func (s *Store) OlderThan(date string) map[string][]models.AckRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.refreshLocked(false)

	older := make(map[string][]models.AckRecord)
	for _, rec := range s.records {
		// ISO 日期字符串按字典序即时间序
		if rec.Date < date {
			older[rec.Date] = append(older[rec.Date], rec)
		}
	}
	return older
}

// ArchiveBefore 摘出早于给定日期的记录并保存剩余部分 返回按日期分组的摘出记录
func (s *Store) ArchiveBefore(date string) (map[string][]models.AckRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.refreshLocked(true); err != nil {
		return nil, err
	}

	moved := make(map[string][]models.AckRecord)
	kept := s.records[:0:0]
	for _, rec := range s.records {
		// ISO 日期字符串按字典序即时间序
		if rec.Date < date {
			moved[rec.Date] = append(moved[rec.Date], rec)
			continue
		}
		kept = append(kept, rec)
	}
	if len(moved) == 0 {
		return moved, nil
	}

	prev := s.records
	s.records = kept
	if err := s.saveLocked(); err != nil {
		s.records = prev
		return nil, err
	}
	return moved, nil
}

// LastModifiedAt 返回共享文件的修改时间标记
func (s *Store) LastModifiedAt() time.Time {
	mark, err := s.file.LastModified()
	if err != nil {
		return time.Time{}
	}
	return mark
}

// Health 返回底层存储健康指标
func (s *Store) Health() models.StoreHealth {
	return s.file.Health()
}

func (s *Store) refreshLocked(force bool) error {
	mark, err := s.file.LastModified()
	if err != nil {
		return err
	}
	if !force && s.loaded && mark.Equal(s.loadedMark) {
		return nil
	}

	parsed := []models.AckRecord{}
	err = s.file.Load(func(data []byte) error {
		var records []models.AckRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return err
		}
		parsed = records
		return nil
	})
	if err != nil {
		return err
	}
	s.records = parsed
	s.loaded = true
	s.loadedMark = mark
	return nil
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(append([]models.AckRecord{}, s.records...), "", "  ")
	if err != nil {
		return fmt.Errorf("序列化确认记录失败: %w", err)
	}
	if err := s.file.Save(data); err != nil {
		return err
	}
	if mark, statErr := s.file.LastModified(); statErr == nil {
		s.loadedMark = mark
	}
	return nil
}

func (s *Store) indexOfLocked(key Key) int {
	carrier := strings.TrimSpace(key.Carrier)
	for i, rec := range s.records {
		if rec.Date == key.Date && rec.ManifestTime == key.ManifestTime && rec.Carrier == carrier {
			return i
		}
	}
	return -1
}

// isLate 判断确认是否晚于班次时间加告警窗口
func isLate(rec models.AckRecord, window time.Duration) bool {
	ts, err := models.ParseStamp(rec.Timestamp)
	if err != nil {
		return false
	}
	deadline, err := time.ParseInLocation(
		models.DateLayout+" "+models.ClockLayout, rec.Date+" "+rec.ManifestTime, time.Local)
	if err != nil {
		return false
	}
	return ts.After(deadline.Add(window))
}
