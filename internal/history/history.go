// 本文件用于本地历史归档 跨天结转的确认记录写入 SQLite 供查询与统计
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"manifest-watch/internal/models"
)

const (
	defaultRecentDays = 7
	maxRecentDays     = 90
)

// Record 表示一条已归档的确认记录
type Record struct {
	Date         string `json:"date"`
	ManifestTime string `json:"manifest_time"`
	Carrier      string `json:"carrier"`
	User         string `json:"user"`
	Reason       string `json:"reason,omitempty"`
	Timestamp    string `json:"timestamp"`
	Late         bool   `json:"late"`
}

// DayStats 表示单日确认汇总
type DayStats struct {
	Date      string `json:"date"`
	AckTotal  int    `json:"ackTotal"`
	LateTotal int    `json:"lateTotal"`
	Manifests int    `json:"manifests"`
}

type Service struct {
	db     *sql.DB
	dbPath string
}

// NewService 统一负责历史库初始化
// 目录创建 打开数据库 设置 WAL 和迁移收敛在一个入口
func NewService(dataDir string) (*Service, error) {
	root := strings.TrimSpace(dataDir)
	if root == "" {
		root = "history"
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("创建历史目录失败: %w", err)
	}
	dbPath := filepath.Join(root, "history.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开历史库失败: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("设置历史库 WAL 失败: %w", err)
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Service{db: db, dbPath: dbPath}, nil
}

func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Service) DBPath() string {
	if s == nil {
		return ""
	}
	return s.dbPath
}

// RecordDay 将某日的确认记录写入历史库
// 唯一键 (date, manifest_time, carrier) 配合 INSERT OR IGNORE 保证重复归档幂等
func (s *Service) RecordDay(date string, records []models.AckRecord, window time.Duration) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("历史库未初始化")
	}
	day := strings.TrimSpace(date)
	if day == "" {
		return 0, fmt.Errorf("日期不能为空")
	}
	if len(records) == 0 {
		return 0, nil
	}
	recordedAt := models.FormatStamp(time.Now())

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer rollbackTx(tx)

	inserted := 0
	for _, rec := range records {
		res, err := tx.Exec(`
			INSERT OR IGNORE INTO ack_history (
				date, manifest_time, carrier, user, reason, ack_timestamp, late, recorded_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, day, rec.ManifestTime, rec.Carrier, rec.User, rec.Reason, rec.Timestamp,
			boolToInt(lateAck(day, rec, window)), recordedAt)
		if err != nil {
			return 0, fmt.Errorf("写入历史记录失败: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// QueryByDate 返回指定日期的归档记录 按班次时间与承运商排序
func (s *Service) QueryByDate(date string) ([]Record, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("历史库未初始化")
	}
	day := strings.TrimSpace(date)
	if day == "" {
		return nil, fmt.Errorf("日期不能为空")
	}
	rows, err := s.db.Query(`
		SELECT date, manifest_time, carrier, user, reason, ack_timestamp, late
		FROM ack_history
		WHERE date = ?
		ORDER BY manifest_time ASC, carrier ASC
	`, day)
	if err != nil {
		return nil, fmt.Errorf("查询历史记录失败: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var late int
		if err := rows.Scan(&rec.Date, &rec.ManifestTime, &rec.Carrier, &rec.User,
			&rec.Reason, &rec.Timestamp, &late); err != nil {
			return nil, err
		}
		rec.Late = late != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentDays 返回最近若干天的确认汇总 按日期倒序
func (s *Service) RecentDays(limit int) ([]DayStats, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("历史库未初始化")
	}
	if limit <= 0 {
		limit = defaultRecentDays
	}
	if limit > maxRecentDays {
		limit = maxRecentDays
	}
	rows, err := s.db.Query(`
		SELECT date, COUNT(1), SUM(late), COUNT(DISTINCT manifest_time)
		FROM ack_history
		GROUP BY date
		ORDER BY date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询历史汇总失败: %w", err)
	}
	defer rows.Close()

	var out []DayStats
	for rows.Next() {
		var stats DayStats
		if err := rows.Scan(&stats.Date, &stats.AckTotal, &stats.LateTotal, &stats.Manifests); err != nil {
			return nil, err
		}
		out = append(out, stats)
	}
	return out, rows.Err()
}

// StatsForDate 返回指定日期的确认汇总
func (s *Service) StatsForDate(date string) (DayStats, error) {
	stats := DayStats{Date: strings.TrimSpace(date)}
	if s == nil || s.db == nil {
		return stats, fmt.Errorf("历史库未初始化")
	}
	if stats.Date == "" {
		return stats, fmt.Errorf("日期不能为空")
	}
	row := s.db.QueryRow(`
		SELECT COUNT(1), IFNULL(SUM(late), 0), COUNT(DISTINCT manifest_time)
		FROM ack_history
		WHERE date = ?
	`, stats.Date)
	if err := row.Scan(&stats.AckTotal, &stats.LateTotal, &stats.Manifests); err != nil {
		return stats, fmt.Errorf("查询日汇总失败: %w", err)
	}
	return stats, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ack_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			date TEXT NOT NULL,
			manifest_time TEXT NOT NULL,
			carrier TEXT NOT NULL,
			user TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT '',
			ack_timestamp TEXT NOT NULL DEFAULT '',
			late INTEGER NOT NULL DEFAULT 0,
			recorded_at TEXT NOT NULL,
			UNIQUE(date, manifest_time, carrier)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ack_history_date ON ack_history(date);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("历史库迁移失败: %w", err)
		}
	}
	return nil
}

//迟到判定 确认时间严格晚于截单时刻加告警窗口
func lateAck(date string, rec models.AckRecord, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	scheduled, err := time.ParseInLocation(models.DateLayout+" "+models.ClockLayout,
		date+" "+rec.ManifestTime, time.Local)
	if err != nil {
		return false
	}
	ts, err := models.ParseStamp(rec.Timestamp)
	if err != nil {
		return false
	}
	return ts.After(scheduled.Add(window))
}

func rollbackTx(tx *sql.Tx) {
	if tx != nil {
		_ = tx.Rollback()
	}
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
