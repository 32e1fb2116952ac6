// 本文件用于按日归档跨天结转的确认记录 归档文件与实时确认文件同构
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"manifest-watch/internal/history"
	"manifest-watch/internal/logger"
	"manifest-watch/internal/metrics"
	"manifest-watch/internal/models"
	"manifest-watch/internal/pathutil"
	"manifest-watch/internal/sharedstore"
)

const defaultUploadTimeout = 30 * time.Second

// Uploader 上传归档文件到异地存储
type Uploader interface {
	UploadFile(ctx context.Context, filePath string) (string, error)
}

// Options 归档写入器依赖 History 与 Uploader 可选
type Options struct {
	Dir           string
	AckFile       string
	Window        time.Duration
	History       *history.Service
	Uploader      Uploader
	UploadTimeout time.Duration
}

// Writer 将按日分组的确认记录合并进共享目录的日期归档文件
type Writer struct {
	dir           string
	base          string
	window        time.Duration
	hist          *history.Service
	uploader      Uploader
	uploadTimeout time.Duration
}

// NewWriter 创建归档写入器
func NewWriter(opts Options) (*Writer, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, fmt.Errorf("归档目录不能为空")
	}
	base := strings.TrimSpace(opts.AckFile)
	if base == "" {
		return nil, fmt.Errorf("确认文件名不能为空")
	}
	timeout := opts.UploadTimeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	return &Writer{
		dir:           dir,
		base:          base,
		window:        opts.Window,
		hist:          opts.History,
		uploader:      opts.Uploader,
		uploadTimeout: timeout,
	}, nil
}

// ArchiveDays 对每个日期合并写入归档 任一日期失败立即返回错误
// 归档落盘后写本地历史库并尽力上传 这两步失败不影响归档结果
func (w *Writer) ArchiveDays(days map[string][]models.AckRecord) error {
	if w == nil {
		return fmt.Errorf("归档写入器未初始化")
	}
	dates := make([]string, 0, len(days))
	for date := range days {
		if strings.TrimSpace(date) != "" && len(days[date]) > 0 {
			dates = append(dates, date)
		}
	}
	sort.Strings(dates)

	for _, date := range dates {
		merged, path, err := w.mergeDay(date, days[date])
		if err != nil {
			return fmt.Errorf("归档 %s 失败: %w", date, err)
		}
		logger.Info("已归档 %s 的确认记录 %d 条", date, len(merged))
		metrics.Global().IncArchivedDay()
		if w.hist != nil {
			if _, err := w.hist.RecordDay(date, merged, w.window); err != nil {
				logger.Error("写入历史库失败: %s: %v", date, err)
			}
		}
		w.uploadArchive(path)
	}
	return nil
}

// ArchivePath 返回某日归档文件的路径
func (w *Writer) ArchivePath(date string) string {
	if w == nil {
		return ""
	}
	return pathutil.DatedRecordPath(w.dir, w.base, date)
}

//读取现有归档 合并去重后原子写回 同一键以先归档的记录为准
func (w *Writer) mergeDay(date string, added []models.AckRecord) ([]models.AckRecord, string, error) {
	path := w.ArchivePath(date)
	file, err := sharedstore.NewFile(path)
	if err != nil {
		return nil, "", err
	}

	existing := []models.AckRecord{}
	err = file.Load(func(data []byte) error {
		var records []models.AckRecord
		if err := json.Unmarshal(data, &records); err != nil {
			return err
		}
		existing = records
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	type recordKey struct {
		manifestTime string
		carrier      string
	}
	seen := make(map[recordKey]struct{}, len(existing))
	for _, rec := range existing {
		seen[recordKey{rec.ManifestTime, rec.Carrier}] = struct{}{}
	}

	merged := existing
	addedCount := 0
	for _, rec := range added {
		key := recordKey{rec.ManifestTime, rec.Carrier}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if rec.Date == "" {
			rec.Date = date
		}
		merged = append(merged, rec)
		addedCount++
	}
	// 没有新增时不回写 避免无谓触发其他节点的目录监听
	if addedCount == 0 {
		return merged, path, nil
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].ManifestTime != merged[j].ManifestTime {
			return merged[i].ManifestTime < merged[j].ManifestTime
		}
		return merged[i].Carrier < merged[j].Carrier
	})

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("序列化归档记录失败: %w", err)
	}
	if err := file.Save(data); err != nil {
		return nil, "", err
	}
	return merged, path, nil
}

//异地上传尽力而为 失败只记日志
func (w *Writer) uploadArchive(path string) {
	if w.uploader == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), w.uploadTimeout)
	defer cancel()
	if _, err := w.uploader.UploadFile(ctx, path); err != nil {
		logger.Error("归档异地上传失败: %s: %v", filepath.Base(path), err)
		return
	}
	logger.Info("归档异地上传完成: %s", filepath.Base(path))
}
