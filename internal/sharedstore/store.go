// 本文件用于共享记录文件的读写与损坏降级
package sharedstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"manifest-watch/internal/alerterr"
	"manifest-watch/internal/logger"
	"manifest-watch/internal/models"
	"manifest-watch/internal/pathutil"
	"manifest-watch/pkg/utils"
)

// DecodeFunc 将记录字节解码为调用方自身的类型 解码失败视为记录损坏
// 调用方应先解码到局部变量 成功后再赋值 避免半份记录生效
type DecodeFunc func(data []byte) error

// File 表示一份共享记录文件的读写入口 不加分布式锁 后写覆盖
type File struct {
	path string

	mu                   sync.Mutex
	corruptFallbackTotal uint64
	backupRecoveredTotal uint64
	writeFailureTotal    uint64
}

// NewFile 创建共享记录文件入口
func NewFile(path string) (*File, error) {
	cleaned := strings.TrimSpace(path)
	if cleaned == "" {
		return nil, fmt.Errorf("共享记录文件路径不能为空")
	}
	return &File{path: cleaned}, nil
}

// Path 返回共享记录文件路径
func (f *File) Path() string {
	if f == nil {
		return ""
	}
	return f.path
}

// Load 读取并解码共享记录 记录损坏时转存原文件并依次降级到备份与默认值
// 损坏不向调用方报错 仅在存储不可达时返回错误 调用方保留自身默认值即可
func (f *File) Load(decode DecodeFunc) error {
	if f == nil {
		return fmt.Errorf("共享记录文件未初始化")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: 读取共享记录失败: %v", alerterr.ErrStorageUnavailable, err)
	}
	if len(data) == 0 {
		return nil
	}
	decodeErr := decode(data)
	if decodeErr == nil {
		return nil
	}
	return f.fallbackFromCorruptedLocked(decode, decodeErr)
}

// Save 持久化完整记录 覆盖前尽力备份现有文件 写入走临时文件加重命名
func (f *File) Save(data []byte) error {
	if f == nil {
		return fmt.Errorf("共享记录文件未初始化")
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if utils.IsFileExists(f.path) {
		if err := utils.CopyFile(f.path, pathutil.BackupPath(f.path)); err != nil {
			logger.Warn("备份共享记录失败: 文件=%s 错误=%v", f.path, err)
		}
	}
	if err := writeFileAtomic(f.path, data, 0o644); err != nil {
		f.writeFailureTotal++
		return fmt.Errorf("%w: 写入共享记录失败: %v", alerterr.ErrStorageUnavailable, err)
	}
	return nil
}

// LastModified 返回共享记录文件的修改时间 文件不存在时返回零值
func (f *File) LastModified() (time.Time, error) {
	if f == nil {
		return time.Time{}, fmt.Errorf("共享记录文件未初始化")
	}
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("%w: 获取共享记录状态失败: %v", alerterr.ErrStorageUnavailable, err)
	}
	return info.ModTime(), nil
}

// Health 返回共享记录健康指标快照
func (f *File) Health() models.StoreHealth {
	if f == nil {
		return models.StoreHealth{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.StoreHealth{
		StoreFile:            f.path,
		CorruptFallbackTotal: f.corruptFallbackTotal,
		BackupRecoveredTotal: f.backupRecoveredTotal,
		WriteFailureTotal:    f.writeFailureTotal,
	}
}

// fallbackFromCorruptedLocked 将损坏记录移到转存路径后尝试备份恢复
// 备份可用时回写主记录 备份也不可用时维持调用方默认值 等下一次 Save 重建
func (f *File) fallbackFromCorruptedLocked(decode DecodeFunc, parseErr error) error {
	f.corruptFallbackTotal++
	corruptPath := pathutil.CorruptBackupPath(f.path, time.Now())
	if err := os.Rename(f.path, corruptPath); err != nil {
		logger.Warn("转存损坏记录失败: 源文件=%s 错误=%v", f.path, err)
	}

	backupPath := pathutil.BackupPath(f.path)
	backupData, err := os.ReadFile(backupPath)
	if err == nil && len(backupData) > 0 {
		if decodeErr := decode(backupData); decodeErr == nil {
			f.backupRecoveredTotal++
			if writeErr := writeFileAtomic(f.path, backupData, 0o644); writeErr != nil {
				f.writeFailureTotal++
				logger.Warn("备份恢复后回写主记录失败: 文件=%s 错误=%v", f.path, writeErr)
			}
			logger.Error("共享记录损坏，已从备份恢复: 源文件=%s 转存文件=%s 解析错误=%v", f.path, corruptPath, parseErr)
			return nil
		}
	}

	logger.Error("共享记录损坏且备份不可用，已降级为默认记录: 源文件=%s 转存文件=%s 解析错误=%v", f.path, corruptPath, parseErr)
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
