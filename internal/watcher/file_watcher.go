// 本文件用于共享数据目录的变更监听 命中记录文件的事件防抖后触发提前刷新
package watcher

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"manifest-watch/internal/logger"
	"manifest-watch/internal/pathutil"
)

const (
	debounceDelay       = 500 * time.Millisecond // 事件防抖间隔
	logThrottleDuration = 5 * time.Second        // 日志节流时间间隔
)

// TickTrigger 在共享记录变化后请求一次提前刷新
type TickTrigger interface {
	TriggerTick()
}

// ShareWatcher 监听共享数据目录下受跟踪的记录文件
// 监听失败只降级为纯轮询 不影响主流程
type ShareWatcher struct {
	watcher *fsnotify.Watcher
	dir     string
	tracked *pathutil.TrackedSet
	trigger TickTrigger

	stateMutex    sync.Mutex
	lastLogged    map[string]time.Time
	debounceTimer *time.Timer
	closed        bool
}

// NewShareWatcher 创建共享目录监听器
func NewShareWatcher(dir string, tracked *pathutil.TrackedSet, trigger TickTrigger) (*ShareWatcher, error) {
	cleaned := pathutil.NormalizeShareDir(dir)
	if cleaned == "" {
		return nil, fmt.Errorf("共享数据目录不能为空")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &ShareWatcher{
		watcher:    watcher,
		dir:        cleaned,
		tracked:    tracked,
		trigger:    trigger,
		lastLogged: make(map[string]time.Time),
	}, nil
}

// Start 把共享目录加入监听 只监听目录本身不递归
func (sw *ShareWatcher) Start() error {
	logger.Info("初始化共享目录监听...")
	if err := sw.watcher.Add(sw.dir); err != nil {
		logger.Error("添加目录监听失败: %s, 错误: %v", sw.dir, err)
		return err
	}

	go sw.handleEvents()

	logger.Info("共享目录监听已启动: %s", sw.dir)
	return nil
}

// Close 关闭监听器并取消待触发的防抖定时器
func (sw *ShareWatcher) Close() error {
	sw.stateMutex.Lock()
	sw.closed = true
	if sw.debounceTimer != nil {
		sw.debounceTimer.Stop()
		sw.debounceTimer = nil
	}
	sw.stateMutex.Unlock()

	return sw.watcher.Close()
}

// handleEvents 处理目录事件
func (sw *ShareWatcher) handleEvents() {
	for {
		select {
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			sw.handleEvent(event)
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("共享目录监听错误: %v", err)
		}
	}
}

func (sw *ShareWatcher) handleEvent(event fsnotify.Event) {
	logger.Debug("收到目录事件: %s, 操作: %s", event.Name, event.Op.String())

	if !sw.isTrackedEvent(event) {
		return
	}
	if sw.shouldLogFileEvent(event.Name) {
		logger.Info("检测到共享记录变化: %s, 操作: %s", event.Name, event.Op.String())
	}
	sw.scheduleTrigger()
}

// isTrackedEvent 只响应受跟踪记录文件的写入 创建与重命名
// 临时文件与备份等派生产物由 TrackedSet 过滤
func (sw *ShareWatcher) isTrackedEvent(event fsnotify.Event) bool {
	if !sw.tracked.Matches(event.Name) {
		return false
	}
	return event.Op&fsnotify.Write == fsnotify.Write ||
		event.Op&fsnotify.Create == fsnotify.Create ||
		event.Op&fsnotify.Rename == fsnotify.Rename
}

// scheduleTrigger 防抖合并连续写入 到期后只请求一次提前刷新
func (sw *ShareWatcher) scheduleTrigger() {
	sw.stateMutex.Lock()
	defer sw.stateMutex.Unlock()

	if sw.closed {
		return
	}
	if sw.debounceTimer != nil {
		sw.debounceTimer.Stop()
	}
	sw.debounceTimer = time.AfterFunc(debounceDelay, sw.fireTrigger)
}

func (sw *ShareWatcher) fireTrigger() {
	sw.stateMutex.Lock()
	sw.debounceTimer = nil
	closed := sw.closed
	sw.stateMutex.Unlock()

	if closed || sw.trigger == nil {
		return
	}
	logger.Debug("共享记录变化防抖结束 触发提前刷新")
	sw.trigger.TriggerTick()
}

// shouldLogFileEvent 检查是否应该记录文件事件日志
func (sw *ShareWatcher) shouldLogFileEvent(filePath string) bool {
	sw.stateMutex.Lock()
	defer sw.stateMutex.Unlock()

	if lastTime, ok := sw.lastLogged[filePath]; !ok || time.Since(lastTime) > logThrottleDuration {
		sw.lastLogged[filePath] = time.Now()
		return true
	}
	return false
}
