// 本文件用于组装告警核心并对外提供统一服务门面
package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"manifest-watch/internal/ackstore"
	"manifest-watch/internal/alert"
	"manifest-watch/internal/alerterr"
	"manifest-watch/internal/archive"
	"manifest-watch/internal/clock"
	"manifest-watch/internal/config"
	"manifest-watch/internal/dingtalk"
	"manifest-watch/internal/email"
	"manifest-watch/internal/history"
	"manifest-watch/internal/logger"
	"manifest-watch/internal/metrics"
	"manifest-watch/internal/models"
	"manifest-watch/internal/mute"
	"manifest-watch/internal/netio"
	"manifest-watch/internal/oss"
	"manifest-watch/internal/pathutil"
	"manifest-watch/internal/sharedstore"
	"manifest-watch/internal/state"
	"manifest-watch/internal/sysinfo"
	"manifest-watch/internal/watcher"
)

// AlertService 告警服务门面
// 把时钟 共享存储 缓存 引擎和看板拼装到一起 对 API 与界面层提供统一入口
type AlertService struct {
	cfg        *models.Config
	configPath string
	durations  models.Durations
	operator   string

	clk       clock.Clock
	pool      *netio.Pool
	acks      *ackstore.Store
	muter     *mute.Coordinator
	manifests *alert.Source
	engine    *alert.Engine
	board     *state.Board
	watcher   *watcher.ShareWatcher
	hist      *history.Service
	sys       *sysinfo.Collector

	cancel context.CancelFunc
	done   chan struct{}
}

// NewAlertService 构造并初始化告警服务的全部依赖
func NewAlertService(cfg *models.Config, configPath string) (*AlertService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("配置不能为空")
	}
	durations, err := config.ParseDurations(cfg)
	if err != nil {
		return nil, err
	}

	dataDir := pathutil.NormalizeShareDir(cfg.DataDir)
	if dataDir == "" {
		return nil, fmt.Errorf("共享数据目录不能为空")
	}

	ackFile, err := sharedstore.NewFile(filepath.Join(dataDir, cfg.AckFile))
	if err != nil {
		return nil, fmt.Errorf("初始化确认文件失败: %w", err)
	}
	muteFile, err := sharedstore.NewFile(filepath.Join(dataDir, cfg.MuteFile))
	if err != nil {
		return nil, fmt.Errorf("初始化静音文件失败: %w", err)
	}
	manifestFile, err := sharedstore.NewFile(filepath.Join(dataDir, cfg.ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("初始化清单配置文件失败: %w", err)
	}

	clk := clock.System()
	pool := netio.NewPool(cfg.ReadWorkers, cfg.ReadWorkers*8)

	svc := &AlertService{
		cfg:        cfg,
		configPath: configPath,
		durations:  durations,
		operator:   config.EffectiveOperator(cfg),
		clk:        clk,
		pool:       pool,
		acks:       ackstore.New(ackFile),
	}

	svc.muter = mute.New(mute.Options{
		Clock:       clk,
		File:        muteFile,
		Pool:        pool,
		FastTTL:     durations.FastCacheTTL,
		NetworkTTL:  durations.NetworkCacheTTL,
		ReadTimeout: durations.ReadTimeout,
	})
	svc.manifests = alert.NewSource(alert.SourceOptions{
		Clock:       clk,
		File:        manifestFile,
		Pool:        pool,
		FastTTL:     durations.FastCacheTTL,
		NetworkTTL:  durations.NetworkCacheTTL,
		ReadTimeout: durations.ReadTimeout,
	})

	// 历史库与异地上传都是尽力而为的旁路 初始化失败只降级不拦截启动
	if cfg.HistoryEnabled == nil || *cfg.HistoryEnabled {
		hist, err := history.NewService(cfg.HistoryDir)
		if err != nil {
			logger.Warn("初始化历史归档库失败 本地历史不可用: %v", err)
		} else {
			svc.hist = hist
		}
	}
	var uploader archive.Uploader
	if cfg.ArchiveUploadEnabled {
		client, err := oss.NewClient(cfg)
		if err != nil {
			logger.Warn("初始化归档上传客户端失败 异地副本不可用: %v", err)
		} else {
			uploader = client
		}
	}
	archiver, err := archive.NewWriter(archive.Options{
		Dir:      dataDir,
		AckFile:  cfg.AckFile,
		Window:   durations.AlertWindow,
		History:  svc.hist,
		Uploader: uploader,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化归档写入器失败: %w", err)
	}

	engine, err := alert.NewEngine(alert.Options{
		Clock:         clk,
		Acks:          svc.acks,
		Mute:          svc.muter,
		Manifests:     svc.manifests,
		Pool:          pool,
		Notifier:      buildNotifier(cfg),
		Archiver:      archiver,
		AlertWindow:   durations.AlertWindow,
		FastRefresh:   durations.FastRefresh,
		NormalRefresh: durations.NormalRefresh,
		AckCooldown:   durations.AckCooldown,
		ReadTimeout:   durations.ReadTimeout,
	})
	if err != nil {
		return nil, err
	}
	svc.engine = engine

	svc.board = state.NewBoard(clk)
	engine.Subscribe(func(snap alert.Snapshot) {
		svc.board.Apply(snap)
		svc.board.SetStoreHealth(svc.acks.Health(), svc.muter.Health(), svc.manifests.Health())
	})

	if cfg.WatchEnabled == nil || *cfg.WatchEnabled {
		tracked := pathutil.NewTrackedSet(cfg.AckFile, cfg.MuteFile, cfg.ManifestFile)
		sw, err := watcher.NewShareWatcher(dataDir, tracked, engine)
		if err != nil {
			logger.Warn("初始化共享目录监听失败 退回纯轮询: %v", err)
		} else {
			svc.watcher = sw
		}
	}

	if cfg.SystemResourceEnabled {
		svc.sys = sysinfo.NewCollector(sysinfo.Options{DataDir: dataDir})
	}
	return svc, nil
}

// buildNotifier 按配置组合通知渠道 未启用或无渠道时返回空
func buildNotifier(cfg *models.Config) alert.Notifier {
	if cfg == nil || !cfg.NotifyEnabled {
		return nil
	}
	set := &alert.NotifierSet{
		DingTalk: dingtalk.NewRobotFromConfig(cfg),
		Email:    email.NewSenderFromConfig(cfg),
	}
	if set.DingTalk == nil && set.Email == nil {
		return nil
	}
	return set
}

// Start 启动巡检循环与共享目录监听
func (s *AlertService) Start() error {
	logger.Info("启动告警服务...")
	if s.watcher != nil {
		if err := s.watcher.Start(); err != nil {
			logger.Warn("启动共享目录监听失败 退回纯轮询: %v", err)
			s.watcher = nil
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		s.engine.Run(ctx)
	}()
	logger.Info("告警服务启动成功 操作员: %s", s.operator)
	return nil
}

// Stop 停止服务并释放资源
func (s *AlertService) Stop() error {
	logger.Info("停止告警服务...")
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			logger.Error("关闭共享目录监听失败: %v", err)
		}
	}
	if s.pool != nil {
		s.pool.Shutdown()
	}
	if s.hist != nil {
		if err := s.hist.Close(); err != nil {
			logger.Error("关闭历史归档库失败: %v", err)
		}
	}
	logger.Info("告警服务已停止")
	return nil
}

// Subscribe 注册快照观察者 注册时补发最近一次快照
func (s *AlertService) Subscribe(observer alert.Observer) {
	s.engine.Subscribe(observer)
}

// Latest 返回最近一次巡检快照
func (s *AlertService) Latest() (alert.Snapshot, bool) {
	return s.engine.Latest()
}

// Board 返回看板聚合数据
func (s *AlertService) Board() state.BoardData {
	return s.board.Dashboard()
}

// Config 返回当前配置
func (s *AlertService) Config() *models.Config {
	return s.cfg
}

// Operator 返回本机默认操作员名
func (s *AlertService) Operator() string {
	return s.operator
}

// Acknowledge 确认单个承运商 重复确认返回 ErrAlreadyAcknowledged
// edit 为真时在已有记录上追加原因修订 保留原始确认时间
func (s *AlertService) Acknowledge(manifestTime, carrier, user, reason string, edit bool) (models.AckRecord, error) {
	manifestTime = strings.TrimSpace(manifestTime)
	carrier = strings.TrimSpace(carrier)
	if manifestTime == "" || carrier == "" {
		return models.AckRecord{}, fmt.Errorf("班次时刻与承运商不能为空")
	}
	now := s.clk.Now()
	key := ackstore.Key{Date: models.FormatDate(now), ManifestTime: manifestTime, Carrier: carrier}
	record, err := s.acks.Acknowledge(now, key, s.resolveUser(user), reason, edit)
	if err != nil {
		if errors.Is(err, alerterr.ErrAlreadyAcknowledged) {
			metrics.Global().IncAckRejected()
		}
		return models.AckRecord{}, err
	}
	metrics.Global().IncAck()
	s.engine.NoteLocalAck()
	return record, nil
}

// AcknowledgeManifest 批量确认整个班次 已确认的承运商自动跳过
func (s *AlertService) AcknowledgeManifest(manifestTime, user, reason string) ([]models.AckRecord, error) {
	manifestTime = strings.TrimSpace(manifestTime)
	if manifestTime == "" {
		return nil, fmt.Errorf("班次时刻不能为空")
	}
	now := s.clk.Now()
	entries, _, err := s.manifests.Entries(now)
	if err != nil {
		return nil, err
	}
	var carriers []string
	for _, entry := range entries {
		if entry.Time == manifestTime {
			carriers = entry.Carriers
			break
		}
	}
	if len(carriers) == 0 {
		return nil, fmt.Errorf("当前计划中没有班次 %s", manifestTime)
	}
	records, err := s.acks.AcknowledgeAll(now, models.FormatDate(now), manifestTime, carriers, s.resolveUser(user), reason)
	if err != nil {
		return nil, err
	}
	for range records {
		metrics.Global().IncAck()
	}
	if len(records) > 0 {
		s.engine.NoteLocalAck()
	}
	return records, nil
}

// ClearAcknowledgment 撤销确认 承运商为空时撤销整个班次 返回删除条数
func (s *AlertService) ClearAcknowledgment(manifestTime, carrier string) (int, error) {
	manifestTime = strings.TrimSpace(manifestTime)
	if manifestTime == "" {
		return 0, fmt.Errorf("班次时刻不能为空")
	}
	date := models.FormatDate(s.clk.Now())
	if strings.TrimSpace(carrier) != "" {
		removed, err := s.acks.Clear(ackstore.Key{Date: date, ManifestTime: manifestTime, Carrier: strings.TrimSpace(carrier)})
		if err != nil {
			return 0, err
		}
		if removed {
			s.engine.TriggerTick()
			return 1, nil
		}
		return 0, nil
	}
	removed, err := s.acks.ClearManifest(date, manifestTime)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.engine.TriggerTick()
	}
	return removed, nil
}

// ToggleMute 设置或解除共享静音 minutes 为零表示无限期静音
func (s *AlertService) ToggleMute(muted bool, user string, minutes int) (models.MuteRecord, error) {
	record, err := s.muter.SetMute(muted, s.resolveUser(user), time.Duration(minutes)*time.Minute)
	if err != nil {
		return models.MuteRecord{}, err
	}
	metrics.Global().IncMuteToggle()
	s.engine.TriggerTick()
	return record, nil
}

// ExtendMute 延长限时静音
func (s *AlertService) ExtendMute(user string, minutes int) (models.MuteRecord, error) {
	if minutes <= 0 {
		return models.MuteRecord{}, fmt.Errorf("延长时长必须大于零")
	}
	record, err := s.muter.Extend(s.resolveUser(user), time.Duration(minutes)*time.Minute)
	if err != nil {
		return models.MuteRecord{}, err
	}
	metrics.Global().IncMuteToggle()
	s.engine.TriggerTick()
	return record, nil
}

// MuteStatus 返回当前静音视图与剩余时长
func (s *AlertService) MuteStatus() (bool, string, models.MuteRecord, time.Duration) {
	muted, by := s.muter.IsCurrentlyMuted()
	record := s.muter.Status()
	remaining, _ := s.muter.Remaining()
	return muted, by, record, remaining
}

// ReloadConfiguration 失效清单配置缓存并立即巡检
func (s *AlertService) ReloadConfiguration() {
	s.engine.ReloadConfiguration()
}

// AckStats 返回某日确认统计 日期为空时取当天
func (s *AlertService) AckStats(date string) ackstore.AckStats {
	if strings.TrimSpace(date) == "" {
		date = models.FormatDate(s.clk.Now())
	}
	return s.acks.Stats(date, s.durations.AlertWindow)
}

// HistoryByDate 查询历史归档库中某日的确认记录
func (s *AlertService) HistoryByDate(date string) ([]history.Record, error) {
	if s.hist == nil {
		return nil, fmt.Errorf("历史归档未启用")
	}
	return s.hist.QueryByDate(date)
}

// HistoryRecentDays 查询最近若干天的归档汇总
func (s *AlertService) HistoryRecentDays(limit int) ([]history.DayStats, error) {
	if s.hist == nil {
		return nil, fmt.Errorf("历史归档未启用")
	}
	return s.hist.RecentDays(limit)
}

// Health 汇总引擎 存储与主机的健康指标
func (s *AlertService) Health() models.HealthSnapshot {
	tickTotal, lastTickAt := s.engine.TickStats()
	snapshot := models.HealthSnapshot{
		TickTotal:        tickTotal,
		AckStore:         s.acks.Health(),
		MuteStore:        s.muter.Health(),
		ManifestStore:    s.manifests.Health(),
		ReadTimeoutTotal: s.pool.Stats().TimeoutTotal,
		PendingReads:     s.pool.Stats().Pending,
	}
	if !lastTickAt.IsZero() {
		snapshot.LastTickAt = models.FormatStamp(lastTickAt)
	}
	if latest, ok := s.engine.Latest(); ok {
		snapshot.StorageDegraded = latest.Degraded
		snapshot.DegradedReason = latest.DegradedReason
	}
	if s.sys != nil {
		status := s.sys.Status()
		snapshot.System = &status
	}
	return snapshot
}

// resolveUser 空操作人回退到本机默认操作员
func (s *AlertService) resolveUser(user string) string {
	user = strings.TrimSpace(user)
	if user != "" {
		return user
	}
	return s.operator
}
