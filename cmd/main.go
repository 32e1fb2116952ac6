// 本文件用于程序启动入口
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"manifest-watch/internal/api"
	"manifest-watch/internal/config"
	"manifest-watch/internal/logger"
	"manifest-watch/internal/models"
	"manifest-watch/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("程序退出: %v", err)
	}
}

func run() error {
	configPath := parseFlags()
	log.Printf("程序启动，配置文件: %s", configPath)

	cfg, err := loadAndValidateConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.InitLogger(cfg); err != nil {
		return err
	}
	defer logger.Close()

	logConfig(cfg)

	alertService, err := service.NewAlertService(cfg, configPath)
	if err != nil {
		logger.Error("创建告警服务失败: %v", err)
		return err
	}

	if err := alertService.Start(); err != nil {
		logger.Error("启动告警服务失败: %v", err)
		return err
	}

	apiServer := api.NewServer(cfg, alertService)
	apiServer.Start()

	waitForShutdown(alertService, apiServer)
	return nil
}

func parseFlags() string {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "配置文件路径")
	flag.Parse()
	return configPath
}

func loadAndValidateConfig(configPath string) (*models.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func logConfig(cfg *models.Config) {
	logger.Info("配置加载成功")
	logger.Info("共享数据目录: %s", cfg.DataDir)
	logger.Info("确认文件: %s", cfg.AckFile)
	logger.Info("静音文件: %s", cfg.MuteFile)
	logger.Info("清单配置文件: %s", cfg.ManifestFile)
	logger.Info("操作员: %s", config.EffectiveOperator(cfg))
	logger.Info("告警窗口: %s", cfg.AlertWindow)
	logger.Info("巡检间隔: 快速 %s / 常规 %s", cfg.FastRefreshInterval, cfg.NormalRefreshInterval)
	logger.Info("缓存有效期: 快速 %s / 网络 %s", cfg.FastCacheTTL, cfg.NetworkCacheTTL)
	logger.Info("读取工作池大小: %d", cfg.ReadWorkers)
	watchEnabled := cfg.WatchEnabled == nil || *cfg.WatchEnabled
	logger.Info("共享目录监听: %v", watchEnabled)
	historyEnabled := cfg.HistoryEnabled == nil || *cfg.HistoryEnabled
	logger.Info("本地历史归档: %v", historyEnabled)
	logger.Info("超窗通知: %v", cfg.NotifyEnabled)
	if cfg.ArchiveUploadEnabled {
		logger.Info("归档上传 Bucket: %s", cfg.Bucket)
		logger.Info("归档上传 Endpoint: %s", cfg.Endpoint)
	}
	logToStd := cfg.LogToStd == nil || *cfg.LogToStd
	logger.Info("日志级别: %s", cfg.LogLevel)
	if cfg.LogFile != "" {
		logger.Info("日志文件: %s", cfg.LogFile)
	}
	logger.Info("日志输出到标准输出: %v", logToStd)
	if strings.TrimSpace(cfg.APIAuthToken) == "" {
		logger.Warn("API 未配置访问令牌")
	}
}

func waitForShutdown(alertService *service.AlertService, apiServer *api.Server) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	<-signalChan
	logger.Info("收到退出信号，正在关闭服务...")

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiServer.Shutdown(ctx); err != nil {
			logger.Warn("关闭 API 服务失败: %v", err)
		}
	}
	if err := alertService.Stop(); err != nil {
		logger.Error("停止告警服务失败: %v", err)
	}

	logger.Info("程序已退出")
	os.Exit(0)
}
