// 本文件用于定义配置与运行指标模型
package models

import (
	"time"
)

// Config 配置结构体
type Config struct {
	DataDir               string `yaml:"data_dir"`      // 共享数据目录（网络路径）
	AckFile               string `yaml:"ack_file"`      // 确认记录文件名
	MuteFile              string `yaml:"mute_file"`     // 静音状态文件名
	ManifestFile          string `yaml:"manifest_file"` // 清单配置文件名
	OperatorName          string `yaml:"operator_name"` // 本机默认操作员 为空时取系统用户名
	AlertWindow           string `yaml:"alert_window"`
	FastCacheTTL          string `yaml:"fast_cache_ttl"`
	NetworkCacheTTL       string `yaml:"network_cache_ttl"`
	ReadTimeout           string `yaml:"read_timeout"`
	FastRefreshInterval   string `yaml:"fast_refresh_interval"`
	NormalRefreshInterval string `yaml:"normal_refresh_interval"`
	AckCooldown           string `yaml:"ack_cooldown"`
	ReadWorkers           int    `yaml:"read_workers"` // 共享文件读取工作池大小
	WatchEnabled          *bool  `yaml:"watch_enabled"`
	HistoryEnabled        *bool  `yaml:"history_enabled"`
	HistoryDir            string `yaml:"history_dir"` // 本地归档数据库目录
	ArchiveUploadEnabled  bool   `yaml:"archive_upload_enabled"`
	Bucket                string `yaml:"bucket"`
	AK                    string `yaml:"ak"`
	SK                    string `yaml:"sk"`
	Endpoint              string `yaml:"endpoint"`
	DisableSSL            bool   `yaml:"disable_ssl"`
	NotifyEnabled         bool   `yaml:"notify_enabled"`
	DingTalkWebhook       string `yaml:"dingtalk_webhook"`
	DingTalkSecret        string `yaml:"dingtalk_secret"`
	EmailHost             string `yaml:"email_host"`
	EmailPort             int    `yaml:"email_port"`
	EmailUser             string `yaml:"email_user"`
	EmailPass             string `yaml:"email_pass"`
	EmailFrom             string `yaml:"email_from"`
	EmailTo               string `yaml:"email_to"`
	EmailUseTLS           bool   `yaml:"email_use_tls"`
	LogLevel              string `yaml:"log_level"`
	LogFile               string `yaml:"log_file"`
	LogToStd              *bool  `yaml:"log_to_std"`
	APIBind               string `yaml:"api_bind"` // API 服务监听地址
	APIAuthToken          string `yaml:"api_auth_token"`
	APICORSOrigins        string `yaml:"api_cors_origins"`
	SystemResourceEnabled bool   `yaml:"system_resource_enabled"`
}

// Durations 表示解析后的时间参数集合
type Durations struct {
	AlertWindow     time.Duration
	FastCacheTTL    time.Duration
	NetworkCacheTTL time.Duration
	ReadTimeout     time.Duration
	FastRefresh     time.Duration
	NormalRefresh   time.Duration
	AckCooldown     time.Duration
}

// NetIOStats 表示后台读取池的运行指标
type NetIOStats struct {
	Workers       int    `json:"workers"`
	Pending       int    `json:"pending"`
	ExecutedTotal uint64 `json:"executedTotal"`
	TimeoutTotal  uint64 `json:"timeoutTotal"`
}

// StoreHealth 表示单个共享存储的健康指标
type StoreHealth struct {
	StoreFile            string `json:"storeFile"`
	CorruptFallbackTotal uint64 `json:"corruptFallbackTotal"`
	BackupRecoveredTotal uint64 `json:"backupRecoveredTotal"`
	WriteFailureTotal    uint64 `json:"writeFailureTotal"`
}

// HealthSnapshot 表示健康检查返回的运行指标
type HealthSnapshot struct {
	TickTotal        uint64        `json:"tickTotal"`
	LastTickAt       string        `json:"lastTickAt"`
	StorageDegraded  bool          `json:"storageDegraded"`
	DegradedReason   string        `json:"degradedReason,omitempty"`
	AckStore         StoreHealth   `json:"ackStore"`
	MuteStore        StoreHealth   `json:"muteStore"`
	ManifestStore    StoreHealth   `json:"manifestStore"`
	ReadTimeoutTotal uint64        `json:"readTimeoutTotal"`
	PendingReads     int           `json:"pendingReads"`
	System           *SystemStatus `json:"system,omitempty"`
}

// SystemStatus 表示主机资源概览
type SystemStatus struct {
	Hostname      string  `json:"hostname"`
	UptimeSeconds uint64  `json:"uptimeSeconds"`
	CPUPercent    float64 `json:"cpuPercent"`
	MemPercent    float64 `json:"memPercent"`
	DataDirFreeMB uint64  `json:"dataDirFreeMB"`
}
