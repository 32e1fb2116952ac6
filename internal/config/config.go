package config

import (
	"fmt"
	"os"
	"os/user"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"manifest-watch/internal/models"
)

// 时间参数缺省值 与 ParseDurations 的回退一致
const (
	defaultAlertWindow   = 30 * time.Minute
	defaultFastCacheTTL  = 5 * time.Second
	defaultNetworkTTL    = 30 * time.Second
	defaultReadTimeout   = time.Second
	defaultFastRefresh   = 10 * time.Second
	defaultNormalRefresh = 30 * time.Second
	defaultAckCooldown   = 60 * time.Second
)

// LoadConfig 加载配置文件
// 覆盖顺序: 配置文件 -> 运行时覆盖文件 -> 环境变量
func LoadConfig(configFile string) (*models.Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %v", err)
	}

	var config models.Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %v", err)
	}

	resolvePlaceholders(&config)

	runtime, err := loadRuntimeConfig(configFile)
	if err != nil {
		return nil, err
	}
	applyRuntimeConfig(&config, runtime)

	if err := applyEnvOverrides(&config); err != nil {
		return nil, err
	}

	applyDefaults(&config)
	return &config, nil
}

// 设置默认值 只补空位
func applyDefaults(config *models.Config) {
	if config.AckFile == "" {
		config.AckFile = "acknowledgments.json"
	}
	if config.MuteFile == "" {
		config.MuteFile = "mute_status.json"
	}
	if config.ManifestFile == "" {
		config.ManifestFile = "config.json"
	}
	if config.AlertWindow == "" {
		config.AlertWindow = "30m"
	}
	if config.FastCacheTTL == "" {
		config.FastCacheTTL = "5s"
	}
	if config.NetworkCacheTTL == "" {
		config.NetworkCacheTTL = "30s"
	}
	if config.ReadTimeout == "" {
		config.ReadTimeout = "1s"
	}
	if config.FastRefreshInterval == "" {
		config.FastRefreshInterval = "10s"
	}
	if config.NormalRefreshInterval == "" {
		config.NormalRefreshInterval = "30s"
	}
	if config.AckCooldown == "" {
		config.AckCooldown = "60s"
	}
	if config.ReadWorkers <= 0 {
		config.ReadWorkers = 4
	}
	if config.WatchEnabled == nil {
		config.WatchEnabled = boolPtr(true)
	}
	if config.HistoryEnabled == nil {
		config.HistoryEnabled = boolPtr(true)
	}
	if config.HistoryDir == "" {
		config.HistoryDir = "history"
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
	if config.LogToStd == nil {
		config.LogToStd = boolPtr(true)
	}
	if config.APIBind == "" {
		config.APIBind = ":8080"
	}
}

// ValidateConfig 验证配置
func ValidateConfig(config *models.Config) error {
	if strings.TrimSpace(config.DataDir) == "" {
		return fmt.Errorf("共享数据目录不能为空")
	}
	switch config.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("日志级别无效: %s", config.LogLevel)
	}
	if _, err := ParseDurations(config); err != nil {
		return err
	}
	if config.ReadWorkers < 0 {
		return fmt.Errorf("读取工作池大小无效: %d", config.ReadWorkers)
	}
	if config.EmailHost != "" {
		if config.EmailPort <= 0 || config.EmailPort > 65535 {
			return fmt.Errorf("邮件端口无效: %d", config.EmailPort)
		}
		if config.EmailFrom == "" || config.EmailTo == "" {
			return fmt.Errorf("邮件收发地址不能为空")
		}
	}
	if config.NotifyEnabled && config.DingTalkWebhook == "" && config.EmailHost == "" {
		return fmt.Errorf("通知已启用但未配置任何通知渠道")
	}
	if config.ArchiveUploadEnabled {
		if config.Bucket == "" {
			return fmt.Errorf("归档上传已启用但 Bucket 为空")
		}
		if config.AK == "" || config.SK == "" {
			return fmt.Errorf("归档上传已启用但认证信息为空")
		}
		if config.Endpoint == "" {
			return fmt.Errorf("归档上传已启用但 Endpoint 为空")
		}
	}
	return nil
}

// ParseDurations 解析配置中的全部时间参数 空值回退默认
func ParseDurations(config *models.Config) (models.Durations, error) {
	var out models.Durations
	var err error
	if out.AlertWindow, err = parseDuration(config.AlertWindow, defaultAlertWindow); err != nil {
		return out, fmt.Errorf("告警窗口无效: %w", err)
	}
	if out.FastCacheTTL, err = parseDuration(config.FastCacheTTL, defaultFastCacheTTL); err != nil {
		return out, fmt.Errorf("快速缓存时长无效: %w", err)
	}
	if out.NetworkCacheTTL, err = parseDuration(config.NetworkCacheTTL, defaultNetworkTTL); err != nil {
		return out, fmt.Errorf("网络缓存时长无效: %w", err)
	}
	if out.ReadTimeout, err = parseDuration(config.ReadTimeout, defaultReadTimeout); err != nil {
		return out, fmt.Errorf("读取超时无效: %w", err)
	}
	if out.FastRefresh, err = parseDuration(config.FastRefreshInterval, defaultFastRefresh); err != nil {
		return out, fmt.Errorf("快速刷新间隔无效: %w", err)
	}
	if out.NormalRefresh, err = parseDuration(config.NormalRefreshInterval, defaultNormalRefresh); err != nil {
		return out, fmt.Errorf("常规刷新间隔无效: %w", err)
	}
	if out.AckCooldown, err = parseDuration(config.AckCooldown, defaultAckCooldown); err != nil {
		return out, fmt.Errorf("确认冷却时长无效: %w", err)
	}
	return out, nil
}

// EffectiveOperator 返回确认动作使用的操作员名
// 配置为空时回退到系统用户名
func EffectiveOperator(config *models.Config) string {
	if config != nil {
		if name := strings.TrimSpace(config.OperatorName); name != "" {
			return name
		}
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		name := u.Username
		// Windows 返回 DOMAIN\user 形式 只保留用户名部分
		if idx := strings.LastIndexByte(name, '\\'); idx >= 0 {
			name = name[idx+1:]
		}
		if name != "" {
			return name
		}
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if name := strings.TrimSpace(os.Getenv(key)); name != "" {
			return name
		}
	}
	return "unknown"
}

// 支持中文时间单位 纯数字按秒处理
func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, nil
	}
	clean := strings.ToLower(trimmed)
	clean = strings.ReplaceAll(clean, "秒钟", "秒")
	clean = strings.ReplaceAll(clean, "秒", "s")
	clean = strings.ReplaceAll(clean, "分钟", "m")
	clean = strings.ReplaceAll(clean, "分", "m")
	clean = strings.ReplaceAll(clean, "小时", "h")
	clean = strings.TrimSpace(clean)
	if d, err := time.ParseDuration(clean); err == nil && d > 0 {
		return d, nil
	}
	numRe := regexp.MustCompile(`\d+`)
	if m := numRe.FindString(clean); m != "" {
		if v, err := strconv.Atoi(m); err == nil && v > 0 {
			return time.Duration(v) * time.Second, nil
		}
	}
	return 0, fmt.Errorf("无效时间: %s", raw)
}

// 环境变量覆盖 指定部署场景常用的键
func applyEnvOverrides(config *models.Config) error {
	config.DataDir = stringFromEnv("DATA_DIR", config.DataDir)
	config.OperatorName = stringFromEnv("OPERATOR_NAME", config.OperatorName)
	config.LogLevel = stringFromEnv("LOG_LEVEL", config.LogLevel)
	config.LogFile = stringFromEnv("LOG_FILE", config.LogFile)
	config.APIBind = stringFromEnv("API_BIND", config.APIBind)
	config.APIAuthToken = stringFromEnv("API_AUTH_TOKEN", config.APIAuthToken)
	config.AK = stringFromEnv("OSS_AK", config.AK)
	config.SK = stringFromEnv("OSS_SK", config.SK)
	config.Endpoint = stringFromEnv("OSS_ENDPOINT", config.Endpoint)
	config.Bucket = stringFromEnv("OSS_BUCKET", config.Bucket)
	config.DingTalkWebhook = stringFromEnv("DINGTALK_WEBHOOK", config.DingTalkWebhook)
	config.DingTalkSecret = stringFromEnv("DINGTALK_SECRET", config.DingTalkSecret)
	config.EmailPass = stringFromEnv("EMAIL_PASS", config.EmailPass)

	if v, ok, err := intFromEnv("READ_WORKERS"); err != nil {
		return err
	} else if ok {
		config.ReadWorkers = v
	}
	if v, ok, err := boolFromEnv("NOTIFY_ENABLED"); err != nil {
		return err
	} else if ok {
		config.NotifyEnabled = v
	}
	if v, ok, err := boolFromEnv("WATCH_ENABLED"); err != nil {
		return err
	} else if ok {
		config.WatchEnabled = boolPtr(v)
	}
	if v, ok, err := boolFromEnv("HISTORY_ENABLED"); err != nil {
		return err
	} else if ok {
		config.HistoryEnabled = boolPtr(v)
	}
	return nil
}

// 凭证类字段支持 ${VAR} 占位符引用环境变量
func resolvePlaceholders(config *models.Config) {
	fields := []*string{
		&config.AK, &config.SK,
		&config.DingTalkWebhook, &config.DingTalkSecret,
		&config.EmailPass, &config.APIAuthToken,
	}
	for _, field := range fields {
		if resolved, ok := tryResolvePlaceholder(*field); ok {
			*field = resolved
		}
	}
}

func tryResolvePlaceholder(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "${") || !strings.HasSuffix(trimmed, "}") {
		return "", false
	}
	return resolveEnvPlaceholder(trimmed), true
}

func resolveEnvPlaceholder(placeholder string) string {
	key := strings.TrimSuffix(strings.TrimPrefix(placeholder, "${"), "}")
	return strings.TrimSpace(os.Getenv(key))
}

func stringFromEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return fallback
}

func intFromEnv(key string) (int, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, false, fmt.Errorf("环境变量 %s 不是有效整数: %v", key, err)
	}
	return v, true, nil
}

func boolFromEnv(key string) (bool, bool, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return false, false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return false, false, fmt.Errorf("环境变量 %s 不是有效布尔值: %v", key, err)
	}
	return v, true, nil
}
