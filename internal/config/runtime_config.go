// 本文件用于本机运行时配置的读取与持久化
// 操作员在界面上修改的设置写入 .runtime.yaml 旁路文件 重启后仍然生效
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"

	"manifest-watch/internal/models"
)

type runtimeConfig struct {
	DataDir               *string `yaml:"data_dir"`
	OperatorName          *string `yaml:"operator_name"`
	LogLevel              *string `yaml:"log_level"`
	NotifyEnabled         *bool   `yaml:"notify_enabled"`
	FastRefreshInterval   *string `yaml:"fast_refresh_interval"`
	NormalRefreshInterval *string `yaml:"normal_refresh_interval"`
}

func runtimeConfigPath(configPath string) string {
	cleaned := strings.TrimSpace(configPath)
	if cleaned == "" {
		return ""
	}
	ext := filepath.Ext(cleaned)
	if ext == "" {
		return cleaned + ".runtime.yaml"
	}
	return strings.TrimSuffix(cleaned, ext) + ".runtime" + ext
}

func loadRuntimeConfig(configPath string) (*runtimeConfig, error) {
	path := runtimeConfigPath(configPath)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("读取运行时配置文件失败: %s: %w", path, err)
	}
	var cfg runtimeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析运行时配置文件失败: %s: %w", path, err)
	}
	return &cfg, nil
}

func applyRuntimeConfig(cfg *models.Config, runtime *runtimeConfig) {
	if cfg == nil || runtime == nil {
		return
	}
	if runtime.DataDir != nil {
		cfg.DataDir = strings.TrimSpace(*runtime.DataDir)
	}
	if runtime.OperatorName != nil {
		cfg.OperatorName = strings.TrimSpace(*runtime.OperatorName)
	}
	if runtime.LogLevel != nil {
		cfg.LogLevel = strings.TrimSpace(*runtime.LogLevel)
	}
	if runtime.NotifyEnabled != nil {
		cfg.NotifyEnabled = *runtime.NotifyEnabled
	}
	if runtime.FastRefreshInterval != nil {
		cfg.FastRefreshInterval = strings.TrimSpace(*runtime.FastRefreshInterval)
	}
	if runtime.NormalRefreshInterval != nil {
		cfg.NormalRefreshInterval = strings.TrimSpace(*runtime.NormalRefreshInterval)
	}
}

// SaveRuntimeConfig 持久化本机可调设置到旁路文件
func SaveRuntimeConfig(configPath string, cfg *models.Config) error {
	if cfg == nil {
		return nil
	}
	path := runtimeConfigPath(configPath)
	if path == "" {
		return nil
	}
	runtime := buildRuntimeConfig(cfg)
	data, err := yaml.Marshal(runtime)
	if err != nil {
		return fmt.Errorf("序列化运行时配置失败: %w", err)
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("写入运行时配置文件失败: %s: %w", path, err)
	}
	return nil
}

func buildRuntimeConfig(cfg *models.Config) *runtimeConfig {
	if cfg == nil {
		return nil
	}
	return &runtimeConfig{
		DataDir:               stringPtr(strings.TrimSpace(cfg.DataDir)),
		OperatorName:          stringPtr(strings.TrimSpace(cfg.OperatorName)),
		LogLevel:              stringPtr(strings.TrimSpace(cfg.LogLevel)),
		NotifyEnabled:         boolPtr(cfg.NotifyEnabled),
		FastRefreshInterval:   stringPtr(strings.TrimSpace(cfg.FastRefreshInterval)),
		NormalRefreshInterval: stringPtr(strings.TrimSpace(cfg.NormalRefreshInterval)),
	}
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, "manifest-config-*.tmp")
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

func stringPtr(value string) *string {
	return &value
}

func boolPtr(value bool) *bool {
	return &value
}
