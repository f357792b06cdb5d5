package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// 环境变量名
const (
	EnvUsePhone        = "FRAMELOCATOR_USE_PHONE"
	EnvConfidence      = "FRAMELOCATOR_CONFIDENCE"
	EnvRetryIntervalMs = "FRAMELOCATOR_RETRY_INTERVAL_MS"
	EnvScales          = "FRAMELOCATOR_SCALES"
	EnvDedupDistance   = "FRAMELOCATOR_DEDUP_DISTANCE"
	EnvSaveDebugImages = "FRAMELOCATOR_SAVE_DEBUG_IMAGES"
	EnvDebugDir        = "FRAMELOCATOR_DEBUG_DIR"
	EnvLogLevel        = "FRAMELOCATOR_LOG_LEVEL"
	EnvLocalBackend    = "FRAMELOCATOR_LOCAL_BACKEND"
	EnvRemoteDriver    = "FRAMELOCATOR_REMOTE_DRIVER"
	EnvADBPath         = "FRAMELOCATOR_ADB_PATH"
	EnvDevice          = "FRAMELOCATOR_DEVICE"
	EnvRemoteURL       = "FRAMELOCATOR_REMOTE_URL"
)

// LoadDotEnv 加载 .env 文件到进程环境变量，已存在的环境变量不会被覆盖
// 文件不存在时不报错
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}
	return nil
}

// ApplyEnv 用 FRAMELOCATOR_* 环境变量覆盖配置
// 无法解析的值会被跳过，并在返回的错误中汇总
func (c *LocatorConfig) ApplyEnv() error {
	var bad []string

	if v, ok := os.LookupEnv(EnvUsePhone); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.UsePhone = b
		} else {
			bad = append(bad, EnvUsePhone)
		}
	}
	if v, ok := os.LookupEnv(EnvConfidence); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Confidence = f
		} else {
			bad = append(bad, EnvConfidence)
		}
	}
	if v, ok := os.LookupEnv(EnvRetryIntervalMs); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.RetryIntervalMs = n
		} else {
			bad = append(bad, EnvRetryIntervalMs)
		}
	}
	if v, ok := os.LookupEnv(EnvScales); ok {
		if scales, err := ParseScales(v); err == nil {
			c.Scales = scales
		} else {
			bad = append(bad, EnvScales)
		}
	}
	if v, ok := os.LookupEnv(EnvDedupDistance); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.DedupDistance = n
		} else {
			bad = append(bad, EnvDedupDistance)
		}
	}
	if v, ok := os.LookupEnv(EnvSaveDebugImages); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.SaveDebugImages = b
		} else {
			bad = append(bad, EnvSaveDebugImages)
		}
	}

	strs := []struct {
		key string
		dst *string
	}{
		{EnvDebugDir, &c.DebugDir},
		{EnvLogLevel, &c.LogLevel},
		{EnvLocalBackend, &c.Local.Backend},
		{EnvRemoteDriver, &c.Remote.Driver},
		{EnvADBPath, &c.Remote.ADBPath},
		{EnvDevice, &c.Remote.Device},
		{EnvRemoteURL, &c.Remote.URL},
	}
	for _, s := range strs {
		if v, ok := os.LookupEnv(s.key); ok && v != "" {
			*s.dst = v
		}
	}

	c.Validate()

	if len(bad) > 0 {
		return fmt.Errorf("环境变量格式错误: %s", strings.Join(bad, ", "))
	}
	return nil
}

// ParseScales 解析逗号分隔的缩放系数，例如 "0.8,1.0,1.2"
func ParseScales(s string) ([]float64, error) {
	var scales []float64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		f, err := strconv.ParseFloat(part, 64)
		if err != nil || f <= 0 {
			return nil, fmt.Errorf("无效的缩放系数: %q", part)
		}
		scales = append(scales, f)
	}
	if len(scales) == 0 {
		return nil, fmt.Errorf("缩放系数为空")
	}
	return scales, nil
}

// LoadWithEnv 依次加载配置文件、.env 和环境变量
// 配置文件无效时在默认配置上继续应用 .env 和环境变量，错误合并返回
func (m *Manager) LoadWithEnv(dotEnvPath string) (*LocatorConfig, error) {
	cfg, loadErr := m.Load()
	dotErr := LoadDotEnv(dotEnvPath)
	envErr := cfg.ApplyEnv()
	return cfg, errors.Join(loadErr, dotErr, envErr)
}
