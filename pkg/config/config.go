// Package config 提供定位器配置的加载与保存
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// 本地截图后端
const (
	BackendRobotgo    = "robotgo"
	BackendScreenshot = "screenshot"
)

// 远程通道驱动
const (
	DriverADB       = "adb"
	DriverWebSocket = "ws"
	DriverGRPC      = "grpc"
)

// LocalConfig 本地屏幕截图配置
type LocalConfig struct {
	// Backend 截图后端: robotgo / screenshot
	Backend string `json:"backend" yaml:"backend"`
	// Display 显示器序号，-1 表示所有显示器的并集（仅 screenshot 后端）
	Display int `json:"display" yaml:"display"`
}

// RemoteConfig 远程设备通道配置
type RemoteConfig struct {
	// Driver 通道驱动: adb / ws / grpc
	Driver string `json:"driver" yaml:"driver"`
	// ADBPath adb 可执行文件路径
	ADBPath string `json:"adbPath,omitempty" yaml:"adbPath,omitempty"`
	// Device 设备序列号 (adb -s)
	Device string `json:"device,omitempty" yaml:"device,omitempty"`
	// URL ws/grpc 代理地址
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
	// TimeoutMs 单次截图超时（毫秒）
	TimeoutMs int `json:"timeoutMs" yaml:"timeoutMs"`
	// EmulatorProcess 非空时要求该模拟器进程存在才认为已连接
	EmulatorProcess string `json:"emulatorProcess,omitempty" yaml:"emulatorProcess,omitempty"`
}

// LocatorConfig 定位器配置
type LocatorConfig struct {
	// UsePhone 优先使用远程设备截图
	UsePhone bool `json:"usePhone" yaml:"usePhone"`
	// Confidence 默认置信度阈值
	Confidence float64 `json:"confidence" yaml:"confidence"`
	// RetryIntervalMs 两次尝试之间的等待（毫秒）
	RetryIntervalMs int `json:"retryIntervalMs" yaml:"retryIntervalMs"`
	// Scales 多尺度搜索的缩放系数，按顺序尝试
	Scales []float64 `json:"scales" yaml:"scales"`
	// DedupDistance 去重的中心距离
	DedupDistance int `json:"dedupDistance" yaml:"dedupDistance"`
	// RemoteFailureLimit 连续远程失败多少次后本进程内改用本地截图，0 表示不降级
	RemoteFailureLimit int `json:"remoteFailureLimit" yaml:"remoteFailureLimit"`
	// SaveDebugImages 命中时保存调试图像
	SaveDebugImages bool `json:"saveDebugImages" yaml:"saveDebugImages"`
	// DebugDir 调试图像目录
	DebugDir string `json:"debugDir" yaml:"debugDir"`
	// LogLevel 日志级别
	LogLevel string `json:"logLevel" yaml:"logLevel"`

	Local  LocalConfig  `json:"local" yaml:"local"`
	Remote RemoteConfig `json:"remote" yaml:"remote"`
}

// DefaultScales 默认缩放系数
func DefaultScales() []float64 {
	return []float64{0.8, 0.9, 1.0, 1.1, 1.2}
}

// DefaultLocatorConfig 默认配置
func DefaultLocatorConfig() *LocatorConfig {
	return &LocatorConfig{
		UsePhone:           false,
		Confidence:         0.8,
		RetryIntervalMs:    50,
		Scales:             DefaultScales(),
		DedupDistance:      5,
		RemoteFailureLimit: 3,
		SaveDebugImages:    false,
		DebugDir:           "debug_images",
		LogLevel:           "info",
		Local: LocalConfig{
			Backend: BackendRobotgo,
			Display: -1,
		},
		Remote: RemoteConfig{
			Driver:    DriverADB,
			ADBPath:   "adb",
			TimeoutMs: 5000,
		},
	}
}

// Validate 修正不合理的取值
func (c *LocatorConfig) Validate() {
	def := DefaultLocatorConfig()

	if c.Confidence <= 0 || c.Confidence > 1 {
		c.Confidence = def.Confidence
	}
	if c.RetryIntervalMs <= 0 {
		c.RetryIntervalMs = def.RetryIntervalMs
	}
	scales := c.Scales[:0:0]
	for _, s := range c.Scales {
		if s > 0 {
			scales = append(scales, s)
		}
	}
	if len(scales) == 0 {
		scales = def.Scales
	}
	c.Scales = scales
	if c.DedupDistance < 0 {
		c.DedupDistance = def.DedupDistance
	}
	if c.RemoteFailureLimit < 0 {
		c.RemoteFailureLimit = 0
	}
	if c.DebugDir == "" {
		c.DebugDir = def.DebugDir
	}
	if c.Local.Backend != BackendScreenshot {
		c.Local.Backend = BackendRobotgo
	}
	switch c.Remote.Driver {
	case DriverADB, DriverWebSocket, DriverGRPC:
	default:
		c.Remote.Driver = DriverADB
	}
	if c.Remote.ADBPath == "" {
		c.Remote.ADBPath = def.Remote.ADBPath
	}
	if c.Remote.TimeoutMs <= 0 {
		c.Remote.TimeoutMs = def.Remote.TimeoutMs
	}
}

// Clone 深拷贝
func (c *LocatorConfig) Clone() *LocatorConfig {
	cp := *c
	cp.Scales = append([]float64(nil), c.Scales...)
	return &cp
}

// Manager 配置管理器
type Manager struct {
	configDir  string
	configFile string
	mu         sync.RWMutex
}

// NewManager 创建配置管理器，配置位于 ~/.framelocator/config.json
func NewManager() *Manager {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return NewManagerWithDir(filepath.Join(homeDir, ".framelocator"))
}

// NewManagerWithDir 使用指定目录创建配置管理器
func NewManagerWithDir(configDir string) *Manager {
	return &Manager{
		configDir:  configDir,
		configFile: filepath.Join(configDir, "config.json"),
	}
}

// NewManagerWithFile 使用指定配置文件，.yaml/.yml 按 YAML 解析，其余按 JSON
func NewManagerWithFile(path string) *Manager {
	return &Manager{
		configDir:  filepath.Dir(path),
		configFile: path,
	}
}

func (m *Manager) isYAML() bool {
	ext := strings.ToLower(filepath.Ext(m.configFile))
	return ext == ".yaml" || ext == ".yml"
}

// Load 加载配置，文件不存在时返回默认配置
func (m *Manager) Load() (*LocatorConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return DefaultLocatorConfig(), nil
	}

	data, err := os.ReadFile(m.configFile)
	if err != nil {
		return DefaultLocatorConfig(), fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 在默认值基础上解析，文件中缺省的字段保持默认
	cfg := DefaultLocatorConfig()
	if m.isYAML() {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return DefaultLocatorConfig(), fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.Validate()
	return cfg, nil
}

// Save 保存配置
func (m *Manager) Save(cfg *LocatorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("创建配置目录失败: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if m.isYAML() {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(m.configFile, data, 0600); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// Clear 删除配置文件
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.configFile); os.IsNotExist(err) {
		return nil
	}
	return os.Remove(m.configFile)
}

// GetConfigDir 获取配置目录
func (m *Manager) GetConfigDir() string {
	return m.configDir
}

// GetConfigFile 获取配置文件路径
func (m *Manager) GetConfigFile() string {
	return m.configFile
}

// Exists 检查配置文件是否存在
func (m *Manager) Exists() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, err := os.Stat(m.configFile)
	return err == nil
}

var defaultManager = NewManager()

// GetDefaultManager 获取默认配置管理器
func GetDefaultManager() *Manager {
	return defaultManager
}

// Load 使用默认管理器加载配置
func Load() (*LocatorConfig, error) {
	return defaultManager.Load()
}

// Save 使用默认管理器保存配置
func Save(cfg *LocatorConfig) error {
	return defaultManager.Save(cfg)
}

// Clear 使用默认管理器清除配置
func Clear() error {
	return defaultManager.Clear()
}
