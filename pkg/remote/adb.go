package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"github.com/zoeyai/framelocator/pkg/cmdutil"
	"github.com/zoeyai/framelocator/pkg/config"
	"github.com/zoeyai/framelocator/pkg/process"
)

const (
	// stateTTL get-state 结果的缓存时间
	stateTTL = 2 * time.Second
	// stateTimeout get-state 的超时，在查找循环中调用，不使用截图超时
	stateTimeout = time.Second
)

// ADBChannel 通过 adb 截图
type ADBChannel struct {
	path     string
	device   string
	emulator string
	timeout  time.Duration

	mu sync.Mutex

	stateMu   sync.Mutex
	lastCheck time.Time
	lastState bool
}

// NewADBChannel 创建 adb 通道
func NewADBChannel(cfg config.RemoteConfig) *ADBChannel {
	path := cfg.ADBPath
	if path == "" {
		path = "adb"
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ADBChannel{
		path:     path,
		device:   cfg.Device,
		emulator: cfg.EmulatorProcess,
		timeout:  timeout,
	}
}

func (c *ADBChannel) args(extra ...string) []string {
	if c.device == "" {
		return extra
	}
	return append([]string{"-s", c.device}, extra...)
}

// Connect 对网络设备 (host:port) 执行 adb connect
func (c *ADBChannel) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !strings.Contains(c.device, ":") {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	output, err := cmdutil.CommandContext(ctx, c.path, "connect", c.device).CombinedOutput()
	if err != nil {
		return fmt.Errorf("连接设备 %s 失败: %w, 输出: %s", c.device, err, output)
	}
	if !strings.Contains(string(output), "connected") {
		return fmt.Errorf("连接设备 %s 输出异常: %s", c.device, output)
	}

	c.invalidate()
	return nil
}

// IsConnected 设备状态为 device 时返回 true，结果缓存 2 秒
// 配置了模拟器进程名时还要求该进程存在
func (c *ADBChannel) IsConnected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if !c.lastCheck.IsZero() && time.Since(c.lastCheck) < stateTTL {
		return c.lastState
	}

	c.lastState = c.checkState()
	c.lastCheck = time.Now()
	return c.lastState
}

func (c *ADBChannel) checkState() bool {
	if c.emulator != "" {
		running, err := process.IsRunning(c.emulator)
		if err != nil || !running {
			return false
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), min(stateTimeout, c.timeout))
	defer cancel()

	cmd := cmdutil.CommandContext(ctx, c.path, c.args("get-state")...)
	cmd.WaitDelay = 200 * time.Millisecond
	out, err := cmd.Output()
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(out)) == "device"
}

func (c *ADBChannel) invalidate() {
	c.stateMu.Lock()
	c.lastCheck = time.Time{}
	c.stateMu.Unlock()
}

// TakeScreenshot 执行 adb exec-out screencap -p 并解码 PNG
func (c *ADBChannel) TakeScreenshot(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var stderr bytes.Buffer
	cmd := cmdutil.CommandContext(ctx, c.path, c.args("exec-out", "screencap", "-p")...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = 500 * time.Millisecond

	out, err := cmd.Output()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.invalidate()
		return nil, fmt.Errorf("%w: adb screencap 超过 %s", ErrTimeout, c.timeout)
	}
	if err != nil {
		c.invalidate()
		return nil, fmt.Errorf("adb screencap 失败: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	return DecodePayload(out)
}

// Close adb 通道无常驻连接
func (c *ADBChannel) Close() error {
	return nil
}
