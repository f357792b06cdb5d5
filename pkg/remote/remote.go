// Package remote 提供远程设备截图通道
//
// 支持三种驱动：
//   - adb: 通过 adb exec-out screencap 获取 PNG
//   - ws: 通过 WebSocket 向设备代理请求截图
//   - grpc: 通过 gRPC 调用设备代理的 Screenshot 方法
//
// 每个通道同一时刻只处理一个截图请求。
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/zoeyai/framelocator/pkg/config"
)

var (
	// ErrNotConnected 通道未连接
	ErrNotConnected = errors.New("远程设备未连接")
	// ErrTimeout 截图请求超时
	ErrTimeout = errors.New("远程截图超时")
	// ErrMalformedPayload 返回的数据无法解码为图像
	ErrMalformedPayload = errors.New("远程截图数据无效")
)

// Channel 远程设备控制通道
type Channel interface {
	// IsConnected 通道当前是否可用
	IsConnected() bool
	// TakeScreenshot 获取一张完整截图
	TakeScreenshot(ctx context.Context) (image.Image, error)
	// Close 释放连接
	Close() error
}

// Connector 需要显式建立连接的通道
type Connector interface {
	Connect(ctx context.Context) error
}

// DecodePayload 解码截图数据，支持 PNG/JPEG/BMP/WebP
func DecodePayload(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: 数据为空", ErrMalformedPayload)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: 图像尺寸为 0", ErrMalformedPayload)
	}
	return img, nil
}

// New 按配置创建通道
func New(cfg config.RemoteConfig) (Channel, error) {
	switch cfg.Driver {
	case config.DriverADB, "":
		return NewADBChannel(cfg), nil
	case config.DriverWebSocket:
		if cfg.URL == "" {
			return nil, fmt.Errorf("ws 驱动需要配置 url")
		}
		return NewWSChannel(cfg), nil
	case config.DriverGRPC:
		if cfg.URL == "" {
			return nil, fmt.Errorf("grpc 驱动需要配置 url")
		}
		ch, err := NewGRPCChannel(cfg)
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("不支持的远程驱动: %s", cfg.Driver)
	}
}
