package remote

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zoeyai/framelocator/pkg/config"
)

// WsScreenshotRequest 截图请求
type WsScreenshotRequest struct {
	Type      string `json:"type"`
	RequestId string `json:"requestId"`
}

// WsScreenshotResponse 截图响应，Data 为 base64 编码的图像文件
type WsScreenshotResponse struct {
	Type      string `json:"type"`
	RequestId string `json:"requestId"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Format    string `json:"format,omitempty"`
	Data      []byte `json:"data,omitempty"`
}

const wsTypeScreenshot = "screenshot"

// WSChannel 通过 WebSocket 向设备代理请求截图
type WSChannel struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer

	// mu 串行化截图请求
	mu sync.Mutex

	connMu sync.RWMutex
	conn   *websocket.Conn

	seq atomic.Uint64
}

// NewWSChannel 创建 WebSocket 通道，需调用 Connect 建立连接
func NewWSChannel(cfg config.RemoteConfig) *WSChannel {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WSChannel{
		url:     cfg.URL,
		timeout: timeout,
		dialer: &websocket.Dialer{
			HandshakeTimeout: timeout,
		},
	}
}

// Connect 建立连接，已连接时先关闭旧连接
func (c *WSChannel) Connect(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("连接设备代理失败: %w", err)
	}

	c.connMu.Lock()
	old := c.conn
	c.conn = conn
	c.connMu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// IsConnected 连接是否存在
func (c *WSChannel) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn != nil
}

// drop 关闭出错的连接，之后 IsConnected 返回 false
func (c *WSChannel) drop(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.connMu.Unlock()
	conn.Close()
}

// TakeScreenshot 发送截图请求并等待对应的响应
func (c *WSChannel) TakeScreenshot(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	req := WsScreenshotRequest{
		Type:      wsTypeScreenshot,
		RequestId: strconv.FormatUint(c.seq.Add(1), 10),
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(req); err != nil {
		c.drop(conn)
		return nil, classifyNetError("发送截图请求失败", err)
	}

	conn.SetReadDeadline(deadline)
	for {
		var resp WsScreenshotResponse
		if err := conn.ReadJSON(&resp); err != nil {
			// gorilla 连接读错误后不可再用
			c.drop(conn)
			return nil, classifyNetError("读取截图响应失败", err)
		}
		// 丢弃上一次超时请求的迟到响应
		if resp.Type != wsTypeScreenshot || resp.RequestId != req.RequestId {
			continue
		}
		if !resp.Success {
			return nil, fmt.Errorf("设备代理截图失败: %s", resp.Message)
		}
		return DecodePayload(resp.Data)
	}
}

// Close 关闭连接
func (c *WSChannel) Close() error {
	c.connMu.Lock()
	conn := c.conn
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return conn.Close()
}

func classifyNetError(msg string, err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %s: %v", ErrTimeout, msg, err)
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return fmt.Errorf("%w: %s: %v", ErrNotConnected, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
