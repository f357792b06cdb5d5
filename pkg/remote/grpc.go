package remote

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/zoeyai/framelocator/pkg/config"
)

// DeviceScreenshotMethod 设备代理截图方法的完整名称
const DeviceScreenshotMethod = "/framelocator.Device/Screenshot"

// DeviceServer 设备代理需要实现的服务
// Screenshot 返回编码后的图像文件（PNG/JPEG/BMP/WebP）
type DeviceServer interface {
	Screenshot(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
}

// RegisterDeviceServer 在 gRPC 服务器上注册设备代理
func RegisterDeviceServer(s grpc.ServiceRegistrar, srv DeviceServer) {
	s.RegisterService(&deviceServiceDesc, srv)
}

func deviceScreenshotHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DeviceServer).Screenshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: DeviceScreenshotMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DeviceServer).Screenshot(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

var deviceServiceDesc = grpc.ServiceDesc{
	ServiceName: "framelocator.Device",
	HandlerType: (*DeviceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Screenshot",
			Handler:    deviceScreenshotHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "framelocator/device.proto",
}

// GRPCChannel 通过 gRPC 向设备代理请求截图
// 连接状态由标准健康检查服务判断
type GRPCChannel struct {
	conn    *grpc.ClientConn
	health  healthpb.HealthClient
	timeout time.Duration

	mu sync.Mutex

	stateMu   sync.Mutex
	lastCheck time.Time
	lastState bool
}

// NewGRPCChannel 创建 gRPC 通道，连接在第一次调用时建立
func NewGRPCChannel(cfg config.RemoteConfig, opts ...grpc.DialOption) (*GRPCChannel, error) {
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(cfg.URL, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("创建 gRPC 连接失败: %w", err)
	}

	return &GRPCChannel{
		conn:    conn,
		health:  healthpb.NewHealthClient(conn),
		timeout: timeout,
	}, nil
}

// IsConnected 健康检查返回 SERVING 时为 true，结果缓存 2 秒
func (c *GRPCChannel) IsConnected() bool {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if !c.lastCheck.IsZero() && time.Since(c.lastCheck) < stateTTL {
		return c.lastState
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	resp, err := c.health.Check(ctx, &healthpb.HealthCheckRequest{})
	c.lastState = err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	c.lastCheck = time.Now()
	return c.lastState
}

func (c *GRPCChannel) invalidate() {
	c.stateMu.Lock()
	c.lastCheck = time.Time{}
	c.stateMu.Unlock()
}

// TakeScreenshot 调用 Screenshot 并解码返回的图像
func (c *GRPCChannel) TakeScreenshot(ctx context.Context) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, DeviceScreenshotMethod, &emptypb.Empty{}, out); err != nil {
		return nil, c.classify(err)
	}
	return DecodePayload(out.GetValue())
}

func (c *GRPCChannel) classify(err error) error {
	switch status.Code(err) {
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case codes.Unavailable:
		c.invalidate()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	default:
		return fmt.Errorf("gRPC 截图失败: %w", err)
	}
}

// Close 关闭连接
func (c *GRPCChannel) Close() error {
	return c.conn.Close()
}
