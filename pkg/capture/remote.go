package capture

import (
	"context"
	"errors"
	"sync"

	"github.com/zoeyai/framelocator/pkg/remote"
	"github.com/zoeyai/framelocator/pkg/vision/cv"
)

// RemoteSurfaceSource 从远程设备通道截图
// 同一时刻只有一个截图请求经过通道
type RemoteSurfaceSource struct {
	mu      sync.Mutex
	channel remote.Channel
}

// NewRemoteSource 包装远程通道
func NewRemoteSource(ch remote.Channel) *RemoteSurfaceSource {
	return &RemoteSurfaceSource{channel: ch}
}

// IsConnected 通道是否可用
func (s *RemoteSurfaceSource) IsConnected() bool {
	return s.channel.IsConnected()
}

// Capture 获取完整截图后按区域裁剪
func (s *RemoteSurfaceSource) Capture(ctx context.Context, region *cv.Region) (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.channel.IsConnected() {
		return nil, failure(SourceRemote, ReasonNotConnected, remote.ErrNotConnected)
	}

	img, err := s.channel.TakeScreenshot(ctx)
	if err != nil {
		return nil, failure(SourceRemote, remoteReason(err), err)
	}

	mat, err := cv.ImageToMat(img)
	if err != nil {
		return nil, failure(SourceRemote, ReasonMalformedPayload, err)
	}
	return frameFromMat(mat, region, SourceRemote)
}

// remoteReason 将通道错误映射为失败原因
func remoteReason(err error) Reason {
	switch {
	case errors.Is(err, remote.ErrNotConnected):
		return ReasonNotConnected
	case errors.Is(err, remote.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, remote.ErrMalformedPayload):
		return ReasonMalformedPayload
	default:
		return ReasonBackendError
	}
}
