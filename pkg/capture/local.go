package capture

import (
	"context"
	"fmt"
	"image"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"

	"github.com/zoeyai/framelocator/pkg/config"
	"github.com/zoeyai/framelocator/pkg/vision/cv"
)

// screenBackend 本地截图后端
type screenBackend interface {
	Name() string
	// Bounds 可截取的屏幕范围
	Bounds() image.Rectangle
	// Grab 截取 rect 范围，rect 已在 Bounds 内
	Grab(rect image.Rectangle) (image.Image, error)
}

// robotgoBackend 使用 robotgo 截取主屏幕
type robotgoBackend struct{}

func (robotgoBackend) Name() string { return config.BackendRobotgo }

func (robotgoBackend) Bounds() image.Rectangle {
	w, h := robotgo.GetScreenSize()
	return image.Rect(0, 0, w, h)
}

func (robotgoBackend) Grab(rect image.Rectangle) (image.Image, error) {
	return robotgo.CaptureImg(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy())
}

// screenshotBackend 使用 kbinani/screenshot，支持多显示器
type screenshotBackend struct {
	display int
}

func (screenshotBackend) Name() string { return config.BackendScreenshot }

func (b screenshotBackend) Bounds() image.Rectangle {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return image.Rectangle{}
	}
	if b.display >= 0 && b.display < n {
		return screenshot.GetDisplayBounds(b.display)
	}

	union := screenshot.GetDisplayBounds(0)
	for i := 1; i < n; i++ {
		union = union.Union(screenshot.GetDisplayBounds(i))
	}
	return union
}

func (screenshotBackend) Grab(rect image.Rectangle) (image.Image, error) {
	img, err := screenshot.CaptureRect(rect)
	if err != nil {
		return nil, err
	}
	return img, nil
}

// LocalSource 本地屏幕截图
type LocalSource struct {
	backend screenBackend
}

// NewLocalSource 按配置选择截图后端
func NewLocalSource(cfg config.LocalConfig) *LocalSource {
	if cfg.Backend == config.BackendScreenshot {
		return &LocalSource{backend: screenshotBackend{display: cfg.Display}}
	}
	return &LocalSource{backend: robotgoBackend{}}
}

// Backend 后端名称
func (s *LocalSource) Backend() string {
	return s.backend.Name()
}

// Capture 截取屏幕或其中的区域，区域会被限制在屏幕范围内
func (s *LocalSource) Capture(ctx context.Context, region *cv.Region) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, failure(SourceLocal, ReasonBackendError, err)
	}

	bounds := s.backend.Bounds()
	if bounds.Empty() {
		return nil, failure(SourceLocal, ReasonBackendError, fmt.Errorf("%s: 未检测到显示器", s.backend.Name()))
	}

	rect := bounds
	if region != nil {
		rect = region.Rect().Intersect(bounds)
		if rect.Empty() {
			return nil, failure(SourceLocal, ReasonEmptyRegion, fmt.Errorf("区域 %s 不在屏幕 %v 内", region, bounds))
		}
	}

	img, err := s.backend.Grab(rect)
	if err != nil {
		return nil, failure(SourceLocal, ReasonBackendError, fmt.Errorf("%s 截屏失败: %w", s.backend.Name(), err))
	}
	if img == nil || img.Bounds().Empty() {
		return nil, failure(SourceLocal, ReasonBackendError, fmt.Errorf("%s 返回空图像", s.backend.Name()))
	}

	mat, err := cv.ImageToMat(img)
	if err != nil {
		return nil, failure(SourceLocal, ReasonBackendError, err)
	}

	// 高 DPI 屏幕上截图为物理像素，rect 为屏幕坐标
	size := img.Bounds().Size()
	return &Frame{
		Mat:    mat,
		Source: SourceLocal,
		Origin: rect.Min,
		ScaleX: float64(size.X) / float64(rect.Dx()),
		ScaleY: float64(size.Y) / float64(rect.Dy()),
	}, nil
}
