package locator

import (
	"time"

	"github.com/zoeyai/framelocator/internal/logger"
	"github.com/zoeyai/framelocator/pkg/vision/cv"
)

// Option Locator 构造选项
type Option func(*Locator)

// WithLogger 设置日志记录器
func WithLogger(log *logger.Logger) Option {
	return func(l *Locator) {
		if log != nil {
			l.log = log
		}
	}
}

// WithDebugRecorder 设置调试图像记录器，命中时保存截图
func WithDebugRecorder(r *cv.DebugRecorder) Option {
	return func(l *Locator) {
		l.debug = r
	}
}

// SearchOption 单次查找的配置选项
type SearchOption func(*SearchOptions)

// SearchOptions 单次查找的约束
type SearchOptions struct {
	// Confidence 置信度阈值 (0-1)
	Confidence float64
	// MinSearchTime 最短查找时间，也是实际的最长等待时间
	MinSearchTime time.Duration
	// Region 搜索区域 (nil 表示全屏)
	Region *cv.Region
	// Scales 缩放系数，按顺序尝试
	Scales []float64
	// DedupDistance LocateAll 的去重距离
	DedupDistance int
}

// WithConfidence 设置置信度阈值
func WithConfidence(c float64) SearchOption {
	return func(o *SearchOptions) {
		o.Confidence = c
	}
}

// WithMinSearchTime 设置最短查找时间
func WithMinSearchTime(d time.Duration) SearchOption {
	return func(o *SearchOptions) {
		o.MinSearchTime = d
	}
}

// WithRegion 设置搜索区域
func WithRegion(x, y, width, height int) SearchOption {
	return func(o *SearchOptions) {
		o.Region = &cv.Region{X: x, Y: y, Width: width, Height: height}
	}
}

// WithSearchRegion 设置搜索区域，nil 表示全屏
func WithSearchRegion(r *cv.Region) SearchOption {
	return func(o *SearchOptions) {
		o.Region = r
	}
}

// WithScales 设置缩放系数
func WithScales(scales ...float64) SearchOption {
	return func(o *SearchOptions) {
		if len(scales) > 0 {
			o.Scales = scales
		}
	}
}

// WithDedupDistance 设置 LocateAll 的去重距离
func WithDedupDistance(d int) SearchOption {
	return func(o *SearchOptions) {
		o.DedupDistance = d
	}
}
