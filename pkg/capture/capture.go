// Package capture 提供截图来源
//
// 本地屏幕、远程设备和图像文件都实现 FrameSource，返回统一的 Frame。
// 失败时返回 *CaptureFailure，Reason 用于决定是否回退到其他来源。
package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/zoeyai/framelocator/pkg/vision/cv"
)

// SourceKind 截图来源类型
type SourceKind int

const (
	SourceNone SourceKind = iota
	SourceLocal
	SourceRemote
	SourceFile
)

func (k SourceKind) String() string {
	switch k {
	case SourceLocal:
		return "local"
	case SourceRemote:
		return "remote"
	case SourceFile:
		return "file"
	default:
		return "none"
	}
}

// Reason 截图失败原因
type Reason string

const (
	ReasonNotConnected     Reason = "not-connected"
	ReasonTimeout          Reason = "timeout"
	ReasonMalformedPayload Reason = "malformed-payload"
	ReasonBackendError     Reason = "backend-error"
	ReasonEmptyRegion      Reason = "empty-region"
)

// CaptureFailure 截图失败，可恢复
type CaptureFailure struct {
	Source SourceKind
	Reason Reason
	Err    error
}

func (e *CaptureFailure) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("截图失败 [%s/%s]", e.Source, e.Reason)
	}
	return fmt.Sprintf("截图失败 [%s/%s]: %v", e.Source, e.Reason, e.Err)
}

func (e *CaptureFailure) Unwrap() error {
	return e.Err
}

// AsCaptureFailure 提取 *CaptureFailure
func AsCaptureFailure(err error) (*CaptureFailure, bool) {
	var cf *CaptureFailure
	if errors.As(err, &cf) {
		return cf, true
	}
	return nil, false
}

func failure(source SourceKind, reason Reason, err error) *CaptureFailure {
	return &CaptureFailure{Source: source, Reason: reason, Err: err}
}

// Frame 一次截图
// Origin 为 Mat 左上角在完整屏幕上的坐标，裁剪后不为 0
// ScaleX/ScaleY 为截图像素与屏幕坐标之比，高 DPI 屏幕上为 2 等，0 视为 1
type Frame struct {
	Mat    gocv.Mat
	Source SourceKind
	Origin image.Point
	ScaleX float64
	ScaleY float64
}

// ToSurface 将截图中的框换算为完整画面坐标（反向缩放 + 偏移）
func (f *Frame) ToSurface(b cv.Box) cv.Box {
	x0, y0 := scaleCoord(b.Left, f.ScaleX), scaleCoord(b.Top, f.ScaleY)
	x1, y1 := scaleCoord(b.Left+b.Width, f.ScaleX), scaleCoord(b.Top+b.Height, f.ScaleY)
	return cv.Box{
		Left:   x0 + f.Origin.X,
		Top:    y0 + f.Origin.Y,
		Width:  x1 - x0,
		Height: y1 - y0,
	}
}

// PointToSurface 将截图中的点换算为完整画面坐标
func (f *Frame) PointToSurface(x, y int) cv.Point {
	return cv.Point{
		X: scaleCoord(x, f.ScaleX) + f.Origin.X,
		Y: scaleCoord(y, f.ScaleY) + f.Origin.Y,
	}
}

func scaleCoord(v int, scale float64) int {
	if scale <= 0 || scale == 1 {
		return v
	}
	return int(math.Round(float64(v) / scale))
}

// Width 截图宽度
func (f *Frame) Width() int { return f.Mat.Cols() }

// Height 截图高度
func (f *Frame) Height() int { return f.Mat.Rows() }

// Close 释放图像
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// FrameSource 截图来源
type FrameSource interface {
	// Capture 截取一帧，region 为 nil 时截取完整画面
	// 失败时返回 *CaptureFailure
	Capture(ctx context.Context, region *cv.Region) (*Frame, error)
}

// RemoteSource 需要连接的远程截图来源
type RemoteSource interface {
	FrameSource
	IsConnected() bool
}

// frameFromMat 按区域裁剪完整画面，mat 的所有权转移给返回的 Frame
func frameFromMat(mat gocv.Mat, region *cv.Region, source SourceKind) (*Frame, error) {
	if mat.Empty() {
		mat.Close()
		return nil, failure(source, ReasonMalformedPayload, errors.New("截图为空"))
	}
	if region == nil {
		return &Frame{Mat: mat, Source: source}, nil
	}

	crop, rect, ok := cv.CropRegion(mat, *region)
	mat.Close()
	if !ok {
		return nil, failure(source, ReasonEmptyRegion, fmt.Errorf("区域 %s 不在画面内", region))
	}
	return &Frame{Mat: crop, Source: source, Origin: rect.Min}, nil
}
