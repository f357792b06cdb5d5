// Package locator 在截图中查找模板图像
//
// 每次查找的流程：
//
//	选择截图来源 -> 截图 -> 多尺度匹配 -> 命中则返回，否则短暂等待后重试，直到时间用完
//
// 配置了远程设备且已连接时优先使用远程截图，失败后在同一次尝试内改用本地截图。
// 只有模板加载失败会作为错误返回，截图失败和未命中都以 nil 结果表示。
package locator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/zoeyai/framelocator/internal/logger"
	"github.com/zoeyai/framelocator/pkg/capture"
	"github.com/zoeyai/framelocator/pkg/config"
	"github.com/zoeyai/framelocator/pkg/vision/cv"
)

// Locator 模板定位器
type Locator struct {
	cfg    *config.LocatorConfig
	local  capture.FrameSource
	remote capture.RemoteSource
	log    *logger.Logger
	debug  *cv.DebugRecorder

	mu             sync.Mutex
	lastSource     capture.SourceKind
	remoteFailures int
	degraded       bool
}

// New 创建定位器
// cfg 为 nil 时使用默认配置；remote 为 nil 时只使用本地截图
func New(cfg *config.LocatorConfig, local capture.FrameSource, remote capture.RemoteSource, opts ...Option) *Locator {
	if cfg == nil {
		cfg = config.DefaultLocatorConfig()
	} else {
		cfg = cfg.Clone()
		cfg.Validate()
	}

	l := &Locator{
		cfg:    cfg,
		local:  local,
		remote: remote,
		log:    logger.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.With("locator")

	if cfg.SaveDebugImages && l.debug == nil {
		l.debug = cv.NewDebugRecorder(cfg.DebugDir, l.log)
	}
	return l
}

// Config 返回定位器使用的配置副本
func (l *Locator) Config() *config.LocatorConfig {
	return l.cfg.Clone()
}

// LastSource 最近一次成功截图的来源
func (l *Locator) LastSource() capture.SourceKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSource
}

// Degraded 远程截图是否已因连续失败被停用
func (l *Locator) Degraded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.degraded
}

// DebugRecorder 调试图像记录器，未启用时为 nil
func (l *Locator) DebugRecorder() *cv.DebugRecorder {
	return l.debug
}

func (l *Locator) searchOptions(opts ...SearchOption) *SearchOptions {
	o := &SearchOptions{
		Confidence:    l.cfg.Confidence,
		Scales:        l.cfg.Scales,
		DedupDistance: l.cfg.DedupDistance,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Locate 查找模板，返回命中位置的中心点（屏幕绝对坐标）
// 超时未命中返回 nil, nil
func (l *Locator) Locate(ctx context.Context, templatePath string, opts ...SearchOption) (*cv.Point, error) {
	c, err := l.Find(ctx, templatePath, opts...)
	if err != nil || c == nil {
		return nil, err
	}
	center := c.Box().Center()
	return &center, nil
}

// LocateBox 查找模板，返回命中的完整匹配框（屏幕绝对坐标）
func (l *Locator) LocateBox(ctx context.Context, templatePath string, opts ...SearchOption) (*cv.Box, error) {
	c, err := l.Find(ctx, templatePath, opts...)
	if err != nil || c == nil {
		return nil, err
	}
	box := c.Box()
	return &box, nil
}

// Find 查找模板，返回带置信度和缩放系数的候选（屏幕绝对坐标）
func (l *Locator) Find(ctx context.Context, templatePath string, opts ...SearchOption) (*cv.MatchCandidate, error) {
	o := l.searchOptions(opts...)
	start := time.Now()
	name := filepath.Base(templatePath)

	tmpl, err := cv.LoadTemplate(templatePath)
	if err != nil {
		l.log.LogEvent("FIND", false, time.Since(start), fmt.Sprintf("%s | %v", name, err))
		return nil, err
	}
	defer tmpl.Close()

	interval := time.Duration(l.cfg.RetryIntervalMs) * time.Millisecond
	tryRemote := true
	attempts := 0

	for {
		attempts++
		if c := l.attempt(ctx, tmpl, name, o, &tryRemote); c != nil {
			l.log.LogEvent("FIND", true, time.Since(start),
				fmt.Sprintf("%s | %s | conf=%.3f scale=%.2f | %s | 第 %d 次", name, c.Box(), c.Confidence, c.Scale, l.LastSource(), attempts))
			return c, nil
		}

		remaining := o.MinSearchTime - time.Since(start)
		if remaining <= 0 {
			break
		}
		if !sleep(ctx, min(interval, remaining)) {
			l.log.Debug("查找被取消: %s", name)
			break
		}
	}

	l.log.LogEvent("FIND", false, time.Since(start),
		fmt.Sprintf("%s | 未找到 | 阈值 %.2f | 尝试 %d 次", name, o.Confidence, attempts))
	return nil, nil
}

// attempt 截图并匹配一次，未命中返回 nil
func (l *Locator) attempt(ctx context.Context, tmpl *cv.Template, name string, o *SearchOptions, tryRemote *bool) *cv.MatchCandidate {
	frame, err := l.capture(ctx, o.Region, tryRemote)
	if err != nil {
		l.log.Debug("截图失败: %v", err)
		return nil
	}
	defer frame.Close()

	c := cv.LocateBest(tmpl.Mat, frame.Mat, o.Scales, 0)
	if c == nil {
		return nil
	}
	l.log.Debug("%s 最佳匹配 %.3f (scale=%.2f)", name, c.Confidence, c.Scale)
	if c.Confidence < o.Confidence {
		return nil
	}

	if l.debug != nil {
		l.debug.Record(name, frame.Mat, tmpl.Mat, c.Box(), c.Confidence)
	}

	box := frame.ToSurface(c.Box())
	c.X, c.Y, c.Width, c.Height = box.Left, box.Top, box.Width, box.Height
	return c
}

// LocateAll 截图一次，返回所有不低于阈值的匹配框（去重后，屏幕绝对坐标）
//
// 只在原始尺寸下匹配。截图失败返回空列表。
func (l *Locator) LocateAll(ctx context.Context, templatePath string, opts ...SearchOption) ([]cv.Box, error) {
	o := l.searchOptions(opts...)
	start := time.Now()
	name := filepath.Base(templatePath)

	tmpl, err := cv.LoadTemplate(templatePath)
	if err != nil {
		l.log.LogEvent("ALL", false, time.Since(start), fmt.Sprintf("%s | %v", name, err))
		return nil, err
	}
	defer tmpl.Close()

	tryRemote := true
	frame, err := l.capture(ctx, o.Region, &tryRemote)
	if err != nil {
		l.log.LogEvent("ALL", false, time.Since(start), fmt.Sprintf("%s | %v", name, err))
		return []cv.Box{}, nil
	}
	defer frame.Close()

	candidates := cv.FindAll(tmpl.Mat, frame.Mat, o.Confidence)
	boxes := cv.Deduplicate(cv.CandidatesToBoxes(candidates), o.DedupDistance)
	result := make([]cv.Box, 0, len(boxes))
	for _, b := range boxes {
		result = append(result, frame.ToSurface(b))
	}

	l.log.LogEvent("ALL", len(result) > 0, time.Since(start),
		fmt.Sprintf("%s | %d 个候选 -> %d 个 | 阈值 %.2f | %s", name, len(candidates), len(result), o.Confidence, frame.Source))
	return result, nil
}

// capture 按优先级截图：远程可用时先用远程，失败后改用本地
// 远程失败后 tryRemote 置为 false，同一次查找的后续尝试直接使用本地截图
func (l *Locator) capture(ctx context.Context, region *cv.Region, tryRemote *bool) (*capture.Frame, error) {
	if *tryRemote && l.remoteAvailable() {
		frame, err := l.remote.Capture(ctx, region)
		if err == nil {
			l.remoteSucceeded()
			return frame, nil
		}
		l.remoteFailed(err)
		*tryRemote = false
	}

	if l.local == nil {
		return nil, &capture.CaptureFailure{
			Source: capture.SourceLocal,
			Reason: capture.ReasonBackendError,
			Err:    errors.New("未配置本地截图来源"),
		}
	}

	frame, err := l.local.Capture(ctx, region)
	if err != nil {
		return nil, err
	}
	l.setLastSource(frame.Source)
	return frame, nil
}

// remoteAvailable 远程截图是否启用、未降级且已连接
func (l *Locator) remoteAvailable() bool {
	if !l.cfg.UsePhone || l.remote == nil || l.Degraded() {
		return false
	}
	return l.remote.IsConnected()
}

func (l *Locator) remoteSucceeded() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteFailures = 0
	l.lastSource = capture.SourceRemote
}

func (l *Locator) remoteFailed(err error) {
	// 区域落在画面外不是通道问题，不计入失败次数
	if cf, ok := capture.AsCaptureFailure(err); ok && cf.Reason == capture.ReasonEmptyRegion {
		l.log.Debug("远程截图区域无效: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.remoteFailures++
	l.log.Debug("远程截图失败 (连续 %d 次)，改用本地截图: %v", l.remoteFailures, err)

	limit := l.cfg.RemoteFailureLimit
	if limit > 0 && l.remoteFailures >= limit && !l.degraded {
		l.degraded = true
		l.log.Warn("远程截图连续失败 %d 次，之后只使用本地截图", l.remoteFailures)
	}
}

func (l *Locator) setLastSource(k capture.SourceKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastSource = k
}

// sleep 等待 d，ctx 结束时返回 false
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
