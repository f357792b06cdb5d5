package cv

import (
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/corona10/goimagehash"
	"gocv.io/x/gocv"

	"github.com/zoeyai/framelocator/internal/logger"
)

// DebugRecorder 在后台保存命中时的截图（带匹配框和置信度）与模板副本
//
// 上一次保存尚未完成时新的请求直接丢弃，不会阻塞调用方。
// 与上一次保存的截图完全相同（差异哈希距离为 0）时跳过。
type DebugRecorder struct {
	dir string
	log *logger.Logger

	busy     atomic.Bool
	wg       sync.WaitGroup
	mu       sync.Mutex
	lastHash *goimagehash.ImageHash
	saved    []string
}

// NewDebugRecorder 创建调试图像记录器
func NewDebugRecorder(dir string, log *logger.Logger) *DebugRecorder {
	if log == nil {
		log = logger.Default()
	}
	return &DebugRecorder{dir: dir, log: log.With("debug")}
}

// Dir 保存目录
func (r *DebugRecorder) Dir() string {
	return r.dir
}

// Record 异步保存一次命中，返回 false 表示被丢弃
// frame 和 tmpl 会被复制，调用方可以立即释放
func (r *DebugRecorder) Record(name string, frame, tmpl gocv.Mat, box Box, confidence float64) bool {
	if frame.Empty() || !r.busy.CompareAndSwap(false, true) {
		return false
	}

	f := frame.Clone()
	t := tmpl.Clone()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.busy.Store(false)
		defer f.Close()
		defer t.Close()

		if err := r.write(name, f, t, box, confidence); err != nil {
			r.log.Warn("保存调试图像失败: %v", err)
		}
	}()
	return true
}

// Wait 等待正在进行的保存完成
func (r *DebugRecorder) Wait() {
	r.wg.Wait()
}

// Saved 已保存的文件列表
func (r *DebugRecorder) Saved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.saved...)
}

func (r *DebugRecorder) write(name string, frame, tmpl gocv.Mat, box Box, confidence float64) error {
	img, err := frame.ToImage()
	if err != nil {
		return fmt.Errorf("截图转换失败: %w", err)
	}
	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return fmt.Errorf("计算图像哈希失败: %w", err)
	}

	r.mu.Lock()
	if r.lastHash != nil {
		if dist, err := r.lastHash.Distance(hash); err == nil && dist == 0 {
			r.mu.Unlock()
			r.log.Debug("截图与上次相同，跳过保存")
			return nil
		}
	}
	r.lastHash = hash
	r.mu.Unlock()

	green := color.RGBA{0, 255, 0, 255}
	gocv.Rectangle(&frame, image.Rect(box.Left, box.Top, box.Left+box.Width, box.Top+box.Height), green, 2)
	labelY := box.Top - 10
	if labelY < 15 {
		labelY = box.Top + box.Height + 20
	}
	gocv.PutText(&frame, fmt.Sprintf("Conf: %.3f", confidence), image.Pt(box.Left, labelY),
		gocv.FontHersheySimplex, 0.6, green, 2)

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	ts := time.Now().Format("20060102_150405.000")
	framePath := filepath.Join(r.dir, fmt.Sprintf("debug_%s_%s.png", base, ts))
	tmplPath := filepath.Join(r.dir, fmt.Sprintf("template_%s_%s.png", base, ts))

	if err := WriteImage(framePath, frame); err != nil {
		return err
	}
	files := []string{framePath}
	if !tmpl.Empty() {
		if err := WriteImage(tmplPath, tmpl); err != nil {
			return err
		}
		files = append(files, tmplPath)
	}

	r.mu.Lock()
	r.saved = append(r.saved, files...)
	r.mu.Unlock()

	r.log.Info("调试图像已保存: %s", framePath)
	return nil
}
