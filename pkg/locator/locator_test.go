package locator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zoeyai/framelocator/internal/logger"
	"github.com/zoeyai/framelocator/pkg/capture"
	"github.com/zoeyai/framelocator/pkg/config"
	"github.com/zoeyai/framelocator/pkg/remote"
	"github.com/zoeyai/framelocator/pkg/vision/cv"
)

var swatchColor = color.RGBA{R: 230, G: 120, B: 30, A: 255}

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func noise(w, h int, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

func paste(dst *image.RGBA, src image.Image, x, y int) {
	b := src.Bounds()
	draw.Draw(dst, image.Rect(x, y, x+b.Dx(), y+b.Dy()), src, b.Min, draw.Src)
}

func writePNG(t *testing.T, dir, name string, img image.Image) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("创建文件失败: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("编码 PNG 失败: %v", err)
	}
	return path
}

// countingSource 统计截图次数
type countingSource struct {
	src   capture.FrameSource
	calls atomic.Int32
}

func (s *countingSource) Capture(ctx context.Context, region *cv.Region) (*capture.Frame, error) {
	s.calls.Add(1)
	return s.src.Capture(ctx, region)
}

// fakeRemote 模拟远程截图来源
type fakeRemote struct {
	connected bool
	fail      bool
	src       capture.FrameSource
	calls     atomic.Int32
}

func (r *fakeRemote) IsConnected() bool { return r.connected }

func (r *fakeRemote) Capture(ctx context.Context, region *cv.Region) (*capture.Frame, error) {
	r.calls.Add(1)
	if r.fail || r.src == nil {
		return nil, &capture.CaptureFailure{Source: capture.SourceRemote, Reason: capture.ReasonTimeout, Err: remote.ErrTimeout}
	}
	frame, err := r.src.Capture(ctx, region)
	if err != nil {
		return nil, err
	}
	frame.Source = capture.SourceRemote
	return frame, nil
}

// hidpiSource 模拟高 DPI 屏幕上对区域 origin 的截图：图像为物理像素，是屏幕坐标的 2 倍
type hidpiSource struct {
	src    capture.FrameSource
	origin image.Point
}

func (s *hidpiSource) Capture(ctx context.Context, region *cv.Region) (*capture.Frame, error) {
	frame, err := s.src.Capture(ctx, nil)
	if err != nil {
		return nil, err
	}
	frame.Source = capture.SourceLocal
	frame.Origin = s.origin
	frame.ScaleX, frame.ScaleY = 2, 2
	return frame, nil
}

// failingSource 每次截图都失败
type failingSource struct {
	calls atomic.Int32
}

func (s *failingSource) Capture(ctx context.Context, region *cv.Region) (*capture.Frame, error) {
	s.calls.Add(1)
	return nil, &capture.CaptureFailure{Source: capture.SourceLocal, Reason: capture.ReasonBackendError, Err: errors.New("no display")}
}

// fixture 800x600 黑色画面，(120,340) 处有 40x40 色块
type fixture struct {
	dir      string
	frame    string
	swatch   string
	missing  string
	logBuf   *bytes.Buffer
	log      *logger.Logger
	localSrc *countingSource
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	frame := solid(800, 600, color.Black)
	paste(frame, solid(40, 40, swatchColor), 120, 340)

	var buf bytes.Buffer
	log := logger.New()
	log.SetOutput(&buf)
	log.SetLevel(logger.DEBUG)

	fx := &fixture{
		dir:     dir,
		frame:   writePNG(t, dir, "frame.png", frame),
		swatch:  writePNG(t, dir, "swatch.png", solid(40, 40, swatchColor)),
		missing: writePNG(t, dir, "missing.png", noise(30, 30, 7)),
		logBuf:  &buf,
		log:     log,
	}
	fx.localSrc = &countingSource{src: capture.NewFileSource(fx.frame)}
	return fx
}

func testConfig() *config.LocatorConfig {
	cfg := config.DefaultLocatorConfig()
	cfg.RetryIntervalMs = 50
	return cfg
}

func TestLocateSwatch(t *testing.T) {
	fx := newFixture(t)
	l := New(testConfig(), fx.localSrc, nil, WithLogger(fx.log))

	pt, err := l.Locate(context.Background(), fx.swatch,
		WithConfidence(0.9), WithMinSearchTime(100*time.Millisecond))
	if err != nil {
		t.Fatalf("查找出错: %v", err)
	}
	if pt == nil {
		t.Fatalf("应找到色块, 日志:\n%s", fx.logBuf.String())
	}
	if pt.X != 140 || pt.Y != 360 {
		t.Errorf("期望 (140, 360), 实际 (%d, %d)", pt.X, pt.Y)
	}
	if n := fx.localSrc.calls.Load(); n != 1 {
		t.Errorf("应在一次截图内命中, 实际截图 %d 次", n)
	}
	if l.LastSource() != capture.SourceFile {
		t.Errorf("最近来源应为 file, 实际 %s", l.LastSource())
	}
}

func TestLocateBox(t *testing.T) {
	fx := newFixture(t)
	l := New(testConfig(), fx.localSrc, nil, WithLogger(fx.log))

	box, err := l.LocateBox(context.Background(), fx.swatch, WithConfidence(0.9))
	if err != nil || box == nil {
		t.Fatalf("应找到色块: box=%v err=%v", box, err)
	}
	want := cv.Box{Left: 120, Top: 340, Width: 40, Height: 40}
	if *box != want {
		t.Errorf("期望 %v, 实际 %v", want, *box)
	}
}

func TestLocateRegionAddsOrigin(t *testing.T) {
	fx := newFixture(t)
	l := New(testConfig(), fx.localSrc, nil, WithLogger(fx.log))

	pt, err := l.Locate(context.Background(), fx.swatch, WithConfidence(0.9), WithRegion(100, 300, 200, 200))
	if err != nil || pt == nil {
		t.Fatalf("区域内应找到色块: pt=%v err=%v", pt, err)
	}
	if pt.X != 140 || pt.Y != 360 {
		t.Errorf("坐标应为屏幕绝对坐标 (140, 360), 实际 (%d, %d)", pt.X, pt.Y)
	}

	pt, err = l.Locate(context.Background(), fx.swatch, WithConfidence(0.9), WithRegion(400, 0, 300, 300))
	if err != nil {
		t.Fatalf("查找出错: %v", err)
	}
	if pt != nil {
		t.Errorf("区域外不应命中, 实际 %v", pt)
	}
}

func TestLocateHiDPIFrame(t *testing.T) {
	fx := newFixture(t)
	// 区域 (100,300,200,200) 截得 400x400 物理像素，色块位于物理坐标 (40,80)
	physical := solid(400, 400, color.Black)
	paste(physical, solid(40, 40, swatchColor), 40, 80)
	src := &hidpiSource{
		src:    capture.NewFileSource(writePNG(t, fx.dir, "hidpi.png", physical)),
		origin: image.Pt(100, 300),
	}
	l := New(testConfig(), src, nil, WithLogger(fx.log))

	box, err := l.LocateBox(context.Background(), fx.swatch, WithConfidence(0.9))
	if err != nil || box == nil {
		t.Fatalf("应找到色块: box=%v err=%v", box, err)
	}
	want := cv.Box{Left: 120, Top: 340, Width: 20, Height: 20}
	if *box != want {
		t.Errorf("应换算为屏幕坐标 %v, 实际 %v", want, *box)
	}

	boxes, err := l.LocateAll(context.Background(), fx.swatch, WithConfidence(0.99))
	if err != nil {
		t.Fatalf("查找出错: %v", err)
	}
	if len(boxes) != 1 || boxes[0] != want {
		t.Errorf("LocateAll 应返回 [%v], 实际 %v", want, boxes)
	}
}

func TestLocateNotFoundTiming(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	// 小画面，单次截图和匹配的耗时远小于重试间隔
	small := writePNG(t, fx.dir, "small.png", solid(200, 150, color.Black))
	fx.localSrc = &countingSource{src: capture.NewFileSource(small)}
	l := New(cfg, fx.localSrc, nil, WithLogger(fx.log))

	budget := 300 * time.Millisecond
	interval := time.Duration(cfg.RetryIntervalMs) * time.Millisecond

	start := time.Now()
	pt, err := l.Locate(context.Background(), fx.missing, WithConfidence(0.9), WithMinSearchTime(budget))
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("未命中不应返回错误: %v", err)
	}
	if pt != nil {
		t.Fatalf("不应命中, 实际 %v", pt)
	}
	if elapsed < budget {
		t.Errorf("返回过早: %v < %v", elapsed, budget)
	}
	// 留出截图和匹配本身的耗时
	if limit := budget + interval + 150*time.Millisecond; elapsed > limit {
		t.Errorf("返回过晚: %v > %v", elapsed, limit)
	}
	if n := fx.localSrc.calls.Load(); n < 2 {
		t.Errorf("时间预算内应重试, 实际截图 %d 次", n)
	}
	t.Logf("耗时 %v, 截图 %d 次", elapsed, fx.localSrc.calls.Load())
}

func TestLocateZeroBudgetRunsOnce(t *testing.T) {
	fx := newFixture(t)
	l := New(testConfig(), fx.localSrc, nil, WithLogger(fx.log))

	pt, err := l.Locate(context.Background(), fx.missing, WithMinSearchTime(0))
	if err != nil || pt != nil {
		t.Fatalf("期望未命中: pt=%v err=%v", pt, err)
	}
	if n := fx.localSrc.calls.Load(); n != 1 {
		t.Errorf("时间预算为 0 时应且只应尝试一次, 实际 %d 次", n)
	}
}

func TestLocateSkipsDisconnectedRemote(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.UsePhone = true
	rem := &fakeRemote{connected: false, src: capture.NewFileSource(fx.frame)}
	l := New(cfg, fx.localSrc, rem, WithLogger(fx.log))

	pt, err := l.Locate(context.Background(), fx.swatch, WithConfidence(0.9), WithMinSearchTime(100*time.Millisecond))
	if err != nil || pt == nil {
		t.Fatalf("应通过本地截图找到: pt=%v err=%v", pt, err)
	}
	if n := rem.calls.Load(); n != 0 {
		t.Errorf("远程未连接时不应截图, 实际 %d 次", n)
	}
	if l.LastSource() != capture.SourceFile {
		t.Errorf("最近来源应为本地, 实际 %s", l.LastSource())
	}
}

func TestLocatePrefersRemote(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.UsePhone = true
	rem := &fakeRemote{connected: true, src: capture.NewFileSource(fx.frame)}
	l := New(cfg, fx.localSrc, rem, WithLogger(fx.log))

	pt, err := l.Locate(context.Background(), fx.swatch, WithConfidence(0.9))
	if err != nil || pt == nil {
		t.Fatalf("应通过远程截图找到: pt=%v err=%v", pt, err)
	}
	if rem.calls.Load() != 1 || fx.localSrc.calls.Load() != 0 {
		t.Errorf("应只使用远程截图: remote=%d local=%d", rem.calls.Load(), fx.localSrc.calls.Load())
	}
	if l.LastSource() != capture.SourceRemote {
		t.Errorf("最近来源应为 remote, 实际 %s", l.LastSource())
	}
}

func TestLocateUsePhoneDisabled(t *testing.T) {
	fx := newFixture(t)
	rem := &fakeRemote{connected: true, src: capture.NewFileSource(fx.frame)}
	l := New(testConfig(), fx.localSrc, rem, WithLogger(fx.log))

	if _, err := l.Locate(context.Background(), fx.swatch); err != nil {
		t.Fatal(err)
	}
	if n := rem.calls.Load(); n != 0 {
		t.Errorf("未启用远程时不应使用远程截图, 实际 %d 次", n)
	}
}

func TestLocateRemoteFailureFallsBack(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.UsePhone = true
	rem := &fakeRemote{connected: true, fail: true}
	l := New(cfg, fx.localSrc, rem, WithLogger(fx.log))

	pt, err := l.Locate(context.Background(), fx.swatch, WithConfidence(0.9))
	if err != nil || pt == nil {
		t.Fatalf("远程失败后应改用本地截图: pt=%v err=%v", pt, err)
	}
	if rem.calls.Load() != 1 || fx.localSrc.calls.Load() != 1 {
		t.Errorf("应在同一次尝试内回退: remote=%d local=%d", rem.calls.Load(), fx.localSrc.calls.Load())
	}
	if l.Degraded() {
		t.Error("一次失败不应降级")
	}
}

func TestLocatorDegradesAfterRemoteFailures(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.UsePhone = true
	cfg.RemoteFailureLimit = 3
	rem := &fakeRemote{connected: true, fail: true}
	l := New(cfg, fx.localSrc, rem, WithLogger(fx.log))

	for i := 0; i < 5; i++ {
		if _, err := l.Locate(context.Background(), fx.missing, WithMinSearchTime(0)); err != nil {
			t.Fatal(err)
		}
	}

	if !l.Degraded() {
		t.Fatal("连续失败 3 次后应降级")
	}
	if n := rem.calls.Load(); n != 3 {
		t.Errorf("降级后不应再使用远程截图, 实际远程截图 %d 次", n)
	}
	if n := fx.localSrc.calls.Load(); n != 5 {
		t.Errorf("每次查找都应使用本地截图, 实际 %d 次", n)
	}
	if !bytes.Contains(fx.logBuf.Bytes(), []byte("之后只使用本地截图")) {
		t.Error("降级时应记录 WARN 日志")
	}
}

func TestLocateRemoteFailureOncePerCall(t *testing.T) {
	fx := newFixture(t)
	cfg := testConfig()
	cfg.UsePhone = true
	cfg.RemoteFailureLimit = 0
	rem := &fakeRemote{connected: true, fail: true}
	l := New(cfg, fx.localSrc, rem, WithLogger(fx.log))

	l.Locate(context.Background(), fx.missing, WithMinSearchTime(200*time.Millisecond))

	if n := rem.calls.Load(); n != 1 {
		t.Errorf("同一次查找内远程失败后应直接使用本地截图, 实际远程截图 %d 次", n)
	}
	if fx.localSrc.calls.Load() < 2 {
		t.Errorf("应继续用本地截图重试, 实际 %d 次", fx.localSrc.calls.Load())
	}
	if l.Degraded() {
		t.Error("RemoteFailureLimit 为 0 时不应降级")
	}
}

func TestLocateTemplateLoadError(t *testing.T) {
	fx := newFixture(t)
	l := New(testConfig(), fx.localSrc, nil, WithLogger(fx.log))

	_, err := l.Locate(context.Background(), filepath.Join(fx.dir, "nope.png"), WithMinSearchTime(time.Second))
	var tle *cv.TemplateLoadError
	if !errors.As(err, &tle) {
		t.Fatalf("期望 TemplateLoadError, 实际 %v", err)
	}
	if n := fx.localSrc.calls.Load(); n != 0 {
		t.Errorf("模板加载失败时不应截图, 实际 %d 次", n)
	}

	if _, err := l.LocateAll(context.Background(), filepath.Join(fx.dir, "nope.png")); !errors.As(err, &tle) {
		t.Errorf("LocateAll 期望 TemplateLoadError, 实际 %v", err)
	}
}

func TestLocateCaptureFailureIsNotFound(t *testing.T) {
	fx := newFixture(t)
	src := &failingSource{}
	l := New(testConfig(), src, nil, WithLogger(fx.log))

	pt, err := l.Locate(context.Background(), fx.swatch, WithMinSearchTime(120*time.Millisecond))
	if err != nil || pt != nil {
		t.Fatalf("截图失败应视为未命中: pt=%v err=%v", pt, err)
	}
	if src.calls.Load() < 2 {
		t.Errorf("截图失败后应重试, 实际 %d 次", src.calls.Load())
	}
}

func TestLocateCancelled(t *testing.T) {
	fx := newFixture(t)
	l := New(testConfig(), fx.localSrc, nil, WithLogger(fx.log))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	pt, err := l.Locate(ctx, fx.missing, WithMinSearchTime(10*time.Second))
	if err != nil || pt != nil {
		t.Fatalf("取消后应返回未命中: pt=%v err=%v", pt, err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("取消后应尽快返回, 实际耗时 %v", elapsed)
	}
}

func TestLocateAll(t *testing.T) {
	dir := t.TempDir()
	tmpl := noise(30, 30, 42)

	frame := solid(300, 250, color.Black)
	paste(frame, tmpl, 50, 40)
	paste(frame, tmpl, 200, 40)
	paste(frame, tmpl, 50, 150)

	framePath := writePNG(t, dir, "frame.png", frame)
	tmplPath := writePNG(t, dir, "card.png", tmpl)

	log := logger.New()
	log.SetOutput(&bytes.Buffer{})
	l := New(testConfig(), capture.NewFileSource(framePath), nil, WithLogger(log))

	boxes, err := l.LocateAll(context.Background(), tmplPath, WithConfidence(0.99))
	if err != nil {
		t.Fatal(err)
	}
	want := []cv.Box{
		{Left: 50, Top: 40, Width: 30, Height: 30},
		{Left: 200, Top: 40, Width: 30, Height: 30},
		{Left: 50, Top: 150, Width: 30, Height: 30},
	}
	if len(boxes) != len(want) {
		t.Fatalf("期望 %d 个匹配框, 实际 %v", len(want), boxes)
	}
	for i := range want {
		if boxes[i] != want[i] {
			t.Errorf("第 %d 个: 期望 %v, 实际 %v", i, want[i], boxes[i])
		}
	}

	// 区域内的结果同样是屏幕绝对坐标
	boxes, err = l.LocateAll(context.Background(), tmplPath, WithConfidence(0.99), WithRegion(0, 100, 300, 150))
	if err != nil {
		t.Fatal(err)
	}
	if len(boxes) != 1 || boxes[0] != want[2] {
		t.Errorf("区域内期望 [%v], 实际 %v", want[2], boxes)
	}
}

func TestLocateAllCaptureFailure(t *testing.T) {
	fx := newFixture(t)
	l := New(testConfig(), &failingSource{}, nil, WithLogger(fx.log))

	boxes, err := l.LocateAll(context.Background(), fx.swatch)
	if err != nil {
		t.Fatalf("截图失败不应返回错误: %v", err)
	}
	if boxes == nil || len(boxes) != 0 {
		t.Errorf("截图失败应返回空列表, 实际 %v", boxes)
	}
}

func TestLocateSavesDebugImages(t *testing.T) {
	fx := newFixture(t)
	rec := cv.NewDebugRecorder(filepath.Join(fx.dir, "debug"), fx.log)
	l := New(testConfig(), fx.localSrc, nil, WithLogger(fx.log), WithDebugRecorder(rec))

	pt, err := l.Locate(context.Background(), fx.swatch, WithConfidence(0.9))
	if err != nil || pt == nil {
		t.Fatalf("应找到色块: pt=%v err=%v", pt, err)
	}
	rec.Wait()

	if n := len(rec.Saved()); n != 2 {
		t.Errorf("应保存截图和模板, 实际 %d 个文件", n)
	}
}

func TestNewAppliesConfig(t *testing.T) {
	cfg := config.DefaultLocatorConfig()
	cfg.Confidence = 0.95
	cfg.Scales = []float64{1.0}
	cfg.SaveDebugImages = true
	cfg.DebugDir = t.TempDir()

	l := New(cfg, nil, nil)
	o := l.searchOptions()
	if o.Confidence != 0.95 || len(o.Scales) != 1 {
		t.Errorf("应使用配置中的默认值: %+v", o)
	}
	if l.DebugRecorder() == nil || l.DebugRecorder().Dir() != cfg.DebugDir {
		t.Error("启用 SaveDebugImages 时应创建调试记录器")
	}

	cfg.Confidence = 0.5
	if l.Config().Confidence != 0.95 {
		t.Error("定位器应持有配置副本")
	}

	o = l.searchOptions(WithConfidence(0.7), WithScales(0.5, 1.0), WithDedupDistance(9))
	if o.Confidence != 0.7 || len(o.Scales) != 2 || o.DedupDistance != 9 {
		t.Errorf("查找选项应覆盖默认值: %+v", o)
	}
}
