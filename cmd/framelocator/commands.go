package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/zoeyai/framelocator/internal/logger"
	"github.com/zoeyai/framelocator/pkg/capture"
	"github.com/zoeyai/framelocator/pkg/config"
	"github.com/zoeyai/framelocator/pkg/locator"
	"github.com/zoeyai/framelocator/pkg/permissions"
	"github.com/zoeyai/framelocator/pkg/remote"
	"github.com/zoeyai/framelocator/pkg/vision/cv"
)

// resultShape locate 与 box 的输出形式
type resultShape int

const (
	shapePoint resultShape = iota
	shapeBox
)

// commonFlags 各命令共用的选项
type commonFlags struct {
	fs *flag.FlagSet

	configPath  string
	envPath     string
	confidence  float64
	minTime     time.Duration
	region      string
	scales      string
	phone       bool
	input       string
	debugImages bool
	jsonOut     bool
	logLevel    string
	logFile     string
}

func newCommonFlags(name string) *commonFlags {
	f := &commonFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	f.fs.StringVar(&f.configPath, "config", "", "配置文件 (.json/.yaml)")
	f.fs.StringVar(&f.envPath, "env", ".env", ".env 文件")
	f.fs.Float64Var(&f.confidence, "confidence", 0, "置信度阈值")
	f.fs.DurationVar(&f.minTime, "time", 0, "最短查找时间")
	f.fs.StringVar(&f.region, "region", "", "搜索区域 x,y,w,h")
	f.fs.StringVar(&f.scales, "scales", "", "缩放系数")
	f.fs.BoolVar(&f.phone, "phone", false, "优先使用远程设备截图")
	f.fs.StringVar(&f.input, "input", "", "从图片文件读取截图")
	f.fs.BoolVar(&f.debugImages, "debug-images", false, "命中时保存调试图像")
	f.fs.BoolVar(&f.jsonOut, "json", false, "以 JSON 输出结果")
	f.fs.StringVar(&f.logLevel, "log-level", "", "日志级别")
	f.fs.StringVar(&f.logFile, "log-file", "", "日志文件")
	return f
}

// load 加载配置并用命令行参数覆盖，命令行优先级最高
func (f *commonFlags) load() (*config.LocatorConfig, error) {
	// 标准输出只用于结果
	log := logger.Default()
	log.SetOutput(os.Stderr)

	m := config.GetDefaultManager()
	if f.configPath != "" {
		m = config.NewManagerWithFile(f.configPath)
	}

	cfg, err := m.LoadWithEnv(f.envPath)
	if err != nil {
		logger.Warn("加载配置失败，部分配置使用默认值: %v", err)
	}

	if f.confidence > 0 {
		cfg.Confidence = f.confidence
	}
	if f.scales != "" {
		scales, err := config.ParseScales(f.scales)
		if err != nil {
			return nil, err
		}
		cfg.Scales = scales
	}
	if f.phone {
		cfg.UsePhone = true
	}
	if f.debugImages {
		cfg.SaveDebugImages = true
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	cfg.Validate()

	log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	if f.logFile != "" {
		if err := log.SetFile(true, f.logFile); err != nil {
			logger.Warn("%v", err)
		}
	}
	return cfg, nil
}

func (f *commonFlags) searchOptions() ([]locator.SearchOption, error) {
	var opts []locator.SearchOption
	if f.region != "" {
		r, err := cv.ParseRegion(f.region)
		if err != nil {
			return nil, err
		}
		opts = append(opts, locator.WithSearchRegion(r))
	}
	if f.minTime > 0 {
		opts = append(opts, locator.WithMinSearchTime(f.minTime))
	}
	return opts, nil
}

// template 取唯一的位置参数作为模板路径
func (f *commonFlags) template() (string, error) {
	if f.fs.NArg() != 1 {
		return "", errors.New("需要且只需要一个模板图片路径")
	}
	return f.fs.Arg(0), nil
}

// sources 创建本地和远程截图来源，返回的 cleanup 关闭远程通道
func sources(ctx context.Context, cfg *config.LocatorConfig, input string) (capture.FrameSource, capture.RemoteSource, func()) {
	var local capture.FrameSource
	if input != "" {
		local = capture.NewFileSource(input)
	} else {
		if runtime.GOOS == "darwin" {
			if status := permissions.CheckPermissions(); !status.Granted() {
				logger.Warn("%s", permissions.Instructions(status))
			}
		}
		local = capture.NewLocalSource(cfg.Local)
	}

	if !cfg.UsePhone {
		return local, nil, func() {}
	}

	ch, err := remote.New(cfg.Remote)
	if err != nil {
		logger.Warn("创建远程通道失败，只使用本地截图: %v", err)
		return local, nil, func() {}
	}
	if c, ok := ch.(remote.Connector); ok {
		if err := c.Connect(ctx); err != nil {
			logger.Warn("连接远程设备失败: %v", err)
		}
	}
	return local, capture.NewRemoteSource(ch), func() { ch.Close() }
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] 序列化结果失败: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

// fail 打印错误并返回退出码
func fail(err error) int {
	fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
	return exitError
}

// runLocate locate / box 命令
func runLocate(ctx context.Context, args []string, shape resultShape) int {
	f := newCommonFlags("locate")
	if err := f.fs.Parse(args); err != nil {
		return exitError
	}
	tmplPath, err := f.template()
	if err != nil {
		return fail(err)
	}
	cfg, err := f.load()
	if err != nil {
		return fail(err)
	}
	opts, err := f.searchOptions()
	if err != nil {
		return fail(err)
	}

	local, rem, cleanup := sources(ctx, cfg, f.input)
	defer cleanup()

	l := locator.New(cfg, local, rem)
	c, err := l.Find(ctx, tmplPath, opts...)
	if rec := l.DebugRecorder(); rec != nil {
		rec.Wait()
	}
	if err != nil {
		return fail(err)
	}
	if c == nil {
		if f.jsonOut {
			printJSON(map[string]interface{}{"found": false})
		} else {
			fmt.Println("未找到")
		}
		return exitNotFound
	}

	box := c.Box()
	center := box.Center()
	if f.jsonOut {
		out := map[string]interface{}{
			"found":      true,
			"confidence": c.Confidence,
			"scale":      c.Scale,
			"source":     l.LastSource().String(),
		}
		if shape == shapeBox {
			out["box"] = box
		} else {
			out["point"] = center
		}
		printJSON(out)
		return exitFound
	}

	if shape == shapeBox {
		fmt.Printf("%d %d %d %d\n", box.Left, box.Top, box.Width, box.Height)
	} else {
		fmt.Printf("%d %d\n", center.X, center.Y)
	}
	return exitFound
}

// runAll all 命令
func runAll(ctx context.Context, args []string) int {
	f := newCommonFlags("all")
	dedup := f.fs.Int("dedup", -1, "去重距离（像素），默认使用配置")
	if err := f.fs.Parse(args); err != nil {
		return exitError
	}
	tmplPath, err := f.template()
	if err != nil {
		return fail(err)
	}
	cfg, err := f.load()
	if err != nil {
		return fail(err)
	}
	opts, err := f.searchOptions()
	if err != nil {
		return fail(err)
	}
	if *dedup >= 0 {
		opts = append(opts, locator.WithDedupDistance(*dedup))
	}

	local, rem, cleanup := sources(ctx, cfg, f.input)
	defer cleanup()

	boxes, err := locator.New(cfg, local, rem).LocateAll(ctx, tmplPath, opts...)
	if err != nil {
		return fail(err)
	}

	if f.jsonOut {
		printJSON(boxes)
	} else {
		for _, b := range boxes {
			fmt.Printf("%d %d %d %d\n", b.Left, b.Top, b.Width, b.Height)
		}
	}
	if len(boxes) == 0 {
		return exitNotFound
	}
	return exitFound
}

// runProbe probe 命令：截图一次，输出每个缩放系数下的得分
func runProbe(ctx context.Context, args []string) int {
	f := newCommonFlags("probe")
	if err := f.fs.Parse(args); err != nil {
		return exitError
	}
	tmplPath, err := f.template()
	if err != nil {
		return fail(err)
	}
	cfg, err := f.load()
	if err != nil {
		return fail(err)
	}
	var region *cv.Region
	if f.region != "" {
		if region, err = cv.ParseRegion(f.region); err != nil {
			return fail(err)
		}
	}

	tmpl, err := cv.LoadTemplate(tmplPath)
	if err != nil {
		return fail(err)
	}
	defer tmpl.Close()

	local, rem, cleanup := sources(ctx, cfg, f.input)
	defer cleanup()

	var src capture.FrameSource = local
	if rem != nil && rem.IsConnected() {
		src = rem
	}
	frame, err := src.Capture(ctx, region)
	if err != nil {
		return fail(err)
	}
	defer frame.Close()

	profile := cv.Profile(tmpl.Mat, frame.Mat, cfg.Scales)
	if f.jsonOut {
		printJSON(profile)
		return exitFound
	}

	fmt.Printf("模板: %s (%dx%d)  截图: %s %dx%d  原点: %v\n",
		tmplPath, tmpl.Width(), tmpl.Height(), frame.Source, frame.Width(), frame.Height(), frame.Origin)
	fmt.Println("缩放   置信度   位置          耗时")
	for _, s := range profile {
		if s.Skipped {
			fmt.Printf("%-5.2f  跳过 (截图小于模板)\n", s.Scale)
			continue
		}
		mark := ""
		if s.Confidence >= cfg.Confidence {
			mark = " *"
		}
		p := frame.PointToSurface(s.X, s.Y)
		fmt.Printf("%-5.2f  %.4f   (%4d, %4d)   %6.1fms%s\n",
			s.Scale, s.Confidence, p.X, p.Y, s.Time, mark)
	}
	return exitFound
}

// runConfig config 命令
func runConfig(args []string) int {
	f := newCommonFlags("config")
	save := f.fs.Bool("save", false, "保存到配置文件")
	if err := f.fs.Parse(args); err != nil {
		return exitError
	}
	cfg, err := f.load()
	if err != nil {
		return fail(err)
	}

	m := config.GetDefaultManager()
	if f.configPath != "" {
		m = config.NewManagerWithFile(f.configPath)
	}
	if *save {
		if err := m.Save(cfg); err != nil {
			return fail(err)
		}
		fmt.Fprintf(os.Stderr, "[INFO] 配置已保存到 %s\n", m.GetConfigFile())
	}

	printJSON(cfg)
	return exitFound
}
