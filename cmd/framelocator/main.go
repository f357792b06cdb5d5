package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/zoeyai/framelocator/pkg/config"
)

// 版本信息 (可通过 ldflags 注入)
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// 退出码
const (
	exitFound    = 0
	exitNotFound = 1
	exitError    = 2
)

func main() {
	if len(os.Args) < 2 {
		printHelp()
		os.Exit(exitError)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var code int
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "locate":
		code = runLocate(ctx, args, shapePoint)
	case "box":
		code = runLocate(ctx, args, shapeBox)
	case "all":
		code = runAll(ctx, args)
	case "probe":
		code = runProbe(ctx, args)
	case "config":
		code = runConfig(args)
	case "version", "-version", "--version":
		printVersion()
	case "help", "-help", "--help", "-h":
		printHelp()
	default:
		fmt.Fprintf(os.Stderr, "[ERROR] 未知命令: %s\n\n", cmd)
		printHelp()
		code = exitError
	}

	stop()
	os.Exit(code)
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("framelocator v%s\n", Version)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("framelocator - 在屏幕或设备截图中查找模板图像")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  framelocator <命令> [选项] <模板图片>")
	fmt.Println()
	fmt.Println("命令:")
	fmt.Println("  locate   查找模板，输出中心点")
	fmt.Println("  box      查找模板，输出匹配框")
	fmt.Println("  all      截图一次，输出所有匹配框（去重）")
	fmt.Println("  probe    输出每个缩放系数下的最佳得分和耗时")
	fmt.Println("  config   显示或保存当前生效的配置")
	fmt.Println("  version  显示版本信息")
	fmt.Println()
	fmt.Println("通用选项:")
	fmt.Println("  -config string      配置文件 (.json/.yaml)")
	fmt.Println("  -env string         .env 文件 (默认 .env)")
	fmt.Println("  -confidence float   置信度阈值")
	fmt.Println("  -time duration      最短查找时间 (例: 500ms, 2s)")
	fmt.Println("  -region string      搜索区域 x,y,w,h")
	fmt.Println("  -scales string      缩放系数 (例: 0.8,1.0,1.2)")
	fmt.Println("  -phone              优先使用远程设备截图")
	fmt.Println("  -input string       从图片文件读取截图，代替本地屏幕")
	fmt.Println("  -debug-images       命中时保存调试图像")
	fmt.Println("  -json               以 JSON 输出结果")
	fmt.Println("  -log-level string   日志级别 (debug/info/warn/error)")
	fmt.Println("  -log-file string    同时写入日志文件")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  # 在本地屏幕上查找按钮，最多等待 2 秒")
	fmt.Println("  framelocator locate -time 2s button.png")
	fmt.Println()
	fmt.Println("  # 通过 adb 在手机截图的指定区域内查找")
	fmt.Println("  framelocator box -phone -region 0,800,1080,600 card.png")
	fmt.Println()
	fmt.Println("  # 在保存的截图中列出所有匹配")
	fmt.Println("  framelocator all -input screen.png -confidence 0.95 card.png")
	fmt.Println()
	fmt.Println("  # 保存当前配置")
	fmt.Println("  framelocator config -phone -save")
	fmt.Println()
	fmt.Println("退出码: 0 找到, 1 未找到, 2 出错")
	fmt.Printf("配置文件位置: %s\n", config.GetDefaultManager().GetConfigFile())
}
