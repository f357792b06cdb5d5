package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"unknown": INFO,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) 期望 %s, 实际 %s", in, want, got)
		}
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)
	l.SetLevel(WARN)

	l.Info("不应输出")
	l.Warn("应输出 %d", 1)

	out := buf.String()
	if strings.Contains(out, "不应输出") {
		t.Errorf("INFO 日志不应在 WARN 级别输出: %q", out)
	}
	if !strings.Contains(out, "WARN  | 应输出 1") {
		t.Errorf("WARN 日志格式不正确: %q", out)
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	root := New()
	root.SetOutput(&buf)

	child := root.With("locator")
	child.Info("hello")

	if !strings.Contains(buf.String(), "INFO  | locator | hello") {
		t.Errorf("子 logger 应带组件名: %q", buf.String())
	}

	// 级别共享
	root.SetLevel(ERROR)
	buf.Reset()
	child.Warn("被过滤")
	if buf.Len() != 0 {
		t.Errorf("子 logger 应共享父级别, 实际输出: %q", buf.String())
	}
}

func TestLogEvent(t *testing.T) {
	var buf bytes.Buffer
	l := New()
	l.SetOutput(&buf)

	l.LogEvent("FIND", true, 12*time.Millisecond, "button.png")
	l.LogEvent("FIND", false, 300*time.Millisecond, "missing.png")

	out := buf.String()
	if !strings.Contains(out, "FIND | OK |    12.0ms | button.png") {
		t.Errorf("成功事件格式不正确: %q", out)
	}
	if !strings.Contains(out, "WARN  | FIND | NG |   300.0ms | missing.png") {
		t.Errorf("失败事件格式不正确: %q", out)
	}
}

func TestSetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locator.log")
	l := New()
	l.SetOutput(nil)

	if err := l.SetFile(true, path); err != nil {
		t.Fatalf("打开日志文件失败: %v", err)
	}
	l.Info("写入文件")
	if err := l.Close(); err != nil {
		t.Fatalf("关闭日志文件失败: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败: %v", err)
	}
	if !strings.Contains(string(data), "写入文件") {
		t.Errorf("日志文件内容不正确: %q", string(data))
	}
}
