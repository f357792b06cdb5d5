// Package cmdutil 提供外部命令的创建
package cmdutil

import (
	"context"
	"os/exec"
)

// CommandContext 创建外部命令，Windows 上不弹出控制台窗口
func CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	HideWindow(cmd)
	return cmd
}
