//go:build !windows

package cmdutil

import "os/exec"

// HideWindow 只在 Windows 上需要
func HideWindow(_ *exec.Cmd) {}
