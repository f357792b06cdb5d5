// Package process 提供进程查询功能
package process

import (
	"fmt"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo 进程信息
type ProcessInfo struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// FindProcess 按名称查找进程 (不区分大小写，支持部分匹配)
func FindProcess(name string) ([]ProcessInfo, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, fmt.Errorf("获取进程列表失败: %w", err)
	}

	name = strings.ToLower(name)
	var matches []ProcessInfo
	for _, proc := range procs {
		procName, err := proc.Name()
		if err != nil {
			continue
		}
		if !strings.Contains(strings.ToLower(procName), name) {
			continue
		}
		exe, _ := proc.Exe()
		matches = append(matches, ProcessInfo{
			PID:  int(proc.Pid),
			Name: procName,
			Path: exe,
		})
	}
	return matches, nil
}

// IsRunning 是否存在名称包含 name 的进程
func IsRunning(name string) (bool, error) {
	if name == "" {
		return false, fmt.Errorf("进程名不能为空")
	}
	matches, err := FindProcess(name)
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// GetProcessByPID 按 PID 获取进程信息
func GetProcessByPID(pid int) (*ProcessInfo, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("进程不存在: PID=%d", pid)
	}

	name, _ := proc.Name()
	exe, _ := proc.Exe()
	return &ProcessInfo{PID: pid, Name: name, Path: exe}, nil
}
