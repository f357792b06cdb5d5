//go:build !darwin

// Package permissions 检查本地截屏所需的系统权限
package permissions

import "context"

// PermissionStatus 权限状态
type PermissionStatus struct {
	ScreenRecording bool `json:"screen_recording"`
}

// Granted 本地截屏所需权限是否都已授予
func (s *PermissionStatus) Granted() bool {
	return s.ScreenRecording
}

// CheckPermissions 非 macOS 系统截屏不需要额外授权
func CheckPermissions() *PermissionStatus {
	return &PermissionStatus{ScreenRecording: true}
}

// OpenScreenRecordingSettings 非 macOS 系统无对应设置页面
func OpenScreenRecordingSettings() {}

// Instructions 未授权时的操作说明
func Instructions(status *PermissionStatus) string {
	return ""
}

// ResetScreenRecording 非 macOS 系统无需重置
func ResetScreenRecording(ctx context.Context, bundleID string) error {
	return nil
}
