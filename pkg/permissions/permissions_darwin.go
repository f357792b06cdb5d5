//go:build darwin

// Package permissions 检查本地截屏所需的系统权限
package permissions

/*
#cgo CFLAGS: -x objective-c
#cgo LDFLAGS: -framework Cocoa -framework CoreGraphics
#import <Cocoa/Cocoa.h>
#import <CoreGraphics/CoreGraphics.h>

// 未授权时只能拿到窗口列表，拿不到窗口名
int checkScreenRecordingPermission() {
    if (@available(macOS 10.15, *)) {
        CFArrayRef windowList = CGWindowListCopyWindowInfo(
            kCGWindowListOptionOnScreenOnly | kCGWindowListExcludeDesktopElements,
            kCGNullWindowID
        );
        if (windowList == NULL) {
            return 0;
        }

        CFIndex count = CFArrayGetCount(windowList);
        int hasNames = 0;
        for (CFIndex i = 0; i < count; i++) {
            CFDictionaryRef window = (CFDictionaryRef)CFArrayGetValueAtIndex(windowList, i);
            CFStringRef name = (CFStringRef)CFDictionaryGetValue(window, kCGWindowName);
            if (name != NULL && CFStringGetLength(name) > 0) {
                hasNames = 1;
                break;
            }
        }

        CFRelease(windowList);
        return (count == 0 || hasNames) ? 1 : 0;
    }
    return 1;
}

void openScreenRecordingPreferences() {
    NSString *urlString = @"x-apple.systempreferences:com.apple.preference.security?Privacy_ScreenCapture";
    [[NSWorkspace sharedWorkspace] openURL:[NSURL URLWithString:urlString]];
}
*/
import "C"

import (
	"context"
	"fmt"

	"github.com/zoeyai/framelocator/pkg/cmdutil"
)

// PermissionStatus 权限状态
type PermissionStatus struct {
	ScreenRecording bool `json:"screen_recording"`
}

// Granted 本地截屏所需权限是否都已授予
func (s *PermissionStatus) Granted() bool {
	return s.ScreenRecording
}

// CheckPermissions 检查屏幕录制权限（不触发弹窗）
func CheckPermissions() *PermissionStatus {
	return &PermissionStatus{
		ScreenRecording: C.checkScreenRecordingPermission() == 1,
	}
}

// OpenScreenRecordingSettings 打开屏幕录制设置页面
func OpenScreenRecordingSettings() {
	C.openScreenRecordingPreferences()
}

// Instructions 未授权时的操作说明
func Instructions(status *PermissionStatus) string {
	if status.Granted() {
		return ""
	}
	return "本地截屏需要屏幕录制权限:\n" +
		"   系统设置 > 隐私与安全性 > 屏幕录制\n" +
		"授权后需要重启终端才能生效。"
}

// ResetScreenRecording 重置指定应用的屏幕录制授权
func ResetScreenRecording(ctx context.Context, bundleID string) error {
	if err := cmdutil.CommandContext(ctx, "tccutil", "reset", "ScreenCapture", bundleID).Run(); err != nil {
		return fmt.Errorf("重置屏幕录制权限失败: %w", err)
	}
	return nil
}
