// Package cv 提供模板定位所需的图像匹配功能
//
// 匹配使用归一化互相关 (TM_CCORR_NORMED)，完全相同为 1.0。
// 多尺度搜索缩放的是截图而不是模板，结果坐标还原到原图。
//
// 基本用法:
//
//	tmpl, err := cv.LoadTemplate("button.png")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tmpl.Close()
//
//	if c := cv.LocateBest(tmpl.Mat, frame, cv.DefaultScales, 0.8); c != nil {
//	    fmt.Printf("找到位置: %v, 置信度 %.3f\n", c.Box().Center(), c.Confidence)
//	}
package cv

import (
	"fmt"
	"image"
	"strconv"
	"strings"
)

// Point 表示二维坐标点
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Region 表示截图/搜索的矩形区域
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect 转换为 image.Rectangle
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Origin 区域左上角
func (r Region) Origin() image.Point {
	return image.Point{X: r.X, Y: r.Y}
}

func (r Region) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", r.X, r.Y, r.Width, r.Height)
}

// ParseRegion 解析 "x,y,w,h" 格式的区域
func ParseRegion(s string) (*Region, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("区域格式应为 x,y,w,h: %q", s)
	}

	var v [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("区域包含非整数 %q: %w", p, err)
		}
		v[i] = n
	}
	if v[2] <= 0 || v[3] <= 0 {
		return nil, fmt.Errorf("区域宽高必须为正数: %q", s)
	}
	return &Region{X: v[0], Y: v[1], Width: v[2], Height: v[3]}, nil
}

// Box 匹配框，两种截图来源统一使用
type Box struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center 框中心点（整数除法向下取整）
func (b Box) Center() Point {
	return Point{X: b.Left + b.Width/2, Y: b.Top + b.Height/2}
}

// Offset 平移
func (b Box) Offset(dx, dy int) Box {
	b.Left += dx
	b.Top += dy
	return b
}

func (b Box) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", b.Left, b.Top, b.Width, b.Height)
}

// MatchCandidate 单次相关计算得到的候选
// 坐标位于计算所用图像的坐标系
type MatchCandidate struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
	Scale      float64 `json:"scale"`
}

// Box 转换为匹配框
func (c MatchCandidate) Box() Box {
	return Box{Left: c.X, Top: c.Y, Width: c.Width, Height: c.Height}
}

// ScaleScore 单个缩放系数下的最佳得分，probe 使用
type ScaleScore struct {
	Scale      float64 `json:"scale"`
	Skipped    bool    `json:"skipped"`
	Confidence float64 `json:"confidence"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	// Time 耗时（毫秒）
	Time float64 `json:"time"`
}
