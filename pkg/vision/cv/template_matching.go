package cv

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// refineCount 得分图中取得分最高的前几个位置，用 float64 重新计算
const refineCount = 8

// ImageSizeError 源图像小于模板，无法容纳
type ImageSizeError struct {
	SourceSize [2]int
	SearchSize [2]int
}

func (e *ImageSizeError) Error() string {
	return fmt.Sprintf("模板尺寸 %dx%d 大于源图像 %dx%d",
		e.SearchSize[0], e.SearchSize[1], e.SourceSize[0], e.SourceSize[1])
}

// checkSourceLargerThanSearch 检查源图像在两个方向上都不小于模板
func checkSourceLargerThanSearch(source, search gocv.Mat) error {
	if source.Rows() < search.Rows() || source.Cols() < search.Cols() {
		return &ImageSizeError{
			SourceSize: [2]int{source.Cols(), source.Rows()},
			SearchSize: [2]int{search.Cols(), search.Rows()},
		}
	}
	return nil
}

// ScoreMap 计算归一化互相关得分图
//
// 得分 (i, j) = Σ T·F / (‖T‖·‖F‖)，F 为以 (i, j) 为左上角、模板大小的窗口。
// 完全相同为 1.0。源图像小于模板时返回 false。
// 结果为 (H-h+1) x (W-w+1) 的 CV_32F 矩阵，由调用方 Close。
func ScoreMap(tmpl, frame gocv.Mat) (gocv.Mat, bool) {
	if tmpl.Empty() || frame.Empty() {
		return gocv.NewMat(), false
	}
	if err := checkSourceLargerThanSearch(frame, tmpl); err != nil {
		return gocv.NewMat(), false
	}

	mask := gocv.NewMat()
	defer mask.Close()

	result := gocv.NewMat()
	gocv.MatchTemplate(frame, tmpl, &result, gocv.TmCcorrNormed, mask)
	return result, true
}

// scores 读取得分图数据，按行优先排列
func scores(result gocv.Mat) ([]float32, error) {
	if !result.IsContinuous() {
		cont := result.Clone()
		defer cont.Close()
		data, err := cont.DataPtrFloat32()
		if err != nil {
			return nil, err
		}
		return append([]float32(nil), data...), nil
	}
	return result.DataPtrFloat32()
}

// Best 返回得分最高的位置，相同得分按行优先取第一个
// 源图像小于模板时返回 nil
//
// 得分图是 float32，平坦背景上的窗口与真正的副本可能只差 1e-5。
// 先从得分图取前 refineCount 个位置，再逐个用 float64 重新计算得分后取最大值。
func Best(tmpl, frame gocv.Mat) *MatchCandidate {
	result, ok := ScoreMap(tmpl, frame)
	defer result.Close()
	if !ok {
		return nil
	}

	data, err := scores(result)
	if err != nil || len(data) == 0 {
		return nil
	}

	top := topCells(data, refineCount)
	if len(top) == 0 {
		return nil
	}

	cols := result.Cols()
	bestIdx, bestVal := -1, 0.0
	for _, c := range top {
		v, ok := exactScore(tmpl, frame, c.idx%cols, c.idx/cols)
		if !ok {
			v = float64(c.val)
		}
		if bestIdx < 0 || v > bestVal || (v == bestVal && c.idx < bestIdx) {
			bestIdx, bestVal = c.idx, v
		}
	}

	return &MatchCandidate{
		X:          bestIdx % cols,
		Y:          bestIdx / cols,
		Width:      tmpl.Cols(),
		Height:     tmpl.Rows(),
		Confidence: bestVal,
		Scale:      1.0,
	}
}

// cell 得分图中的一个位置
type cell struct {
	idx int
	val float32
}

// topCells 按得分从高到低取前 n 个位置，得分相同时行优先靠前的排在前面
func topCells(data []float32, n int) []cell {
	top := make([]cell, 0, n)
	for i, v := range data {
		if math.IsNaN(float64(v)) {
			continue
		}
		if len(top) == n && v <= top[n-1].val {
			continue
		}
		if len(top) < n {
			top = append(top, cell{})
		}
		j := len(top) - 1
		for j > 0 && top[j-1].val < v {
			top[j] = top[j-1]
			j--
		}
		top[j] = cell{idx: i, val: v}
	}
	return top
}

// exactScore 用 float64 计算 (x, y) 处的归一化互相关得分
// 只支持 8 位图像，其他类型返回 false
func exactScore(tmpl, frame gocv.Mat, x, y int) (float64, bool) {
	if tmpl.Type() != frame.Type() {
		return 0, false
	}
	switch tmpl.Type() {
	case gocv.MatTypeCV8UC1, gocv.MatTypeCV8UC3, gocv.MatTypeCV8UC4:
	default:
		return 0, false
	}

	roi := frame.Region(image.Rect(x, y, x+tmpl.Cols(), y+tmpl.Rows()))
	defer roi.Close()
	win := roi.Clone()
	defer win.Close()

	t := tmpl
	if !tmpl.IsContinuous() {
		t = tmpl.Clone()
		defer t.Close()
	}

	tb, err := t.DataPtrUint8()
	if err != nil {
		return 0, false
	}
	fb, err := win.DataPtrUint8()
	if err != nil || len(fb) != len(tb) {
		return 0, false
	}

	var dot, tt, ff float64
	for i := range tb {
		a, b := float64(tb[i]), float64(fb[i])
		dot += a * b
		tt += a * a
		ff += b * b
	}
	if tt == 0 || ff == 0 {
		return 0, true
	}
	return math.Min(dot/(math.Sqrt(tt)*math.Sqrt(ff)), 1), true
}

// FindAll 返回所有得分不低于阈值的位置，按行优先顺序
func FindAll(tmpl, frame gocv.Mat, threshold float64) []MatchCandidate {
	result, ok := ScoreMap(tmpl, frame)
	defer result.Close()
	if !ok {
		return nil
	}

	data, err := scores(result)
	if err != nil {
		return nil
	}

	cols := result.Cols()
	w, h := tmpl.Cols(), tmpl.Rows()
	var matches []MatchCandidate
	for i, v := range data {
		if float64(v) >= threshold {
			matches = append(matches, MatchCandidate{
				X:          i % cols,
				Y:          i / cols,
				Width:      w,
				Height:     h,
				Confidence: float64(v),
				Scale:      1.0,
			})
		}
	}
	return matches
}
