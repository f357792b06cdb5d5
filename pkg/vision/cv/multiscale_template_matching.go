package cv

import (
	"image"
	"math"
	"time"

	"gocv.io/x/gocv"
)

// DefaultScales 默认的缩放系数，作用于截图而不是模板
var DefaultScales = []float64{0.8, 0.9, 1.0, 1.1, 1.2}

// scaledFrame 按系数缩放截图的结果
type scaledFrame struct {
	mat    gocv.Mat
	owned  bool
	width  int
	height int
	// ratio 原图宽度 / 缩放后宽度，用于坐标还原
	ratio float64
}

func (s *scaledFrame) Close() {
	if s.owned {
		s.mat.Close()
	}
}

// scaleFrame 将截图宽度缩放为 round(W*s)，高度等比例
// 缩放后小于模板时返回 false
func scaleFrame(frame gocv.Mat, scale float64, tmplW, tmplH int) (*scaledFrame, bool) {
	w, h := frame.Cols(), frame.Rows()
	newW, newH := ScaledSize(w, h, scale)
	if newW < tmplW || newH < tmplH {
		return nil, false
	}

	sf := &scaledFrame{width: newW, height: newH, ratio: float64(w) / float64(newW)}
	if newW == w && newH == h {
		sf.mat = frame
		return sf, true
	}

	dst := gocv.NewMat()
	gocv.Resize(frame, &dst, image.Point{X: newW, Y: newH}, 0, 0, gocv.InterpolationArea)
	sf.mat = dst
	sf.owned = true
	return sf, true
}

// toOriginal 按实际缩放比例把缩放图中的候选还原到原图坐标
//
// 只使用宽度比例，假设缩放是等比例的。
func toOriginal(c *MatchCandidate, ratio float64) {
	x0 := int(math.Round(float64(c.X) * ratio))
	y0 := int(math.Round(float64(c.Y) * ratio))
	x1 := int(math.Round(float64(c.X+c.Width) * ratio))
	y1 := int(math.Round(float64(c.Y+c.Height) * ratio))

	c.X, c.Y = x0, y0
	c.Width, c.Height = x1-x0, y1-y0
}

// LocateBest 在多个缩放系数下查找模板，返回得分最高的候选（原图坐标）
//
// 缩放后小于模板的系数被跳过。得分相同时保留先尝试的系数。
// 所有系数都被跳过或最高得分低于 floor 时返回 nil。
func LocateBest(tmpl, frame gocv.Mat, scales []float64, floor float64) *MatchCandidate {
	if tmpl.Empty() || frame.Empty() {
		return nil
	}
	if len(scales) == 0 {
		scales = DefaultScales
	}

	tw, th := tmpl.Cols(), tmpl.Rows()
	var best *MatchCandidate
	bestRatio := 1.0

	for _, s := range scales {
		sf, ok := scaleFrame(frame, s, tw, th)
		if !ok {
			continue
		}

		c := Best(tmpl, sf.mat)
		sf.Close()
		if c == nil {
			continue
		}

		if best == nil || c.Confidence > best.Confidence {
			c.Scale = s
			best = c
			bestRatio = sf.ratio
		}
	}

	if best == nil || best.Confidence < floor {
		return nil
	}

	toOriginal(best, bestRatio)
	return best
}

// Profile 记录每个缩放系数下的最佳得分和耗时，坐标为原图坐标
func Profile(tmpl, frame gocv.Mat, scales []float64) []ScaleScore {
	if len(scales) == 0 {
		scales = DefaultScales
	}

	tw, th := tmpl.Cols(), tmpl.Rows()
	out := make([]ScaleScore, 0, len(scales))
	for _, s := range scales {
		start := time.Now()
		score := ScaleScore{Scale: s}

		sf, ok := scaleFrame(frame, s, tw, th)
		if !ok {
			score.Skipped = true
			out = append(out, score)
			continue
		}

		if c := Best(tmpl, sf.mat); c != nil {
			toOriginal(c, sf.ratio)
			score.Confidence = c.Confidence
			score.X, score.Y = c.X, c.Y
		} else {
			score.Skipped = true
		}
		sf.Close()

		score.Time = float64(time.Since(start).Microseconds()) / 1000
		out = append(out, score)
	}
	return out
}
