package cv

import "math"

// DefaultDedupDistance 默认去重距离（像素）
const DefaultDedupDistance = 5

// Deduplicate 按中心距离去除重复的匹配框，保持原有顺序
//
// 单遍贪心：依次检查每个框，只有当它与某个已保留框的中心在 x 和 y 方向上
// 的距离都小于 minDistance 时才丢弃。距离恰好等于 minDistance 不算重复。
func Deduplicate(boxes []Box, minDistance int) []Box {
	if len(boxes) == 0 {
		return nil
	}

	d := float64(minDistance)
	kept := make([]Box, 0, len(boxes))
	centers := make([][2]float64, 0, len(boxes))

	for _, b := range boxes {
		cx := float64(b.Left) + float64(b.Width)/2
		cy := float64(b.Top) + float64(b.Height)/2

		duplicate := false
		for _, c := range centers {
			if math.Abs(cx-c[0]) < d && math.Abs(cy-c[1]) < d {
				duplicate = true
				break
			}
		}
		if duplicate {
			continue
		}

		kept = append(kept, b)
		centers = append(centers, [2]float64{cx, cy})
	}
	return kept
}

// CandidatesToBoxes 将候选转换为匹配框
func CandidatesToBoxes(candidates []MatchCandidate) []Box {
	boxes := make([]Box, 0, len(candidates))
	for _, c := range candidates {
		boxes = append(boxes, c.Box())
	}
	return boxes
}
