package evaluator

import "wisefido-locator/internal/models"

// PointInPolygon 射线法判断点是否在多边形内
// 对每条边检查水平射线穿越次数，奇数次为内部
// 边界上的点因浮点比较结果不定，调用方不应依赖边界判定
func PointInPolygon(x, y float64, polygon []models.Point) bool {
	n := len(polygon)
	if n < 3 {
		return false
	}

	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		pi := polygon[i]
		pj := polygon[j]
		if (pi.Y > y) != (pj.Y > y) {
			xCross := (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if x < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}
