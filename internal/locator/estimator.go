package locator

import (
	"math"
	"sort"
	"time"

	"wisefido-locator/internal/models"
)

// 最小二乘迭代参数
const (
	maxIterations    = 20
	convergeEpsilon  = 1e-4
	singularEpsilon  = 1e-10
	accuracyInflate  = 1.5 // 未收敛/退化时的精度惩罚系数
	minAccuracyValue = 0.1
)

// GatewayDistance 单个网关的距离估计输入
type GatewayDistance struct {
	GatewayID string
	X         float64
	Y         float64
	Distance  float64
}

// Estimator 位置估计器
// 按网关数量选择算法：2个用圆交点几何法，3个及以上用加权高斯-牛顿最小二乘
type Estimator struct{}

// NewEstimator 创建位置估计器
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate 根据网关距离估计计算2D位置
// prev 为该信标上一tick的平滑位置（无历史时为nil），用于两圆交点的歧义消解
// 网关不足2个返回 ErrInsufficientGateways（est为nil）
// 其余可恢复情况（几何退化、未收敛）返回非nil估计与对应哨兵错误，
// 调用方仅用错误做观测计数，估计值仍然有效
func (e *Estimator) Estimate(beaconID, floorID string, dists []GatewayDistance, prev *models.SmoothedPosition, now time.Time) (*models.PositionEstimate, error) {
	if len(dists) < 2 {
		return nil, ErrInsufficientGateways
	}

	// 固定处理顺序，保证相同输入产生相同浮点累加结果
	sorted := make([]GatewayDistance, len(dists))
	copy(sorted, dists)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].GatewayID < sorted[j].GatewayID
	})

	if len(sorted) == 2 {
		return e.twoPoint(beaconID, floorID, sorted, prev, now)
	}
	return e.leastSquares(beaconID, floorID, sorted, now)
}

// twoPoint 两网关圆交点几何法
// 两圆相交产生两个候选交点：有历史位置时取离历史更近的候选，
// 无历史时固定取连线左法向一侧（网关已按ID排序，结果确定）
// 圆不相交时退化为连线上按距离反比加权的点，精度降级
func (e *Estimator) twoPoint(beaconID, floorID string, dists []GatewayDistance, prev *models.SmoothedPosition, now time.Time) (*models.PositionEstimate, error) {
	g1, g2 := dists[0], dists[1]
	d1, d2 := g1.Distance, g2.Distance

	dx := g2.X - g1.X
	dy := g2.Y - g1.Y
	sep := math.Hypot(dx, dy)

	// 相交条件：网关间距在 |d1-d2| 与 d1+d2 之间
	if sep > 0 && sep <= d1+d2 && sep >= math.Abs(d1-d2) {
		// 交点弦的中点落在两网关连线上，距g1为a
		a := (sep*sep + d1*d1 - d2*d2) / (2 * sep)
		mx := g1.X + a*dx/sep
		my := g1.Y + a*dy/sep

		// 弦半长：两候选交点到中点的距离
		h := 0.0
		if h2 := d1*d1 - a*a; h2 > 0 {
			h = math.Sqrt(h2)
		}

		// 两候选位于连线法向两侧
		nx := -dy / sep
		ny := dx / sep
		x := mx + h*nx
		y := my + h*ny
		if prev != nil && prev.FloorID == floorID {
			altX := mx - h*nx
			altY := my - h*ny
			if squaredDist(altX, altY, prev.X, prev.Y) < squaredDist(x, y, prev.X, prev.Y) {
				x, y = altX, altY
			}
		}

		accuracy := math.Max(h, minAccuracyValue)
		return &models.PositionEstimate{
			BeaconID:       beaconID,
			FloorID:        floorID,
			X:              x,
			Y:              y,
			AccuracyRadius: accuracy,
			Method:         models.MethodTwoPoint,
			ComputedAt:     now,
		}, nil
	}

	// 圆不相交（间距过大或一圆含另一圆）：距离反比加权的线上点
	w1 := 1 / math.Max(d1, minAccuracyValue)
	w2 := 1 / math.Max(d2, minAccuracyValue)
	total := w1 + w2
	est := &models.PositionEstimate{
		BeaconID:       beaconID,
		FloorID:        floorID,
		X:              (g1.X*w1 + g2.X*w2) / total,
		Y:              (g1.Y*w1 + g2.Y*w2) / total,
		AccuracyRadius: (d1 + d2) / 2 * accuracyInflate,
		Method:         models.MethodTwoPoint,
		ComputedAt:     now,
	}
	return est, ErrDegenerateGeometry
}

// leastSquares 三个及以上网关的加权高斯-牛顿最小二乘
// 目标：最小化 Σ w_i * (‖P-G_i‖ - d_i)²，权重 w_i = 1/d_i²（近网关更可信）
func (e *Estimator) leastSquares(beaconID, floorID string, dists []GatewayDistance, now time.Time) (*models.PositionEstimate, error) {
	n := len(dists)
	weights := make([]float64, n)
	for i, d := range dists {
		dd := math.Max(d.Distance, minAccuracyValue)
		weights[i] = 1 / (dd * dd)
	}

	// 初值：距离反比加权质心
	x, y := weightedCentroid(dists, weights)

	converged := false
	degenerate := false
	for iter := 0; iter < maxIterations; iter++ {
		// 2x2正规方程 H·δ = -g
		var h11, h12, h22, g1, g2 float64
		for i, d := range dists {
			rx := x - d.X
			ry := y - d.Y
			dist := math.Hypot(rx, ry)
			if dist < 1e-9 {
				dist = 1e-9
			}
			ux := rx / dist
			uy := ry / dist
			r := dist - d.Distance

			w := weights[i]
			h11 += w * ux * ux
			h12 += w * ux * uy
			h22 += w * uy * uy
			g1 += w * r * ux
			g2 += w * r * uy
		}

		det := h11*h22 - h12*h12
		if math.Abs(det) < singularEpsilon {
			// 网关近似共线，正规方程奇异
			degenerate = true
			break
		}

		deltaX := -(h22*g1 - h12*g2) / det
		deltaY := -(-h12*g1 + h11*g2) / det
		x += deltaX
		y += deltaY

		if math.Hypot(deltaX, deltaY) < convergeEpsilon {
			converged = true
			break
		}
	}

	if degenerate {
		cx, cy := weightedCentroid(dists, weights)
		x, y = cx, cy
	}

	accuracy := math.Max(rmsResidual(dists, x, y), minAccuracyValue)
	est := &models.PositionEstimate{
		BeaconID:       beaconID,
		FloorID:        floorID,
		X:              x,
		Y:              y,
		AccuracyRadius: accuracy,
		Method:         models.MethodLeastSquares,
		ComputedAt:     now,
	}

	if degenerate {
		est.AccuracyRadius *= accuracyInflate
		return est, ErrDegenerateGeometry
	}
	if !converged {
		est.AccuracyRadius *= accuracyInflate
		return est, ErrNonConvergence
	}
	return est, nil
}

// weightedCentroid 网关位置的加权质心
func squaredDist(x1, y1, x2, y2 float64) float64 {
	dx := x1 - x2
	dy := y1 - y2
	return dx*dx + dy*dy
}

func weightedCentroid(dists []GatewayDistance, weights []float64) (float64, float64) {
	var sumW, sumX, sumY float64
	for i, d := range dists {
		sumW += weights[i]
		sumX += weights[i] * d.X
		sumY += weights[i] * d.Y
	}
	return sumX / sumW, sumY / sumW
}

// rmsResidual 解处残差的均方根，作为精度半径
func rmsResidual(dists []GatewayDistance, x, y float64) float64 {
	var sumSq float64
	for _, d := range dists {
		est := math.Hypot(x-d.X, y-d.Y)
		diff := est - d.Distance
		sumSq += diff * diff
	}
	return math.Sqrt(sumSq / float64(len(dists)))
}
