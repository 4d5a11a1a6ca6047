package locator

import "errors"

// 定位管线的可恢复错误
// 均不致命：调用方记录计数后跳过本tick的该信标
var (
	// ErrInsufficientGateways 可用网关距离估计少于2个，无法三角定位
	ErrInsufficientGateways = errors.New("insufficient gateways for position estimation")

	// ErrDegenerateGeometry 网关几何退化（共线/矩阵奇异），返回降级估计
	ErrDegenerateGeometry = errors.New("degenerate gateway geometry")

	// ErrNonConvergence 最小二乘迭代达到上限未收敛，返回最优迭代值
	ErrNonConvergence = errors.New("least squares iteration did not converge")
)
