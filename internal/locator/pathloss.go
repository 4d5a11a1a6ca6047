package locator

import (
	"math"

	"wisefido-locator/internal/models"
)

// 未标定网关的默认参考值（BLE典型值：1米处-59dBm，自由空间指数2.0）
const (
	DefaultReferencePower   = -59.0
	DefaultPathLossExponent = 2.0
)

// PathLossModel 对数距离路径损耗模型
// distance = 10 ^ ((reference_power - rssi) / (10 * exponent))
type PathLossModel struct {
	minDistance float64 // 距离下限（米），防止RSSI超过参考功率时指数爆炸
	maxDistance float64 // 距离上限（米）
}

// NewPathLossModel 创建路径损耗模型
func NewPathLossModel(minDistance, maxDistance float64) *PathLossModel {
	if minDistance <= 0 {
		minDistance = 0.1
	}
	if maxDistance <= minDistance {
		maxDistance = 100.0
	}
	return &PathLossModel{
		minDistance: minDistance,
		maxDistance: maxDistance,
	}
}

// Calibrated 判断网关是否带有可用的标定参数
// 未标定网关仍可参与定位（使用默认值），但调用方应对此计数
func (m *PathLossModel) Calibrated(gateway *models.Gateway) bool {
	return gateway.ReferencePower != nil &&
		gateway.PathLossExponent != nil && *gateway.PathLossExponent > 0
}

// Distance 将RSSI换算为估计距离（米）
// 网关未标定时使用默认参考值，属可恢复默认而非错误
func (m *PathLossModel) Distance(gateway *models.Gateway, rssi float64) float64 {
	refPower := DefaultReferencePower
	exponent := DefaultPathLossExponent
	if gateway.ReferencePower != nil {
		refPower = *gateway.ReferencePower
	}
	if gateway.PathLossExponent != nil && *gateway.PathLossExponent > 0 {
		exponent = *gateway.PathLossExponent
	}

	// 信标几乎贴着网关
	if rssi >= refPower {
		return m.minDistance
	}

	ratio := (refPower - rssi) / (10 * exponent)
	distance := math.Pow(10, ratio)

	if distance < m.minDistance {
		return m.minDistance
	}
	if distance > m.maxDistance {
		return m.maxDistance
	}
	return distance
}
