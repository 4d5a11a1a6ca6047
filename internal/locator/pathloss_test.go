package locator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"wisefido-locator/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestPathLossModel_Distance(t *testing.T) {
	model := NewPathLossModel(0.1, 100.0)
	gw := &models.Gateway{GatewayID: "gw-1"}

	// 默认标定 -59dBm/2.0：-79dBm → 10^0.5 ≈ 3.162米
	d := model.Distance(gw, -79)
	assert.InDelta(t, 3.162, d, 0.01)

	// -99dBm → 10米
	d = model.Distance(gw, -99)
	assert.InDelta(t, 10.0, d, 0.01)
}

func TestPathLossModel_ClampMin(t *testing.T) {
	model := NewPathLossModel(0.1, 100.0)
	gw := &models.Gateway{GatewayID: "gw-1"}

	// RSSI超过参考功率：信标贴着网关，取下限
	assert.Equal(t, 0.1, model.Distance(gw, -59))
	assert.Equal(t, 0.1, model.Distance(gw, -30))
}

func TestPathLossModel_ClampMax(t *testing.T) {
	model := NewPathLossModel(0.1, 100.0)
	gw := &models.Gateway{GatewayID: "gw-1"}

	// 极弱信号：距离封顶
	assert.Equal(t, 100.0, model.Distance(gw, -160))
}

func TestPathLossModel_GatewayCalibration(t *testing.T) {
	model := NewPathLossModel(0.1, 100.0)
	gw := &models.Gateway{
		GatewayID:        "gw-1",
		ReferencePower:   floatPtr(-65),
		PathLossExponent: floatPtr(3.0),
	}

	// 自定义标定 -65dBm/3.0：-95dBm → 10^(30/30) = 10米
	d := model.Distance(gw, -95)
	assert.InDelta(t, 10.0, d, 0.01)
}

func TestPathLossModel_Calibrated(t *testing.T) {
	model := NewPathLossModel(0.1, 100.0)

	assert.True(t, model.Calibrated(&models.Gateway{
		ReferencePower:   floatPtr(-59),
		PathLossExponent: floatPtr(2.0),
	}))

	// 任一参数缺失或非法均视为未标定
	assert.False(t, model.Calibrated(&models.Gateway{}))
	assert.False(t, model.Calibrated(&models.Gateway{ReferencePower: floatPtr(-59)}))
	assert.False(t, model.Calibrated(&models.Gateway{
		ReferencePower:   floatPtr(-59),
		PathLossExponent: floatPtr(0),
	}))
}

func TestPathLossModel_Monotonic(t *testing.T) {
	model := NewPathLossModel(0.1, 100.0)
	gw := &models.Gateway{GatewayID: "gw-1"}

	// RSSI越强距离越近（非严格递减，受上下限约束）
	prev := model.Distance(gw, -120)
	for rssi := -119.0; rssi <= -40; rssi++ {
		d := model.Distance(gw, rssi)
		assert.LessOrEqual(t, d, prev, "rssi=%v", rssi)
		assert.GreaterOrEqual(t, d, 0.1)
		prev = d
	}
}
