package locator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wisefido-locator/internal/models"
)

func TestEstimator_InsufficientGateways(t *testing.T) {
	est := NewEstimator()
	now := time.Now()

	_, err := est.Estimate("beacon-1", "floor-1", nil, nil, now)
	assert.ErrorIs(t, err, ErrInsufficientGateways)

	_, err = est.Estimate("beacon-1", "floor-1", []GatewayDistance{
		{GatewayID: "gw-1", X: 0, Y: 0, Distance: 5},
	}, nil, now)
	assert.ErrorIs(t, err, ErrInsufficientGateways)
}

func TestEstimator_TwoPoint_Intersecting(t *testing.T) {
	est := NewEstimator()
	now := time.Now()

	// 两圆相交：(0,0)r5 与 (8,0)r5，候选交点 (4,3) 与 (4,-3)，弦半长3
	// 无历史位置时固定取连线左法向一侧的候选
	pos, err := est.Estimate("beacon-1", "floor-1", []GatewayDistance{
		{GatewayID: "gw-1", X: 0, Y: 0, Distance: 5},
		{GatewayID: "gw-2", X: 8, Y: 0, Distance: 5},
	}, nil, now)
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Equal(t, models.MethodTwoPoint, pos.Method)
	assert.InDelta(t, 4.0, pos.X, 1e-9)
	assert.InDelta(t, 3.0, pos.Y, 1e-9)
	assert.InDelta(t, 3.0, pos.AccuracyRadius, 1e-9)
}

func TestEstimator_TwoPoint_PreviousPositionSelectsCandidate(t *testing.T) {
	est := NewEstimator()
	now := time.Now()

	dists := []GatewayDistance{
		{GatewayID: "gw-1", X: 0, Y: 0, Distance: 5},
		{GatewayID: "gw-2", X: 8, Y: 0, Distance: 5},
	}

	// 历史位置在下半平面：选择 (4,-3) 而非 (4,3)
	prev := &models.SmoothedPosition{BeaconID: "beacon-1", FloorID: "floor-1", X: 4.2, Y: -2.5}
	pos, err := est.Estimate("beacon-1", "floor-1", dists, prev, now)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, pos.X, 1e-9)
	assert.InDelta(t, -3.0, pos.Y, 1e-9)

	// 历史位置在上半平面：选择 (4,3)
	prev = &models.SmoothedPosition{BeaconID: "beacon-1", FloorID: "floor-1", X: 3.8, Y: 2.0}
	pos, err = est.Estimate("beacon-1", "floor-1", dists, prev, now)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, pos.Y, 1e-9)

	// 历史位置属于其他楼层：忽略，回到确定性一侧
	prev = &models.SmoothedPosition{BeaconID: "beacon-1", FloorID: "floor-2", X: 4.2, Y: -2.5}
	pos, err = est.Estimate("beacon-1", "floor-1", dists, prev, now)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, pos.Y, 1e-9)
}

func TestEstimator_TwoPoint_NonIntersecting(t *testing.T) {
	est := NewEstimator()
	now := time.Now()

	// 两圆不相交：退化为连线上距离反比加权点，精度降级
	pos, err := est.Estimate("beacon-1", "floor-1", []GatewayDistance{
		{GatewayID: "gw-1", X: 0, Y: 0, Distance: 2},
		{GatewayID: "gw-2", X: 10, Y: 0, Distance: 3},
	}, nil, now)
	assert.ErrorIs(t, err, ErrDegenerateGeometry)
	require.NotNil(t, pos)

	// 近网关权重大：位置偏向gw-1
	assert.Less(t, pos.X, 5.0)
	assert.Greater(t, pos.X, 0.0)
	assert.Equal(t, 0.0, pos.Y)
	assert.Greater(t, pos.AccuracyRadius, (2.0+3.0)/2)
}

func TestEstimator_LeastSquares_ExactTriangle(t *testing.T) {
	est := NewEstimator()
	now := time.Now()

	// 零噪声：距离严格由真实点(3,4)解析导出，应精确还原
	truth := [2]float64{3, 4}
	gws := []GatewayDistance{
		{GatewayID: "gw-a", X: 0, Y: 0},
		{GatewayID: "gw-b", X: 10, Y: 0},
		{GatewayID: "gw-c", X: 0, Y: 10},
	}
	for i := range gws {
		gws[i].Distance = math.Hypot(truth[0]-gws[i].X, truth[1]-gws[i].Y)
	}

	pos, err := est.Estimate("beacon-1", "floor-1", gws, nil, now)
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.Equal(t, models.MethodLeastSquares, pos.Method)
	assert.InDelta(t, truth[0], pos.X, 1e-3)
	assert.InDelta(t, truth[1], pos.Y, 1e-3)
}

func TestEstimator_LeastSquares_NoisyScenario(t *testing.T) {
	est := NewEstimator()
	now := time.Now()

	// 带噪距离：A(0,0)=5.0 B(10,0)=8.6 C(0,10)=8.6 → 约(3.5,3.5)
	pos, err := est.Estimate("beacon-1", "floor-1", []GatewayDistance{
		{GatewayID: "gw-a", X: 0, Y: 0, Distance: 5.0},
		{GatewayID: "gw-b", X: 10, Y: 0, Distance: 8.6},
		{GatewayID: "gw-c", X: 0, Y: 10, Distance: 8.6},
	}, nil, now)
	require.NoError(t, err)
	require.NotNil(t, pos)

	assert.InDelta(t, 3.5, pos.X, 0.5)
	assert.InDelta(t, 3.5, pos.Y, 0.5)
	// 距离不自洽，残差应体现为非零精度半径
	assert.Greater(t, pos.AccuracyRadius, 0.5)
}

func TestEstimator_LeastSquares_CollinearGateways(t *testing.T) {
	est := NewEstimator()
	now := time.Now()

	// 三网关共线：正规方程奇异，返回加权质心并降级
	pos, err := est.Estimate("beacon-1", "floor-1", []GatewayDistance{
		{GatewayID: "gw-a", X: 0, Y: 0, Distance: 3},
		{GatewayID: "gw-b", X: 5, Y: 0, Distance: 3},
		{GatewayID: "gw-c", X: 10, Y: 0, Distance: 3},
	}, nil, now)
	require.NotNil(t, pos)

	if err != nil {
		assert.ErrorIs(t, err, ErrDegenerateGeometry)
	}
	assert.Equal(t, 0.0, pos.Y)
}

func TestEstimator_Deterministic(t *testing.T) {
	est := NewEstimator()
	now := time.Now()

	gws := []GatewayDistance{
		{GatewayID: "gw-a", X: 0, Y: 0, Distance: 5.0},
		{GatewayID: "gw-b", X: 10, Y: 0, Distance: 8.6},
		{GatewayID: "gw-c", X: 0, Y: 10, Distance: 8.6},
	}
	reversed := []GatewayDistance{gws[2], gws[1], gws[0]}

	pos1, err1 := est.Estimate("beacon-1", "floor-1", gws, nil, now)
	pos2, err2 := est.Estimate("beacon-1", "floor-1", reversed, nil, now)
	require.NoError(t, err1)
	require.NoError(t, err2)

	// 输入顺序不影响浮点累加结果
	assert.Equal(t, pos1.X, pos2.X)
	assert.Equal(t, pos1.Y, pos2.Y)
	assert.Equal(t, pos1.AccuracyRadius, pos2.AccuracyRadius)
}
