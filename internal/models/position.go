package models

import (
	"time"
)

// EstimationMethod 定位算法类型（按可用网关数选择）
type EstimationMethod string

const (
	MethodTwoPoint     EstimationMethod = "two_point"     // 2个网关：圆交点/连线插值
	MethodLeastSquares EstimationMethod = "least_squares" // ≥3个网关：加权非线性最小二乘
)

// PositionEstimate 原始位置估计（对应 positions 表，每tick每信标至多一条）
type PositionEstimate struct {
	PositionID     string           `json:"position_id" db:"position_id"`
	BeaconID       string           `json:"beacon_id" db:"beacon_id"`
	FloorID        string           `json:"floor_id" db:"floor_id"`
	X              float64          `json:"x_position" db:"x_position"`
	Y              float64          `json:"y_position" db:"y_position"`
	AccuracyRadius float64          `json:"accuracy" db:"accuracy"` // 不确定半径（由残差推导，非固定值）
	Method         EstimationMethod `json:"calculation_method" db:"calculation_method"`
	ComputedAt     time.Time        `json:"computed_at" db:"computed_at"`
}

// SmoothedPosition 平滑位置（每信标恰好一个活动实例，由平滑器独占）
//
// 每tick整体替换（不原地修改），旧值仅作只读历史
// Heading 首次观测时为 nil（无航向，避免误示向东运动）
type SmoothedPosition struct {
	BeaconID  string    `json:"beacon_id"`
	FloorID   string    `json:"floor_id"`
	X         float64   `json:"x"`
	Y         float64   `json:"y"`
	VelocityX float64   `json:"velocity_x"`
	VelocityY float64   `json:"velocity_y"`
	Speed     float64   `json:"speed"`
	Heading   *float64  `json:"heading,omitempty"` // 角度 [0, 360)，nil 表示未定义
	Accuracy  float64   `json:"accuracy"`
	UpdatedAt time.Time `json:"updated_at"`
}
