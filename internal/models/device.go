package models

// Gateway BLE网关（固定接收器，对应 gateways 表）
//
// 位置坐标使用楼层平面图单位，处理周期内不可变
// 校准参数用于路径损耗模型（参考功率/路径损耗指数）
type Gateway struct {
	GatewayID  string  `json:"gateway_id" db:"gateway_id"`
	FloorID    string  `json:"floor_id" db:"floor_id"`
	MacAddress string  `json:"mac_address" db:"mac_address"`
	Name       string  `json:"name" db:"name"`
	X          float64 `json:"x_position" db:"x_position"`
	Y          float64 `json:"y_position" db:"y_position"`
	IsActive   bool    `json:"is_active" db:"is_active"`

	// 校准参数（可为空，为空时使用默认校准）
	ReferencePower   *float64 `json:"reference_power,omitempty" db:"reference_power"`    // 1米处参考功率（dBm），典型值 -59
	PathLossExponent *float64 `json:"path_loss_exponent,omitempty" db:"path_loss_exponent"` // 路径损耗指数，自由空间 2.0
}

// Beacon BLE信标（移动标签，对应 beacons 表）
//
// 身份信息不可变，核心只读不写
type Beacon struct {
	BeaconID     string `json:"beacon_id" db:"beacon_id"`
	MacAddress   string `json:"mac_address" db:"mac_address"`
	Name         string `json:"name" db:"name"`
	ResourceType string `json:"resource_type" db:"resource_type"`
	IsActive     bool   `json:"is_active" db:"is_active"`
}
