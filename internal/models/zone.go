package models

import (
	"time"
)

// Point 平面坐标点（楼层平面图单位）
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Zone 地理围栏区域（对应 zones 表）
//
// 多边形顶点有序，≥3个且不自交（由外部创建方校验）
type Zone struct {
	ZoneID   string  `json:"zone_id" db:"zone_id"`
	FloorID  string  `json:"floor_id" db:"floor_id"`
	Name     string  `json:"name" db:"name"`
	Polygon  []Point `json:"polygon" db:"polygon"` // JSONB
	IsActive bool    `json:"is_active" db:"is_active"`

	// 报警配置
	AlertOnEntry bool `json:"alert_on_entry" db:"alert_on_entry"`
	AlertOnExit  bool `json:"alert_on_exit" db:"alert_on_exit"`
	DwellSeconds int  `json:"dwell_seconds" db:"dwell_seconds"` // 0 表示不启用滞留报警
}

// AlertType 区域报警类型
type AlertType string

const (
	AlertEntry AlertType = "entry"
	AlertExit  AlertType = "exit"
	AlertDwell AlertType = "dwell"
)

// ZoneMembership 当前包含状态（由区域引擎独占，每个在内的(beacon, zone)一条）
type ZoneMembership struct {
	BeaconID string    `json:"beacon_id"`
	ZoneID   string    `json:"zone_id"`
	Since    time.Time `json:"since"`
}

// ZoneAlertEvent 区域报警事件（对应 zone_alerts 表）
//
// 同一(beacon, zone, alert_type)在冷却窗口内不重复创建
type ZoneAlertEvent struct {
	EventID      string    `json:"event_id" db:"event_id"`
	BeaconID     string    `json:"beacon_id" db:"beacon_id"`
	ZoneID       string    `json:"zone_id" db:"zone_id"`
	AlertType    AlertType `json:"alert_type" db:"alert_type"`
	X            float64   `json:"x_position" db:"x_position"`
	Y            float64   `json:"y_position" db:"y_position"`
	TriggeredAt  time.Time `json:"triggered_at" db:"triggered_at"`
	Acknowledged bool      `json:"acknowledged" db:"acknowledged"`
}
