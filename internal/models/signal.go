package models

import (
	"time"
)

// Reading 入站总线解码后的单条读数（MQTT消息解析结果）
//
// MAC地址尚未解析为内部ID，RSSI为原始dBm值
type Reading struct {
	GatewayMac string    `json:"gateway_mac"`
	BeaconMac  string    `json:"beacon_mac"`
	RSSI       float64   `json:"rssi"`
	ObservedAt time.Time `json:"observed_at"`
}

// RawSignal 原始RSSI观测（已解析为内部ID）
//
// 只追加，不更新；仅在聚合窗口内保留（超时由清理任务淘汰）
type RawSignal struct {
	BeaconID   string    `json:"beacon_id" db:"beacon_id"`
	GatewayID  string    `json:"gateway_id" db:"gateway_id"`
	RSSI       float64   `json:"rssi" db:"rssi"`
	ObservedAt time.Time `json:"observed_at" db:"observed_at"`
}

// AggregatedSignal 聚合信号（每个tick按(beacon, gateway)重新计算，不持久化）
type AggregatedSignal struct {
	BeaconID    string    `json:"beacon_id"`
	GatewayID   string    `json:"gateway_id"`
	RobustRSSI  float64   `json:"robust_rssi"` // IQR过滤后的中位数（dBm）
	SampleCount int       `json:"sample_count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}
