package scheduler

import "sync"

// Metrics 处理管线统计
// 可恢复错误按类别计数，保证不中断处理的同时仍可观测
type Metrics struct {
	mu sync.Mutex

	TicksProcessed       int64
	BeaconsProcessed     int64
	PositionsEmitted     int64
	AlertsEmitted        int64
	InsufficientGateways int64
	DegenerateGeometry   int64
	NonConvergence       int64
	MissingCalibration   int64
	StoreErrors          int64
	SignalsEvicted       int64
}

func (m *Metrics) incr(field *int64, delta int64) {
	m.mu.Lock()
	*field += delta
	m.mu.Unlock()
}

// Snapshot 返回当前统计快照
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		TicksProcessed:       m.TicksProcessed,
		BeaconsProcessed:     m.BeaconsProcessed,
		PositionsEmitted:     m.PositionsEmitted,
		AlertsEmitted:        m.AlertsEmitted,
		InsufficientGateways: m.InsufficientGateways,
		DegenerateGeometry:   m.DegenerateGeometry,
		NonConvergence:       m.NonConvergence,
		MissingCalibration:   m.MissingCalibration,
		StoreErrors:          m.StoreErrors,
		SignalsEvicted:       m.SignalsEvicted,
	}
}
