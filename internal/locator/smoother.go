package locator

import (
	"math"
	"sync"
	"time"

	"wisefido-locator/internal/models"
)

// Smoother 时间域平滑器
// 对连续的原始位置估计做指数平滑，抑制抖动并派生速度/航向
// 每个信标恰好持有一份当前平滑状态，更新整体替换而非就地修改
type Smoother struct {
	mu    sync.RWMutex
	state map[string]models.SmoothedPosition // key: beaconID

	alpha             float64       // 指数平滑系数
	stabilityDistance float64       // 静止判定距离阈值
	driftWindow       time.Duration // 静止判定时间窗
}

// NewSmoother 创建平滑器
func NewSmoother(alpha, stabilityDistance float64, driftWindow time.Duration) *Smoother {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.3
	}
	return &Smoother{
		state:             make(map[string]models.SmoothedPosition),
		alpha:             alpha,
		stabilityDistance: stabilityDistance,
		driftWindow:       driftWindow,
	}
}

// Update 用新的原始估计更新信标的平滑位置
// 首次观测：位置取原始值，速度为0，航向未定义（nil）
func (s *Smoother) Update(raw *models.PositionEstimate) models.SmoothedPosition {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.state[raw.BeaconID]
	if !ok || prev.FloorID != raw.FloorID {
		// 首次观测或跨楼层：直接采用原始值，航向缺省
		next := models.SmoothedPosition{
			BeaconID:  raw.BeaconID,
			FloorID:   raw.FloorID,
			X:         raw.X,
			Y:         raw.Y,
			VelocityX: 0,
			VelocityY: 0,
			Speed:     0,
			Heading:   nil,
			Accuracy:  raw.AccuracyRadius,
			UpdatedAt: raw.ComputedAt,
		}
		s.state[raw.BeaconID] = next
		return next
	}

	dt := raw.ComputedAt.Sub(prev.UpdatedAt).Seconds()
	if dt <= 0 {
		dt = 1e-3 // 时钟回拨或同刻重复，避免除零
	}

	movement := math.Hypot(raw.X-prev.X, raw.Y-prev.Y)
	elapsed := raw.ComputedAt.Sub(prev.UpdatedAt)

	var next models.SmoothedPosition
	if movement < s.stabilityDistance && elapsed < s.driftWindow {
		// 移动量低于噪声阈值：位置不前进，速度向零衰减
		next = prev
		next.VelocityX *= 1 - s.alpha
		next.VelocityY *= 1 - s.alpha
		next.Speed = math.Hypot(next.VelocityX, next.VelocityY)
		next.Accuracy = s.alpha*raw.AccuracyRadius + (1-s.alpha)*prev.Accuracy
		next.UpdatedAt = raw.ComputedAt
	} else {
		x := s.alpha*raw.X + (1-s.alpha)*prev.X
		y := s.alpha*raw.Y + (1-s.alpha)*prev.Y

		vx := (x - prev.X) / dt
		vy := (y - prev.Y) / dt
		speed := math.Hypot(vx, vy)

		heading := prev.Heading
		if speed > 0 {
			h := math.Atan2(vy, vx) * 180 / math.Pi
			if h < 0 {
				h += 360
			}
			heading = &h
		}

		next = models.SmoothedPosition{
			BeaconID:  raw.BeaconID,
			FloorID:   raw.FloorID,
			X:         x,
			Y:         y,
			VelocityX: vx,
			VelocityY: vy,
			Speed:     speed,
			Heading:   heading,
			Accuracy:  s.alpha*raw.AccuracyRadius + (1-s.alpha)*prev.Accuracy,
			UpdatedAt: raw.ComputedAt,
		}
	}

	s.state[raw.BeaconID] = next
	return next
}

// Get 返回信标当前的平滑位置
func (s *Smoother) Get(beaconID string) (models.SmoothedPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.state[beaconID]
	return pos, ok
}

// Forget 清除信标的平滑状态（设备下线或被删除时调用）
func (s *Smoother) Forget(beaconID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, beaconID)
}
