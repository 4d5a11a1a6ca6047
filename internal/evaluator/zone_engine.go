package evaluator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"wisefido-locator/internal/models"
)

// membership 单个(信标,区域)对的包含状态
type membership struct {
	since      time.Time
	dwellFired bool // 驻留报警已触发，离开区域后才重新武装
}

// ZoneEngine 区域引擎
// 对平滑位置做多边形包含判定，维护进出状态机并产生报警事件
// 同类型报警在冷却窗口内去重，抑制边界抖动产生的重复事件
type ZoneEngine struct {
	mu         sync.Mutex
	membership map[string]map[string]*membership // beaconID -> zoneID -> state
	lastAlert  map[string]time.Time              // beaconID|zoneID|alertType -> 最近触发时间

	cooldown time.Duration
	logger   *zap.Logger
}

// NewZoneEngine 创建区域引擎
func NewZoneEngine(cooldown time.Duration, logger *zap.Logger) *ZoneEngine {
	return &ZoneEngine{
		membership: make(map[string]map[string]*membership),
		lastAlert:  make(map[string]time.Time),
		cooldown:   cooldown,
		logger:     logger,
	}
}

// Evaluate 评估信标位置对一组区域的进出/驻留
// zones 应为信标所在楼层的区域；跨楼层的区域被跳过
// 状态转移始终生效，冷却窗口只抑制事件产出
func (e *ZoneEngine) Evaluate(beaconID string, pos models.SmoothedPosition, zones []*models.Zone, now time.Time) []models.ZoneAlertEvent {
	e.mu.Lock()
	defer e.mu.Unlock()

	var events []models.ZoneAlertEvent
	for _, zone := range zones {
		if !zone.IsActive || zone.FloorID != pos.FloorID {
			continue
		}
		if len(zone.Polygon) < 3 {
			e.logger.Warn("Zone polygon has fewer than 3 vertices, skipping",
				zap.String("zone_id", zone.ZoneID))
			continue
		}

		inside := PointInPolygon(pos.X, pos.Y, zone.Polygon)
		state := e.membershipFor(beaconID, zone.ZoneID)

		switch {
		case inside && state == nil:
			// Outside -> Inside
			e.setMembership(beaconID, zone.ZoneID, &membership{since: now})
			if zone.AlertOnEntry {
				if ev := e.emit(beaconID, zone, models.AlertEntry, pos, now); ev != nil {
					events = append(events, *ev)
				}
			}

		case !inside && state != nil:
			// Inside -> Outside
			e.clearMembership(beaconID, zone.ZoneID)
			if zone.AlertOnExit {
				if ev := e.emit(beaconID, zone, models.AlertExit, pos, now); ev != nil {
					events = append(events, *ev)
				}
			}

		case inside && state != nil:
			// Inside -> Inside：驻留判定，触发一次后等待离开重新武装
			if zone.DwellSeconds > 0 && !state.dwellFired &&
				now.Sub(state.since) >= time.Duration(zone.DwellSeconds)*time.Second {
				state.dwellFired = true
				if ev := e.emit(beaconID, zone, models.AlertDwell, pos, now); ev != nil {
					events = append(events, *ev)
				}
			}
		}
	}
	return events
}

// Membership 返回信标当前所在的区域ID及进入时间
func (e *ZoneEngine) Membership(beaconID string) []models.ZoneMembership {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []models.ZoneMembership
	for zoneID, state := range e.membership[beaconID] {
		out = append(out, models.ZoneMembership{
			BeaconID: beaconID,
			ZoneID:   zoneID,
			Since:    state.since,
		})
	}
	return out
}

// Forget 清除信标的全部区域状态
func (e *ZoneEngine) Forget(beaconID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.membership, beaconID)
}

// emit 产生报警事件，冷却窗口内的重复事件被抑制并返回nil
func (e *ZoneEngine) emit(beaconID string, zone *models.Zone, alertType models.AlertType, pos models.SmoothedPosition, now time.Time) *models.ZoneAlertEvent {
	key := fmt.Sprintf("%s|%s|%s", beaconID, zone.ZoneID, alertType)
	if last, ok := e.lastAlert[key]; ok && now.Sub(last) < e.cooldown {
		e.logger.Debug("Zone alert suppressed by cooldown",
			zap.String("beacon_id", beaconID),
			zap.String("zone_id", zone.ZoneID),
			zap.String("alert_type", string(alertType)))
		return nil
	}
	e.lastAlert[key] = now

	return &models.ZoneAlertEvent{
		EventID:     uuid.New().String(),
		BeaconID:    beaconID,
		ZoneID:      zone.ZoneID,
		AlertType:   alertType,
		X:           pos.X,
		Y:           pos.Y,
		TriggeredAt: now,
	}
}

func (e *ZoneEngine) membershipFor(beaconID, zoneID string) *membership {
	if zones, ok := e.membership[beaconID]; ok {
		return zones[zoneID]
	}
	return nil
}

func (e *ZoneEngine) setMembership(beaconID, zoneID string, state *membership) {
	if _, ok := e.membership[beaconID]; !ok {
		e.membership[beaconID] = make(map[string]*membership)
	}
	e.membership[beaconID][zoneID] = state
}

func (e *ZoneEngine) clearMembership(beaconID, zoneID string) {
	if zones, ok := e.membership[beaconID]; ok {
		delete(zones, zoneID)
		if len(zones) == 0 {
			delete(e.membership, beaconID)
		}
	}
}
