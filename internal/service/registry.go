package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-locator/internal/models"
	"wisefido-locator/internal/repository"
)

// Registry 设备与区域配置缓存
// 配置由外部管理端写库，定位核心周期性刷新快照，处理路径无数据库访问
type Registry struct {
	mu             sync.RWMutex
	gatewaysByMac  map[string]*models.Gateway
	gatewaysByID   map[string]*models.Gateway
	beaconsByMac   map[string]*models.Beacon
	beaconsByID    map[string]*models.Beacon
	zonesByFloor   map[string][]*models.Zone
	lastRefreshed  time.Time

	deviceRepo *repository.DeviceRepository
	zoneRepo   *repository.ZoneRepository
	logger     *zap.Logger
}

// NewRegistry 创建配置缓存
func NewRegistry(deviceRepo *repository.DeviceRepository, zoneRepo *repository.ZoneRepository, logger *zap.Logger) *Registry {
	return &Registry{
		gatewaysByMac: make(map[string]*models.Gateway),
		gatewaysByID:  make(map[string]*models.Gateway),
		beaconsByMac:  make(map[string]*models.Beacon),
		beaconsByID:   make(map[string]*models.Beacon),
		zonesByFloor:  make(map[string][]*models.Zone),
		deviceRepo:    deviceRepo,
		zoneRepo:      zoneRepo,
		logger:        logger,
	}
}

// Refresh 从数据库重建配置快照
// 任一查询失败则保留旧快照，返回错误供调用方计数
func (r *Registry) Refresh(ctx context.Context) error {
	gateways, err := r.deviceRepo.GetActiveGateways(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh gateways: %w", err)
	}
	beacons, err := r.deviceRepo.GetActiveBeacons(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh beacons: %w", err)
	}
	zones, err := r.zoneRepo.GetActiveZones(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh zones: %w", err)
	}

	gatewaysByMac := make(map[string]*models.Gateway, len(gateways))
	gatewaysByID := make(map[string]*models.Gateway, len(gateways))
	for _, gw := range gateways {
		gatewaysByMac[repository.NormalizeMac(gw.MacAddress)] = gw
		gatewaysByID[gw.GatewayID] = gw
	}

	beaconsByMac := make(map[string]*models.Beacon, len(beacons))
	beaconsByID := make(map[string]*models.Beacon, len(beacons))
	for _, b := range beacons {
		beaconsByMac[repository.NormalizeMac(b.MacAddress)] = b
		beaconsByID[b.BeaconID] = b
	}

	zonesByFloor := make(map[string][]*models.Zone)
	for _, zone := range zones {
		zonesByFloor[zone.FloorID] = append(zonesByFloor[zone.FloorID], zone)
	}

	r.mu.Lock()
	r.gatewaysByMac = gatewaysByMac
	r.gatewaysByID = gatewaysByID
	r.beaconsByMac = beaconsByMac
	r.beaconsByID = beaconsByID
	r.zonesByFloor = zonesByFloor
	r.lastRefreshed = time.Now()
	r.mu.Unlock()

	r.logger.Info("Device registry refreshed",
		zap.Int("gateways", len(gateways)),
		zap.Int("beacons", len(beacons)),
		zap.Int("zones", len(zones)))
	return nil
}

// RunRefreshLoop 周期性刷新，直到ctx取消
func (r *Registry) RunRefreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Error("Registry refresh failed, keeping previous snapshot", zap.Error(err))
			}
		}
	}
}

// GatewayByMac 按归一化MAC查网关
func (r *Registry) GatewayByMac(mac string) (*models.Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gatewaysByMac[repository.NormalizeMac(mac)]
	return gw, ok
}

// BeaconByMac 按归一化MAC查信标
func (r *Registry) BeaconByMac(mac string) (*models.Beacon, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.beaconsByMac[repository.NormalizeMac(mac)]
	return b, ok
}

// GatewayByID 按ID查网关
func (r *Registry) GatewayByID(gatewayID string) (*models.Gateway, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gw, ok := r.gatewaysByID[gatewayID]
	return gw, ok
}

// BeaconByID 按ID查信标
func (r *Registry) BeaconByID(beaconID string) (*models.Beacon, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.beaconsByID[beaconID]
	return b, ok
}

// ZonesOnFloor 返回楼层的区域列表
func (r *Registry) ZonesOnFloor(floorID string) []*models.Zone {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.zonesByFloor[floorID]
}

// LastRefreshed 返回最近一次成功刷新的时间
func (r *Registry) LastRefreshed() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastRefreshed
}
