package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-locator/internal/evaluator"
	"wisefido-locator/internal/locator"
	"wisefido-locator/internal/models"
	"wisefido-locator/internal/signalstore"
)

// State 调度器状态
type State int32

const (
	StateStopped State = iota
	StateRunning
)

// ConfigSource 设备与区域配置查询
type ConfigSource interface {
	GatewayByID(gatewayID string) (*models.Gateway, bool)
	BeaconByID(beaconID string) (*models.Beacon, bool)
	ZonesOnFloor(floorID string) []*models.Zone
}

// PositionSink 位置估计持久化
type PositionSink interface {
	AppendPosition(ctx context.Context, pos *models.PositionEstimate) error
}

// AlertSink 报警事件持久化
type AlertSink interface {
	AppendAlert(ctx context.Context, event *models.ZoneAlertEvent) error
}

// OutboundPublisher 出站消息入队
type OutboundPublisher interface {
	PublishPosition(beacon *models.Beacon, pos models.SmoothedPosition)
	PublishAlert(beacon *models.Beacon, zone *models.Zone, event models.ZoneAlertEvent)
}

// Scheduler 处理调度器
// 固定周期驱动 聚合→估计→平滑→区域判定 管线
// 每tick内各信标独立并行，单个信标失败不影响其他信标
type Scheduler struct {
	store      *signalstore.Store
	aggregator *locator.Aggregator
	pathLoss   *locator.PathLossModel
	estimator  *locator.Estimator
	smoother   *locator.Smoother
	zoneEngine *evaluator.ZoneEngine
	registry   ConfigSource
	positions  PositionSink
	alerts     AlertSink
	publisher  OutboundPublisher
	logger     *zap.Logger
	metrics    *Metrics

	tickPeriod time.Duration
	workers    int

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	stopped chan struct{}

	beaconLocks sync.Map // beaconID -> *sync.Mutex，跨tick串行化单信标处理
}

// NewScheduler 创建调度器
func NewScheduler(
	store *signalstore.Store,
	aggregator *locator.Aggregator,
	pathLoss *locator.PathLossModel,
	estimator *locator.Estimator,
	smoother *locator.Smoother,
	zoneEngine *evaluator.ZoneEngine,
	registry ConfigSource,
	positions PositionSink,
	alerts AlertSink,
	publisher OutboundPublisher,
	tickPeriod time.Duration,
	workers int,
	logger *zap.Logger,
) *Scheduler {
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		store:      store,
		aggregator: aggregator,
		pathLoss:   pathLoss,
		estimator:  estimator,
		smoother:   smoother,
		zoneEngine: zoneEngine,
		registry:   registry,
		positions:  positions,
		alerts:     alerts,
		publisher:  publisher,
		tickPeriod: tickPeriod,
		workers:    workers,
		logger:     logger,
		metrics:    &Metrics{},
		state:      StateStopped,
	}
}

// Start 启动调度循环
// 已在运行时返回错误
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateRunning {
		return errors.New("scheduler already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	s.state = StateRunning

	go s.run(runCtx)

	s.logger.Info("Scheduler started",
		zap.Duration("tick_period", s.tickPeriod),
		zap.Int("workers", s.workers))
	return nil
}

// Stop 停止调度
// 在途tick中尚未开始的信标被放弃，已开始的在宽限期内完成
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	cancel := s.cancel
	stopped := s.stopped
	s.mu.Unlock()

	cancel()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Scheduler stop grace period expired")
	}
	s.logger.Info("Scheduler stopped")
}

// State 返回当前状态
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Metrics 返回统计快照
func (s *Scheduler) Metrics() Metrics {
	return s.metrics.Snapshot()
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.stopped)

	ticker := time.NewTicker(s.tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx, time.Now())
		}
	}
}

// tick 处理一个周期
// 信号存储的窗口读在tick开始即确定，迟到的观测留给下一tick
func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	beacons := s.store.ActiveBeacons()
	sort.Strings(beacons)

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for beaconID := range jobs {
				s.processBeacon(ctx, beaconID, now)
			}
		}()
	}

dispatch:
	for _, beaconID := range beacons {
		select {
		case <-ctx.Done():
			// 停止：放弃本tick剩余信标
			break dispatch
		case jobs <- beaconID:
		}
	}
	close(jobs)
	wg.Wait()

	evicted := s.store.Evict(now)
	s.metrics.mu.Lock()
	s.metrics.TicksProcessed++
	s.metrics.SignalsEvicted += int64(evicted)
	s.metrics.mu.Unlock()
}

// processBeacon 驱动单个信标的完整管线
// 所有估计错误均可恢复：计数后本tick不更新该信标
func (s *Scheduler) processBeacon(ctx context.Context, beaconID string, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while processing beacon",
				zap.String("beacon_id", beaconID),
				zap.Any("panic", r))
		}
	}()

	// 串行化同一信标的状态更新
	lockVal, _ := s.beaconLocks.LoadOrStore(beaconID, &sync.Mutex{})
	lock := lockVal.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	beacon, ok := s.registry.BeaconByID(beaconID)
	if !ok {
		// 设备已被停用，残留信号等待淘汰
		return
	}

	aggregated := s.aggregator.Aggregate(beaconID, now)
	if len(aggregated) == 0 {
		return
	}

	s.metrics.incr(&s.metrics.BeaconsProcessed, 1)

	dists, floorID := s.buildDistances(aggregated)

	// 历史平滑位置用于两圆交点的歧义消解
	var prev *models.SmoothedPosition
	if last, ok := s.smoother.Get(beaconID); ok {
		prev = &last
	}

	raw, err := s.estimator.Estimate(beaconID, floorID, dists, prev, now)
	if err != nil {
		switch {
		case errors.Is(err, locator.ErrInsufficientGateways):
			s.metrics.incr(&s.metrics.InsufficientGateways, 1)
			return
		case errors.Is(err, locator.ErrDegenerateGeometry):
			s.metrics.incr(&s.metrics.DegenerateGeometry, 1)
		case errors.Is(err, locator.ErrNonConvergence):
			s.metrics.incr(&s.metrics.NonConvergence, 1)
		default:
			s.logger.Error("Position estimation failed",
				zap.String("beacon_id", beaconID),
				zap.Error(err))
			return
		}
		// 降级估计仍然可用，继续处理
	}
	if raw == nil {
		return
	}

	if appendErr := s.positions.AppendPosition(ctx, raw); appendErr != nil {
		s.metrics.incr(&s.metrics.StoreErrors, 1)
		s.logger.Error("Failed to persist position estimate",
			zap.String("beacon_id", beaconID),
			zap.Error(appendErr))
	}

	smoothed := s.smoother.Update(raw)
	s.publisher.PublishPosition(beacon, smoothed)
	s.metrics.incr(&s.metrics.PositionsEmitted, 1)

	zones := s.registry.ZonesOnFloor(smoothed.FloorID)
	if len(zones) == 0 {
		return
	}
	events := s.zoneEngine.Evaluate(beaconID, smoothed, zones, now)
	for _, event := range events {
		event := event
		if appendErr := s.alerts.AppendAlert(ctx, &event); appendErr != nil {
			s.metrics.incr(&s.metrics.StoreErrors, 1)
			s.logger.Error("Failed to persist zone alert",
				zap.String("beacon_id", beaconID),
				zap.String("zone_id", event.ZoneID),
				zap.Error(appendErr))
		}
		if zone := findZone(zones, event.ZoneID); zone != nil {
			s.publisher.PublishAlert(beacon, zone, event)
		}
		s.metrics.incr(&s.metrics.AlertsEmitted, 1)
	}
}

// buildDistances 将聚合信号换算为网关距离输入
// 多楼层网关同时收到信号时，取网关数最多的楼层（平手取楼层ID较小者）
func (s *Scheduler) buildDistances(aggregated map[string]models.AggregatedSignal) ([]locator.GatewayDistance, string) {
	byFloor := make(map[string][]locator.GatewayDistance)
	for gatewayID, sig := range aggregated {
		gateway, ok := s.registry.GatewayByID(gatewayID)
		if !ok {
			continue
		}
		if !s.pathLoss.Calibrated(gateway) {
			// 默认标定仍可用，但需要可观测以便运维补录
			s.metrics.incr(&s.metrics.MissingCalibration, 1)
			s.logger.Debug("Gateway missing calibration, using defaults",
				zap.String("gateway_id", gatewayID))
		}
		byFloor[gateway.FloorID] = append(byFloor[gateway.FloorID], locator.GatewayDistance{
			GatewayID: gatewayID,
			X:         gateway.X,
			Y:         gateway.Y,
			Distance:  s.pathLoss.Distance(gateway, sig.RobustRSSI),
		})
	}

	var bestFloor string
	for floorID, dists := range byFloor {
		if bestFloor == "" ||
			len(dists) > len(byFloor[bestFloor]) ||
			(len(dists) == len(byFloor[bestFloor]) && floorID < bestFloor) {
			bestFloor = floorID
		}
	}
	return byFloor[bestFloor], bestFloor
}

func findZone(zones []*models.Zone, zoneID string) *models.Zone {
	for _, zone := range zones {
		if zone.ZoneID == zoneID {
			return zone
		}
	}
	return nil
}
