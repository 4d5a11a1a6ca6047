package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-locator/internal/common/mqtt"
	"wisefido-locator/internal/common/redis"
	"wisefido-locator/internal/config"
	"wisefido-locator/internal/consumer"
	"wisefido-locator/internal/evaluator"
	"wisefido-locator/internal/locator"
	"wisefido-locator/internal/models"
	"wisefido-locator/internal/publisher"
	"wisefido-locator/internal/repository"
	"wisefido-locator/internal/scheduler"
	"wisefido-locator/internal/signalstore"
)

// LocatorService 定位服务
// 组装信号消费、处理调度与出站发布三条链路
type LocatorService struct {
	cfg    *config.Config
	logger *zap.Logger

	registry   *Registry
	store      *signalstore.Store
	consumer   *consumer.MQTTConsumer
	publisher  *publisher.Publisher
	scheduler  *scheduler.Scheduler
	positions  *repository.PositionRepository
	alerts     *repository.AlertRepository
	signals    *repository.SignalRepository

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewLocatorService 创建定位服务
func NewLocatorService(
	cfg *config.Config,
	db *sql.DB,
	redisClient *redis.Client,
	mqttClient *mqtt.Client,
	logger *zap.Logger,
) *LocatorService {
	deviceRepo := repository.NewDeviceRepository(db, logger)
	zoneRepo := repository.NewZoneRepository(db, logger)
	positionRepo := repository.NewPositionRepository(db, logger)
	alertRepo := repository.NewAlertRepository(db, logger)
	signalRepo := repository.NewSignalRepository(db, logger)

	registry := NewRegistry(deviceRepo, zoneRepo, logger)
	store := signalstore.NewStore(cfg.Locator.Pipeline.SignalRetention)

	pub := publisher.NewPublisher(mqttClient, redisClient, cfg, logger)

	cons := consumer.NewMQTTConsumer(
		mqttClient,
		cfg.Locator.Inbound.Topic,
		cfg.MQTT.QoS,
		store,
		registry,
		signalRepo,
		logger,
	)

	pipeline := cfg.Locator.Pipeline
	sched := scheduler.NewScheduler(
		store,
		locator.NewAggregator(store, time.Duration(pipeline.WindowSeconds)*time.Second),
		locator.NewPathLossModel(pipeline.MinDistance, pipeline.MaxDistance),
		locator.NewEstimator(),
		locator.NewSmoother(pipeline.SmoothingAlpha, pipeline.StabilityDistance,
			time.Duration(pipeline.DriftWindowSeconds)*time.Second),
		evaluator.NewZoneEngine(time.Duration(pipeline.CooldownSeconds)*time.Second, logger),
		registry,
		positionRepo,
		alertRepo,
		pub,
		pipeline.TickPeriod,
		pipeline.Workers,
		logger,
	)

	return &LocatorService{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		store:     store,
		consumer:  cons,
		publisher: pub,
		scheduler: sched,
		positions: positionRepo,
		alerts:    alertRepo,
		signals:   signalRepo,
	}
}

// Start 启动服务
// 先加载配置快照再开始消费，避免初始数据全部因设备未知被丢弃
func (s *LocatorService) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if err := s.registry.Refresh(runCtx); err != nil {
		cancel()
		return fmt.Errorf("initial registry refresh failed: %w", err)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.registry.RunRefreshLoop(runCtx, s.cfg.Locator.Cache.DeviceRefresh)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.publisher.Run(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runPurgeLoop(runCtx)
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runStatsLoop(runCtx)
	}()

	if err := s.consumer.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	if err := s.scheduler.Start(runCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	s.logger.Info("Locator service started")
	return nil
}

// Stop 停止服务
// 顺序：先停消费与调度，再让发布器把剩余消息发完
func (s *LocatorService) Stop() {
	if err := s.consumer.Stop(); err != nil {
		s.logger.Warn("Failed to stop consumer cleanly", zap.Error(err))
	}
	s.scheduler.Stop()

	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()

	s.logger.Info("Locator service stopped")
}

// runStatsLoop 周期输出处理统计
func (s *LocatorService) runStatsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cm := s.consumer.Metrics()
			sm := s.scheduler.Metrics()
			pm := s.publisher.Metrics()
			s.logger.Info("Processing statistics",
				zap.Int64("messages_received", cm.MessagesReceived),
				zap.Int64("readings_ingested", cm.ReadingsIngested),
				zap.Int64("parse_errors", cm.ParseErrors),
				zap.Int64("ticks_processed", sm.TicksProcessed),
				zap.Int64("positions_emitted", sm.PositionsEmitted),
				zap.Int64("alerts_emitted", sm.AlertsEmitted),
				zap.Int64("outbound_published", pm.Published),
				zap.Int64("outbound_dropped", pm.Dropped),
				zap.Int("signals_in_store", s.store.Size()),
			)
		}
	}
}

// runPurgeLoop 周期清理过期的持久化数据
func (s *LocatorService) runPurgeLoop(ctx context.Context) {
	interval := s.cfg.Locator.Retention.PurgeInterval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.purgeExpired(ctx)
		}
	}
}

func (s *LocatorService) purgeExpired(ctx context.Context) {
	historyCutoff := time.Now().AddDate(0, 0, -s.cfg.Locator.Retention.HistoryDays)
	signalCutoff := time.Now().AddDate(0, 0, -s.cfg.Locator.Retention.SignalDays)

	if deleted, err := s.positions.PurgeBefore(ctx, historyCutoff); err != nil {
		s.logger.Error("Failed to purge position history", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("Purged position history", zap.Int64("rows", deleted))
	}

	if deleted, err := s.signals.PurgeBefore(ctx, signalCutoff); err != nil {
		s.logger.Error("Failed to purge raw signal archive", zap.Error(err))
	} else if deleted > 0 {
		s.logger.Info("Purged raw signal archive", zap.Int64("rows", deleted))
	}
}

// QueryRawSignals 历史信号查询入口
func (s *LocatorService) QueryRawSignals(ctx context.Context, beaconID string, start, end time.Time) ([]models.RawSignal, error) {
	return s.signals.QueryRawSignals(ctx, beaconID, start, end)
}

// SchedulerMetrics 返回处理统计
func (s *LocatorService) SchedulerMetrics() scheduler.Metrics {
	return s.scheduler.Metrics()
}

// ConsumerMetrics 返回消费统计
func (s *LocatorService) ConsumerMetrics() consumer.Metrics {
	return s.consumer.Metrics()
}

// PublisherMetrics 返回发布统计
func (s *LocatorService) PublisherMetrics() publisher.Metrics {
	return s.publisher.Metrics()
}
