package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-locator/internal/common/mqtt"
	"wisefido-locator/internal/models"
	"wisefido-locator/internal/repository"
	"wisefido-locator/internal/signalstore"
)

// DeviceResolver 将上报MAC解析为内部设备
// 由配置缓存实现，消费侧只读
type DeviceResolver interface {
	GatewayByMac(mac string) (*models.Gateway, bool)
	BeaconByMac(mac string) (*models.Beacon, bool)
}

// SignalArchiver 原始信号归档接口
type SignalArchiver interface {
	AppendSignals(ctx context.Context, signals []models.RawSignal) error
}

// Metrics 消费统计
type Metrics struct {
	mu                sync.Mutex
	MessagesReceived  int64
	ReadingsIngested  int64
	ParseErrors       int64
	UnresolvedGateway int64
	UnresolvedBeacon  int64
}

// Snapshot 返回当前统计快照
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		MessagesReceived:  m.MessagesReceived,
		ReadingsIngested:  m.ReadingsIngested,
		ParseErrors:       m.ParseErrors,
		UnresolvedGateway: m.UnresolvedGateway,
		UnresolvedBeacon:  m.UnresolvedBeacon,
	}
}

// MQTTConsumer 网关数据消费器
// 订阅网关上报主题，解析RSSI观测后写入信号存储并归档
type MQTTConsumer struct {
	client   *mqtt.Client
	topic    string
	qos      byte
	store    *signalstore.Store
	resolver DeviceResolver
	archiver SignalArchiver
	logger   *zap.Logger
	metrics  *Metrics
}

// NewMQTTConsumer 创建消费器
// archiver 可为nil（不归档原始信号）
func NewMQTTConsumer(
	client *mqtt.Client,
	topic string,
	qos byte,
	store *signalstore.Store,
	resolver DeviceResolver,
	archiver SignalArchiver,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		client:   client,
		topic:    topic,
		qos:      qos,
		store:    store,
		resolver: resolver,
		archiver: archiver,
		logger:   logger,
		metrics:  &Metrics{},
	}
}

// Start 订阅入站主题
func (c *MQTTConsumer) Start() error {
	if err := c.client.Subscribe(c.topic, c.qos, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe inbound topic: %w", err)
	}
	c.logger.Info("MQTT consumer started", zap.String("topic", c.topic))
	return nil
}

// Stop 取消订阅
func (c *MQTTConsumer) Stop() error {
	return c.client.Unsubscribe(c.topic)
}

// Metrics 返回消费统计
func (c *MQTTConsumer) Metrics() Metrics {
	return c.metrics.Snapshot()
}

// handleMessage 处理单条网关上报
// 解析失败或设备未注册均为可恢复：丢弃并计数，不中断消费
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.metrics.mu.Lock()
	c.metrics.MessagesReceived++
	c.metrics.mu.Unlock()

	readings, err := parseReadings(topic, payload, time.Now())
	if err != nil {
		c.metrics.mu.Lock()
		c.metrics.ParseErrors++
		c.metrics.mu.Unlock()
		c.logger.Warn("Failed to parse gateway payload",
			zap.String("topic", topic),
			zap.Error(err))
		return nil
	}

	signals := make([]models.RawSignal, 0, len(readings))
	for _, reading := range readings {
		gateway, ok := c.resolver.GatewayByMac(reading.GatewayMac)
		if !ok {
			c.metrics.mu.Lock()
			c.metrics.UnresolvedGateway++
			c.metrics.mu.Unlock()
			c.logger.Warn("Reading from unregistered gateway, dropped",
				zap.String("gateway_mac", reading.GatewayMac))
			continue
		}
		beacon, ok := c.resolver.BeaconByMac(reading.BeaconMac)
		if !ok {
			c.metrics.mu.Lock()
			c.metrics.UnresolvedBeacon++
			c.metrics.mu.Unlock()
			c.logger.Debug("Reading for unregistered beacon, dropped",
				zap.String("beacon_mac", reading.BeaconMac))
			continue
		}

		signals = append(signals, models.RawSignal{
			BeaconID:   beacon.BeaconID,
			GatewayID:  gateway.GatewayID,
			RSSI:       reading.RSSI,
			ObservedAt: reading.ObservedAt,
		})
	}

	if len(signals) == 0 {
		return nil
	}

	c.store.AppendBatch(signals)
	c.metrics.mu.Lock()
	c.metrics.ReadingsIngested += int64(len(signals))
	c.metrics.mu.Unlock()

	if c.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.archiver.AppendSignals(ctx, signals); err != nil {
			// 归档失败不影响实时管线
			c.logger.Error("Failed to archive raw signals", zap.Error(err))
		}
	}

	return nil
}

// batchPayload Moko MKGW-mini03 批量上报格式
type batchPayload struct {
	MsgID      string `json:"msg_id"`
	DeviceInfo *struct {
		Mac       string `json:"mac"`
		Timestamp int64  `json:"timestamp"`
	} `json:"device_info"`
	Beacons []beaconEntry `json:"beacons"`
	Data    []beaconEntry `json:"data"`
}

type beaconEntry struct {
	Mac     string   `json:"mac"`
	RSSI    *float64 `json:"rssi"`
	RSSIAlt *float64 `json:"RSSI"`
}

// flatPayload 单信标扁平格式
type flatPayload struct {
	GatewayMac    string   `json:"gatewayMac"`
	GatewayMacAlt string   `json:"gateway_mac"`
	Mac           string   `json:"mac"`
	BleMac        string   `json:"bleMAC"`
	BeaconMac     string   `json:"beacon_mac"`
	RSSI          *float64 `json:"rssi"`
	RSSIAlt       *float64 `json:"RSSI"`
	Timestamp     int64    `json:"timestamp"`
	Time          int64    `json:"time"`
}

// parseReadings 解析网关上报为读数列表
// 兼容Moko批量格式与扁平格式；网关MAC缺失时从主题路径恢复
func parseReadings(topic string, payload []byte, now time.Time) ([]models.Reading, error) {
	topicMac := gatewayMacFromTopic(topic)

	var batch batchPayload
	if err := json.Unmarshal(payload, &batch); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}

	if batch.DeviceInfo != nil && (batch.Beacons != nil || batch.Data != nil) {
		return parseBatch(&batch, topicMac, now)
	}

	var flat flatPayload
	if err := json.Unmarshal(payload, &flat); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}
	return parseFlat(&flat, topicMac, now)
}

func parseBatch(batch *batchPayload, topicMac string, now time.Time) ([]models.Reading, error) {
	gatewayMac := repository.NormalizeMac(batch.DeviceInfo.Mac)
	if gatewayMac == "" {
		gatewayMac = topicMac
	}
	if gatewayMac == "" {
		return nil, fmt.Errorf("gateway mac missing in payload and topic")
	}

	observedAt := timestampToTime(batch.DeviceInfo.Timestamp, now)

	entries := batch.Beacons
	if len(entries) == 0 {
		entries = batch.Data
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("payload contains no beacon entries")
	}

	readings := make([]models.Reading, 0, len(entries))
	for _, entry := range entries {
		mac := repository.NormalizeMac(entry.Mac)
		if mac == "" {
			continue
		}
		readings = append(readings, models.Reading{
			GatewayMac: gatewayMac,
			BeaconMac:  mac,
			RSSI:       rssiValue(entry.RSSI, entry.RSSIAlt),
			ObservedAt: observedAt,
		})
	}
	if len(readings) == 0 {
		return nil, fmt.Errorf("payload contains no usable beacon entries")
	}
	return readings, nil
}

func parseFlat(flat *flatPayload, topicMac string, now time.Time) ([]models.Reading, error) {
	gatewayMac := repository.NormalizeMac(firstNonEmpty(flat.GatewayMac, flat.GatewayMacAlt))
	if gatewayMac == "" {
		gatewayMac = topicMac
	}
	if gatewayMac == "" {
		return nil, fmt.Errorf("gateway mac missing in payload and topic")
	}

	beaconMac := repository.NormalizeMac(firstNonEmpty(flat.Mac, flat.BleMac, flat.BeaconMac))
	if beaconMac == "" {
		return nil, fmt.Errorf("beacon mac missing in payload")
	}

	ts := flat.Timestamp
	if ts == 0 {
		ts = flat.Time
	}

	return []models.Reading{{
		GatewayMac: gatewayMac,
		BeaconMac:  beaconMac,
		RSSI:       rssiValue(flat.RSSI, flat.RSSIAlt),
		ObservedAt: timestampToTime(ts, now),
	}}, nil
}

// gatewayMacFromTopic 从主题路径恢复网关MAC
// 主题形如 /cfs1/{gateway_mac}/send，MAC段为12位十六进制
func gatewayMacFromTopic(topic string) string {
	for _, part := range strings.Split(topic, "/") {
		if len(part) == 12 && isHex(part) {
			return strings.ToUpper(part)
		}
	}
	return ""
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// timestampToTime 上报时间戳换算，兼容秒与毫秒精度
// 缺失或非法时取接收时刻
func timestampToTime(ts int64, now time.Time) time.Time {
	if ts <= 0 {
		return now
	}
	if ts > 1e12 {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}

// rssiValue 取第一个非空RSSI字段，默认-100（最弱）
func rssiValue(candidates ...*float64) float64 {
	for _, c := range candidates {
		if c != nil {
			return *c
		}
	}
	return -100
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
