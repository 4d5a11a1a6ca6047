package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"wisefido-locator/internal/common/redis"
	"wisefido-locator/internal/config"
	"wisefido-locator/internal/models"
)

// MQTTPublisher 出站MQTT发布接口
type MQTTPublisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	IsConnected() bool
}

// BeaconInfo 出站消息中的信标标识
type BeaconInfo struct {
	Mac          string `json:"mac"`
	Name         string `json:"name"`
	ResourceType string `json:"resource_type"`
}

// PositionMessage 位置出站消息
type PositionMessage struct {
	Type     string     `json:"type"`
	Beacon   BeaconInfo `json:"beacon"`
	Location struct {
		FloorID  string  `json:"floor_id"`
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
		Accuracy float64 `json:"accuracy"`
	} `json:"location"`
	Movement struct {
		Speed     float64  `json:"speed"`
		Heading   *float64 `json:"heading,omitempty"` // 首次观测时未定义
		VelocityX float64  `json:"velocity_x"`
		VelocityY float64  `json:"velocity_y"`
	} `json:"movement"`
	Timestamp string `json:"timestamp"`
}

// AlertMessage 区域报警出站消息
type AlertMessage struct {
	Type      string     `json:"type"`
	AlertType string     `json:"alert_type"`
	Beacon    BeaconInfo `json:"beacon"`
	Zone      struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"zone"`
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"position"`
	Timestamp string `json:"timestamp"`
}

// item 出站队列元素
type item struct {
	topic    string
	payload  []byte
	stream   string
	cacheKey string // 非空时写实时缓存
	cacheTTL time.Duration
}

// Metrics 发布统计
type Metrics struct {
	mu            sync.Mutex
	Enqueued      int64
	Published     int64
	Dropped       int64
	PublishErrors int64
}

// Snapshot 返回当前统计快照
func (m *Metrics) Snapshot() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Metrics{
		Enqueued:      m.Enqueued,
		Published:     m.Published,
		Dropped:       m.Dropped,
		PublishErrors: m.PublishErrors,
	}
}

// Publisher 出站发布器
// 调度器入队不阻塞：队列满时丢弃最旧消息
// 独立协程排空队列，推送到MQTT、Redis Streams与实时缓存
type Publisher struct {
	mqttClient  MQTTPublisher
	redisClient *redis.Client
	cfg         *config.Config
	queue       chan item
	logger      *zap.Logger
	metrics     *Metrics

	mu sync.Mutex // 保护丢最旧+入队的组合操作
}

// NewPublisher 创建发布器
// mqttClient 与 redisClient 均可为nil（对应通道禁用）
func NewPublisher(mqttClient MQTTPublisher, redisClient *redis.Client, cfg *config.Config, logger *zap.Logger) *Publisher {
	size := cfg.Locator.Outbound.QueueSize
	if size <= 0 {
		size = 1000
	}
	return &Publisher{
		mqttClient:  mqttClient,
		redisClient: redisClient,
		cfg:         cfg,
		queue:       make(chan item, size),
		logger:      logger,
		metrics:     &Metrics{},
	}
}

// PublishPosition 入队一条位置消息
func (p *Publisher) PublishPosition(beacon *models.Beacon, pos models.SmoothedPosition) {
	msg := PositionMessage{
		Type: "position",
		Beacon: BeaconInfo{
			Mac:          beacon.MacAddress,
			Name:         beacon.Name,
			ResourceType: beacon.ResourceType,
		},
		Timestamp: pos.UpdatedAt.UTC().Format(time.RFC3339),
	}
	msg.Location.FloorID = pos.FloorID
	msg.Location.X = pos.X
	msg.Location.Y = pos.Y
	msg.Location.Accuracy = pos.Accuracy
	msg.Movement.Speed = pos.Speed
	msg.Movement.Heading = pos.Heading
	msg.Movement.VelocityX = pos.VelocityX
	msg.Movement.VelocityY = pos.VelocityY

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Failed to marshal position message", zap.Error(err))
		return
	}

	p.enqueue(item{
		topic:   fmt.Sprintf("%s/%s", p.cfg.Locator.Outbound.PositionsTopic, beacon.MacAddress),
		payload: payload,
		stream:  p.cfg.Locator.Outbound.PositionsStream,
		cacheKey: p.cfg.Locator.Cache.PositionKeyPrefix + beacon.BeaconID +
			p.cfg.Locator.Cache.PositionSuffix,
		cacheTTL: p.cfg.Locator.Cache.PositionTTL,
	})
}

// PublishAlert 入队一条区域报警消息
func (p *Publisher) PublishAlert(beacon *models.Beacon, zone *models.Zone, event models.ZoneAlertEvent) {
	msg := AlertMessage{
		Type:      "zone_alert",
		AlertType: string(event.AlertType),
		Beacon: BeaconInfo{
			Mac:          beacon.MacAddress,
			Name:         beacon.Name,
			ResourceType: beacon.ResourceType,
		},
		Timestamp: event.TriggeredAt.UTC().Format(time.RFC3339),
	}
	msg.Zone.ID = zone.ZoneID
	msg.Zone.Name = zone.Name
	msg.Position.X = event.X
	msg.Position.Y = event.Y

	payload, err := json.Marshal(msg)
	if err != nil {
		p.logger.Error("Failed to marshal alert message", zap.Error(err))
		return
	}

	p.enqueue(item{
		topic: fmt.Sprintf("%s/%s/%s",
			p.cfg.Locator.Outbound.AlertsTopic, event.AlertType, zone.ZoneID),
		payload: payload,
		stream:  p.cfg.Locator.Outbound.AlertsStream,
	})
}

// enqueue 非阻塞入队，满时丢弃最旧
func (p *Publisher) enqueue(it item) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		select {
		case p.queue <- it:
			p.metrics.mu.Lock()
			p.metrics.Enqueued++
			p.metrics.mu.Unlock()
			return
		default:
		}
		// 队列满：丢最旧再试
		select {
		case <-p.queue:
			p.metrics.mu.Lock()
			p.metrics.Dropped++
			p.metrics.mu.Unlock()
		default:
		}
	}
}

// Run 排空队列直到ctx取消
// 取消后先把已入队的消息发完再返回
func (p *Publisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			// 尽力发完剩余消息
			for {
				select {
				case it := <-p.queue:
					p.deliver(it)
				default:
					return
				}
			}
		case it := <-p.queue:
			p.deliver(it)
		}
	}
}

// deliver 推送单条消息到所有启用的出站通道
// 单通道失败只计数，不影响其余通道
func (p *Publisher) deliver(it item) {
	delivered := false

	if p.mqttClient != nil && p.mqttClient.IsConnected() {
		if err := p.mqttClient.Publish(it.topic, p.cfg.MQTT.QoS, false, it.payload); err != nil {
			p.metrics.mu.Lock()
			p.metrics.PublishErrors++
			p.metrics.mu.Unlock()
			p.logger.Error("Failed to publish to MQTT",
				zap.String("topic", it.topic),
				zap.Error(err))
		} else {
			delivered = true
		}
	}

	if p.redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if it.stream != "" {
			if _, err := redis.PublishToStream(ctx, p.redisClient, it.stream, map[string]interface{}{
				"data":      string(it.payload),
				"timestamp": time.Now().Unix(),
			}); err != nil {
				p.metrics.mu.Lock()
				p.metrics.PublishErrors++
				p.metrics.mu.Unlock()
				p.logger.Error("Failed to publish to Redis stream",
					zap.String("stream", it.stream),
					zap.Error(err))
			} else {
				delivered = true
			}
		}

		if it.cacheKey != "" {
			if err := p.redisClient.Set(ctx, it.cacheKey, it.payload, it.cacheTTL).Err(); err != nil {
				p.logger.Error("Failed to update realtime cache",
					zap.String("key", it.cacheKey),
					zap.Error(err))
			}
		}

		cancel()
	}

	if delivered {
		p.metrics.mu.Lock()
		p.metrics.Published++
		p.metrics.mu.Unlock()
	}
}

// Metrics 返回发布统计
func (p *Publisher) Metrics() Metrics {
	return p.metrics.Snapshot()
}

// QueueDepth 返回当前队列深度
func (p *Publisher) QueueDepth() int {
	return len(p.queue)
}
