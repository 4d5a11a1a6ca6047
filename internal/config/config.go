package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 定位服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	// 定位服务特定配置
	Locator struct {
		// 入站配置
		Inbound struct {
			Topic string // 网关数据主题，如 "/cfs1/+/send"
		}

		// 出站配置
		Outbound struct {
			PositionsTopic  string // 位置发布主题前缀
			AlertsTopic     string // 报警发布主题前缀
			PositionsStream string // Redis Streams 位置流
			AlertsStream    string // Redis Streams 报警流
			QueueSize       int    // 出站队列容量（满时丢弃最旧）
		}

		// 缓存配置
		Cache struct {
			PositionKeyPrefix string        // 实时位置缓存键前缀，如 "locator:beacon:"
			PositionSuffix    string        // 实时位置缓存键后缀，如 ":position"
			PositionTTL       time.Duration // 实时位置缓存 TTL
			DeviceRefresh     time.Duration // 设备/区域配置缓存刷新间隔
		}

		// 处理管线调参
		Pipeline struct {
			WindowSeconds      int           // 聚合滑动窗口（秒）
			TickPeriod         time.Duration // 处理周期
			SignalRetention    time.Duration // 原始信号内存保留时长
			SmoothingAlpha     float64       // 指数平滑系数
			StabilityDistance  float64       // 静止判定距离阈值（平面单位）
			DriftWindowSeconds int           // 漂移判定时间窗（秒）
			CooldownSeconds    int           // 报警冷却窗口（秒）
			MinDistance        float64       // 路径损耗距离下限（米）
			MaxDistance        float64       // 路径损耗距离上限（米）
			Workers            int           // 每tick并行处理信标的协程数
		}

		// 持久化保留策略
		Retention struct {
			HistoryDays   int           // 位置历史/报警保留天数
			SignalDays    int           // 原始信号归档保留天数
			PurgeInterval time.Duration // 清理周期
		}
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "careflow")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-locator")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 入站/出站主题
	cfg.Locator.Inbound.Topic = getEnv("MQTT_INBOUND_TOPIC", "/cfs1/+/send")
	cfg.Locator.Outbound.PositionsTopic = getEnv("MQTT_POSITIONS_TOPIC", "careflow/positions")
	cfg.Locator.Outbound.AlertsTopic = getEnv("MQTT_ALERTS_TOPIC", "careflow/alerts")
	cfg.Locator.Outbound.PositionsStream = getEnv("STREAM_POSITIONS", "locator:positions:stream")
	cfg.Locator.Outbound.AlertsStream = getEnv("STREAM_ALERTS", "locator:alerts:stream")
	cfg.Locator.Outbound.QueueSize = getEnvInt("OUTBOUND_QUEUE_SIZE", 1000)

	// 缓存配置
	cfg.Locator.Cache.PositionKeyPrefix = getEnv("CACHE_POSITION_PREFIX", "locator:beacon:")
	cfg.Locator.Cache.PositionSuffix = ":position"
	cfg.Locator.Cache.PositionTTL = time.Duration(getEnvInt("CACHE_POSITION_TTL", 30)) * time.Second
	cfg.Locator.Cache.DeviceRefresh = time.Duration(getEnvInt("DEVICE_REFRESH_SECONDS", 60)) * time.Second

	// 处理管线调参（默认值来自原系统标定）
	cfg.Locator.Pipeline.WindowSeconds = getEnvInt("WINDOW_SECONDS", 5)
	cfg.Locator.Pipeline.TickPeriod = time.Duration(getEnvInt("TICK_PERIOD_MS", 1000)) * time.Millisecond
	cfg.Locator.Pipeline.SignalRetention = time.Duration(getEnvInt("SIGNAL_RETENTION_SECONDS", 30)) * time.Second
	cfg.Locator.Pipeline.SmoothingAlpha = getEnvFloat("SMOOTHING_ALPHA", 0.3)
	cfg.Locator.Pipeline.StabilityDistance = getEnvFloat("STABILITY_DISTANCE", 0.5)
	cfg.Locator.Pipeline.DriftWindowSeconds = getEnvInt("DRIFT_WINDOW_SECONDS", 10)
	cfg.Locator.Pipeline.CooldownSeconds = getEnvInt("ALERT_COOLDOWN_SECONDS", 30)
	cfg.Locator.Pipeline.MinDistance = getEnvFloat("PATHLOSS_MIN_DISTANCE", 0.1)
	cfg.Locator.Pipeline.MaxDistance = getEnvFloat("PATHLOSS_MAX_DISTANCE", 100.0)
	cfg.Locator.Pipeline.Workers = getEnvInt("PIPELINE_WORKERS", 4)

	cfg.Locator.Retention.HistoryDays = getEnvInt("HISTORY_RETENTION_DAYS", 30)
	cfg.Locator.Retention.SignalDays = getEnvInt("SIGNAL_RETENTION_DAYS", 7)
	cfg.Locator.Retention.PurgeInterval = time.Duration(getEnvInt("PURGE_INTERVAL_HOURS", 6)) * time.Hour

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
