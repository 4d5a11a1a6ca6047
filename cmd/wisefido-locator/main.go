package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"wisefido-locator/internal/common/database"
	"wisefido-locator/internal/common/logger"
	"wisefido-locator/internal/common/mqtt"
	"wisefido-locator/internal/common/redis"
	"wisefido-locator/internal/config"
	"wisefido-locator/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "wisefido-locator")
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 连接数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database",
			zap.Error(err),
		)
	}
	defer db.Close()

	// 4. 连接 Redis
	redisClient := redis.NewRedisClient(&cfg.Redis)
	if err := redis.Ping(context.Background(), redisClient); err != nil {
		log.Fatal("Failed to connect to redis",
			zap.Error(err),
		)
	}
	defer redisClient.Close()

	// 5. 连接 MQTT Broker
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, log)
	if err != nil {
		log.Fatal("Failed to connect to MQTT broker",
			zap.Error(err),
		)
	}
	defer mqttClient.Disconnect()

	// 6. 创建定位服务
	locatorService := service.NewLocatorService(cfg, db, redisClient, mqttClient, log)

	// 7. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. 启动服务
	if err := locatorService.Start(ctx); err != nil {
		log.Fatal("Failed to start locator service",
			zap.Error(err),
		)
	}

	// 9. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, shutting down",
		zap.String("signal", sig.String()),
	)

	locatorService.Stop()
	log.Info("Locator service stopped")
}
