package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"arena-service/internal/api"
	"arena-service/internal/config"
	"arena-service/internal/repo"
	"arena-service/internal/service"
	"arena-service/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "path to config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 1. Load Config
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// 2. Init Logger
	if err := logger.InitLogger(conf.Server.Mode); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Log.Sync()

	logger.Log.Info("Starting server...", zap.String("mode", conf.Server.Mode))

	// 3. Init DB & Redis
	db, err := repo.OpenDB(conf.Database)
	if err != nil {
		logger.Log.Fatal("Failed to connect to database", zap.Error(err))
	}
	rdb, err := repo.OpenRedis(ctx, conf.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// 3.5 Init Services
	loc, err := conf.Venue.Location()
	if err != nil {
		logger.Log.Fatal("invalid venue timezone", zap.Error(err))
	}
	services := service.NewContainer(db, rdb, service.Options{
		Location: loc,
		EntryTTL: conf.Queue.EntryTTL,
		LockTTL:  conf.Queue.LockTTL,
		LockWait: conf.Queue.LockWait,
	})
	if err := services.Start(ctx, conf.Venue, conf.Queue.SweepInterval); err != nil {
		logger.Log.Fatal("failed to start services", zap.Error(err))
	}

	// 4. Init Router
	if conf.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// Register Routes
	api.RegisterRoutes(r, services)

	// 5. Start Server
	addr := fmt.Sprintf(":%s", conf.Server.Port)
	logger.Log.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		logger.Log.Fatal("Server failed to start", zap.Error(err))
	}
}
