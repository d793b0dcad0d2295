package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alefe53/mis-esencias-live/internal/config"
	"github.com/alefe53/mis-esencias-live/internal/handler"
	"github.com/alefe53/mis-esencias-live/internal/middleware"
	"github.com/alefe53/mis-esencias-live/internal/recording"
	"github.com/alefe53/mis-esencias-live/internal/status"
	"github.com/alefe53/mis-esencias-live/internal/studio"
	"github.com/alefe53/mis-esencias-live/internal/token"
	"github.com/alefe53/mis-esencias-live/internal/transport"
	"github.com/alefe53/mis-esencias-live/pkg/database"
	pkglog "github.com/alefe53/mis-esencias-live/pkg/log"
	"github.com/alefe53/mis-esencias-live/pkg/pubsub"
	"github.com/alefe53/mis-esencias-live/pkg/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Level == "debug",
		ServiceName: "studio",
	})
	logger := pkglog.L()

	// Connect to database using GORM
	dbConfig := &database.Config{
		Driver:          cfg.Database.Driver,
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		DBName:          cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		FilePath:        cfg.Database.FilePath,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := database.New(dbConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Auto-migrate
	if err := database.AutoMigrate(db, &status.StatusModel{}, &recording.SessionModel{}); err != nil {
		logger.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	logger.Info().Msg("database migration completed")

	// Initialize Redis pub/sub for live-status and recording fan-out
	redisConfig := pubsub.DefaultRedisConfig()
	redisConfig.Address = cfg.Redis.Address
	redisConfig.Password = cfg.Redis.Password
	redisConfig.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		redisConfig.PoolSize = cfg.Redis.PoolSize
	}
	bus, err := pubsub.NewRedisPubSub(redisConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer bus.Close()
	logger.Info().Msg("redis pubsub connected")

	// Initialize recording storage
	store, err := newStorage(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	// Initialize token manager
	tokens, err := token.NewManager(
		time.Duration(cfg.Token.AccessTTLMinutes)*time.Minute,
		time.Duration(cfg.Token.RoomTTLMinutes)*time.Minute,
		cfg.Token.Issuer,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create token manager")
	}

	// Bootstrap admin access token for local operation
	if adminToken, err := tokens.IssueAccess(cfg.Token.AdminIdentity, true); err == nil {
		logger.Debug().Str(pkglog.FieldIdentity, cfg.Token.AdminIdentity).Str("token", adminToken).Msg("bootstrap admin token issued")
	}

	// Initialize transport hub
	hub := transport.NewHub(tokens.VerifyRoomToken, logger)

	// Initialize live-status service
	statusRepo := status.NewGormRepository(db)
	statusService := status.NewService(statusRepo, bus, logger)

	// Initialize recording service and sweeper
	egress := recording.NewHTTPEgress(cfg.Recording.EgressURL, 30*time.Second)
	recordingRepo := recording.NewGormRepository(db)
	recordingService := recording.NewService(egress, recordingRepo, store, bus, recording.ServiceConfig{
		OutputSpec: recording.OutputSpec{
			Layout:   cfg.Recording.Layout,
			FileType: cfg.Recording.FileType,
			Prefix:   cfg.Recording.OutputPrefix,
		},
		AbandonedAfter: time.Duration(cfg.Recording.AbandonedAfterHours) * time.Hour,
		SweepInterval:  time.Duration(cfg.Recording.SweepIntervalMin) * time.Minute,
		URLExpiry:      time.Duration(cfg.Recording.URLExpiryMinutes) * time.Minute,
	}, logger)

	sweeperCtx, cancelSweeper := context.WithCancel(context.Background())
	defer cancelSweeper()
	go recordingService.RunSweeper(sweeperCtx)

	// Initialize studio session manager
	sessions := studio.NewManager(
		cfg.Studio.RoomID,
		hub,
		tokens,
		statusService,
		studio.NewLocalCapture(),
		logger,
	)

	// Initialize auth middleware and HTTP handler
	authMiddleware := middleware.NewAuthMiddleware(tokens)
	httpHandler := handler.NewHandler(sessions, statusService, recordingService, tokens, authMiddleware)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Register routes
	httpHandler.RegisterRoutes(r)

	// Start server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	logger.Info().Str("addr", addr).Str("driver", cfg.Database.Driver).Str(pkglog.FieldRoomID, cfg.Studio.RoomID).Msg("studio service starting")
	if err := r.Run(addr); err != nil {
		logger.Fatal().Err(err).Msg("failed to start server")
	}
}

func newStorage(cfg *config.Config) (storage.Storage, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return storage.NewS3Storage(context.Background(), storage.S3Config{
			Endpoint:        cfg.Storage.Endpoint,
			Region:          cfg.Storage.Region,
			Bucket:          cfg.Storage.Bucket,
			AccessKeyID:     cfg.Storage.AccessKeyID,
			SecretAccessKey: cfg.Storage.SecretAccessKey,
			UsePathStyle:    cfg.Storage.UsePathStyle,
			PublicURL:       cfg.Storage.PublicURL,
		})
	case "local":
		return storage.NewLocalStorage(storage.LocalConfig{BasePath: cfg.Storage.BasePath})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.Storage.Driver)
	}
}
