package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/bitfantasy/vendo/internal/config"
	"github.com/bitfantasy/vendo/internal/middleware"
	"github.com/bitfantasy/vendo/internal/shared/cache"
	"github.com/bitfantasy/vendo/internal/shared/export"
	"github.com/bitfantasy/vendo/internal/shared/relay"
	"github.com/bitfantasy/vendo/internal/srm/entity"
	"github.com/bitfantasy/vendo/internal/srm/handler"
	"github.com/bitfantasy/vendo/internal/srm/repository"
	"github.com/bitfantasy/vendo/internal/srm/scoring"
	"github.com/bitfantasy/vendo/internal/srm/service"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found, using environment variables")
	}

	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化日志
	zapLogger, err := initLogger(cfg.Log)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting vendo-srm service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&entity.Supplier{},
		&entity.SupplierEvaluation{},
	); err != nil {
		zapLogger.Warn("AutoMigrate warning", zap.Error(err))
	}
	zapLogger.Info("Database migration completed")

	// 评分模型注册表
	registry := scoring.Default()

	// 服务依赖（Redis/MinIO/中继均为可选，未配置时降级为直连数据库）
	opts := service.Options{RelayTimeout: cfg.Relay.Timeout}

	if cfg.Redis.Host != "" {
		rdb := initRedis(cfg.Redis)
		opts.Cache = cache.NewScoreCache(rdb, cache.DefaultTTL)
		zapLogger.Info("Redis score cache enabled", zap.String("host", cfg.Redis.Host))
	}

	if cfg.MinIO.Endpoint != "" {
		minioClient, err := minio.New(cfg.MinIO.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, ""),
			Secure: cfg.MinIO.UseSSL,
		})
		if err != nil {
			zapLogger.Warn("Failed to init MinIO client, export uploads disabled", zap.Error(err))
		} else {
			opts.Uploader = export.NewUploader(minioClient, cfg.MinIO.Bucket)
			zapLogger.Info("MinIO export uploader enabled", zap.String("bucket", cfg.MinIO.Bucket))
		}
	}

	if cfg.Relay.WebhookURL != "" {
		opts.Relay = relay.NewClient(cfg.Relay.WebhookURL, cfg.Relay.Timeout)
		zapLogger.Info("Evaluation relay enabled")
	}

	// 装配仓库、服务与处理器
	repos := repository.NewRepositories(db)
	services := service.NewServices(repos, registry, zapLogger, opts)
	handlers := handler.NewHandlers(services)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// 注册路由
	registerRoutes(router, handlers, cfg)

	// 创建HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 启动服务器
	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config

	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	return zapCfg.Build()
}

func initDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Info),
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return db, nil
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func registerRoutes(r *gin.Engine, h *handler.Handlers, cfg *config.Config) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	// API v1
	v1 := r.Group("/api/v1/srm")
	v1.Use(middleware.JWTAuth(cfg.JWT.Secret))
	{
		// 供应商
		suppliers := v1.Group("/suppliers")
		{
			suppliers.POST("", middleware.RequirePermission("srm:supplier:create"), h.Supplier.CreateSupplier)
			suppliers.GET("", middleware.RequirePermission("srm:supplier:read"), h.Supplier.ListSuppliers)
			suppliers.GET("/:id", middleware.RequirePermission("srm:supplier:read"), h.Supplier.GetSupplier)
			suppliers.GET("/:id/evaluations", middleware.RequirePermission("srm:evaluation:read"), h.Evaluation.GetSupplierHistory)
			suppliers.GET("/:id/evaluation-summary", middleware.RequirePermission("srm:evaluation:read"), h.Evaluation.GetSupplierSummary)
			suppliers.GET("/:id/evaluations/export", middleware.RequirePermission("srm:evaluation:read"), h.Evaluation.ExportSupplierHistory)
		}

		// 评估
		evaluations := v1.Group("/evaluations")
		{
			evaluations.POST("", h.Evaluation.CreateEvaluation)
			evaluations.POST("/preview", h.Evaluation.Preview)
			evaluations.GET("/:id", h.Evaluation.GetEvaluation)
			evaluations.PUT("/:id", h.Evaluation.UpdateEvaluation)
			evaluations.DELETE("/:id", h.Evaluation.DeleteEvaluation)
		}
	}
}
