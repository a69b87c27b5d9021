package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mirchi_backend/internal/config"
	"mirchi_backend/internal/handler"
	"mirchi_backend/internal/logger"
	"mirchi_backend/internal/metrics"
	"mirchi_backend/internal/middleware"
	"mirchi_backend/internal/ratelimit"
	"mirchi_backend/internal/repository"
	"mirchi_backend/internal/service"
	"mirchi_backend/internal/sms"
	"mirchi_backend/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found or error loading, relying on environment variables")
	}

	// --- Configuration ---
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zlog, err := logger.New(logger.Options{
		Development: !cfg.IsProduction(),
		Level:       cfg.LogLevel,
		FilePath:    cfg.LogFile,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx := context.Background()

	// --- Store ---
	userRepo, closeStore, err := openStore(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to open user store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}
	defer closeStore()

	// --- Initialize Utilities ---
	jwtUtil, err := utils.NewJWTUtil(cfg.JWTSecret, cfg.JWTExpirationHours)
	if err != nil {
		zlog.Fatal("failed to init jwt", zap.Error(err))
	}

	sender, closeSender, err := newSender(cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to init sms sender", zap.String("driver", cfg.SMSDriver), zap.Error(err))
	}
	defer closeSender()

	limiter, closeLimiter := newLimiter(ctx, cfg, zlog)
	defer closeLimiter()

	// --- Initialize Services ---
	authService := service.NewAuthService(userRepo, jwtUtil, sender, service.AuthConfig{
		OTPTTL:            cfg.OTPTTL,
		MaxOTPAttempts:    cfg.OTPMaxAttempts,
		InitialAdminPhone: cfg.InitialAdminPhone,
	}, zlog.Named("auth"))

	// --- Initialize Handlers ---
	errs := handler.ErrorResponder{ExposeDetail: !cfg.IsProduction()}
	authHandler := handler.NewAuthHandler(authService, errs)
	healthHandler := handler.NewHealthHandler(userRepo)

	// --- Setup Gin Router ---
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(cfg, zlog, jwtUtil, limiter, authHandler, healthHandler)

	// --- Start Server ---
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zlog.Info("server starting", zap.String("port", cfg.ServerPort), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("listen", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Error("server forced to shutdown", zap.Error(err))
	}

	zlog.Info("server exiting")
}

// newRouter mounts the global middleware chain and every route. The rate
// limiter covers all paths, health and metrics included.
func newRouter(cfg *config.Config, zlog *zap.Logger, jwtUtil *utils.JWTUtil, limiter ratelimit.Limiter,
	authHandler *handler.AuthHandler, healthHandler *handler.HealthHandler) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(zlog.Named("http")),
		middleware.Recovery(zlog, !cfg.IsProduction()),
		middleware.SecurityHeaders(),
		middleware.CORS(),
		middleware.RateLimit(limiter, zlog.Named("ratelimit")),
	)

	router.GET("/api/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// --- Register Routes ---
	jwtAuthMW := middleware.JWTAuthMiddleware(jwtUtil)
	apiGroup := router.Group("/api/v1")
	authHandler.RegisterAuthRoutes(apiGroup, jwtAuthMW, middleware.UserMiddleware())
	authHandler.RegisterAdminRoutes(apiGroup, jwtAuthMW, middleware.AdminMiddleware())

	router.NoRoute(handler.NotFound)
	return router
}

func openStore(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (repository.UserRepository, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := config.ConnectMongo(ctx, cfg.MongoURI, zlog)
		if err != nil {
			return nil, nil, err
		}
		coll := client.Database(cfg.MongoDB).Collection("users")
		if err := repository.EnsureUserIndexes(ctx, coll); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, nil, err
		}
		return repository.NewMongoUserRepository(coll), func() { _ = client.Disconnect(context.Background()) }, nil

	case config.StoreMemory:
		zlog.Warn("using in-memory user store, data is lost on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil

	default:
		pool, err := config.ConnectDB(ctx, &cfg.DB, zlog)
		if err != nil {
			return nil, nil, err
		}
		if err := config.AutoMigrate(ctx, pool, zlog); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return repository.NewUserRepository(pool), pool.Close, nil
	}
}

func newSender(cfg *config.Config, zlog *zap.Logger) (service.OTPSender, func(), error) {
	smsLog := zlog.Named("sms")
	if cfg.SMSDriver != config.SMSAMQP {
		return sms.NewLogSender(smsLog, !cfg.IsProduction()), func() {}, nil
	}

	publisher, err := sms.NewAMQPSender(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		return nil, nil, err
	}
	breaker := sms.NewBreakerSender(publisher, sms.BreakerSettings{MaxFailures: 5, Timeout: 30 * time.Second}, smsLog)
	return sms.NewAsyncSender(breaker, 5*time.Second, smsLog), func() { _ = publisher.Close() }, nil
}

// newLimiter prefers Redis so limits hold across instances, and falls back
// to a per-process limiter.
func newLimiter(ctx context.Context, cfg *config.Config, zlog *zap.Logger) (ratelimit.Limiter, func()) {
	if cfg.RedisAddr != "" {
		rdb, err := config.ConnectRedis(ctx, cfg, zlog)
		if err == nil {
			return ratelimit.NewRedisLimiter(rdb, "rl:api", cfg.RateLimitMax, cfg.RateLimitWindow), func() { _ = rdb.Close() }
		}
		zlog.Warn("redis unavailable, using local rate limiter", zap.Error(err))
	}
	return ratelimit.NewLocalLimiter(cfg.RateLimitMax, cfg.RateLimitWindow), func() {}
}
