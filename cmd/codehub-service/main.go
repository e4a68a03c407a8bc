package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codehub/internal/common/cache"
	"codehub/internal/common/db"
	commonmw "codehub/internal/common/http/middleware"
	"codehub/internal/common/mq"
	"codehub/internal/common/storage"
	"codehub/internal/execution"
	"codehub/internal/submission/controller"
	"codehub/internal/submission/repository"
	"codehub/internal/submission/service"
	"codehub/pkg/utils/logger"
)

const (
	defaultConfigPath = "configs/codehub.yaml"
	defaultEnvPath    = ".env"
)

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	envPath := flag.String("env", defaultEnvPath, "Path to optional .env file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath, *envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	database, err := openDatabase(appCfg.Database)
	if err != nil {
		logger.Error(context.Background(), "init database failed", zap.Error(err))
		return
	}
	defer func() {
		_ = database.Close()
	}()

	// Redis is optional. Without it reads go straight to the database and the
	// daily limit lock is held in process, so replicas can overshoot the cap.
	var cacheClient cache.Cache
	if appCfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
		if err != nil {
			logger.Error(context.Background(), "init redis failed", zap.Error(err))
			return
		}
		defer func() {
			_ = redisCache.Close()
		}()
		cacheClient = redisCache
	}

	var events service.EventPublisher
	if appCfg.Events.Enabled {
		producer, err := mq.NewKafkaProducer(appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = producer.Close()
		}()
		events = service.NewMQEventPublisher(producer, appCfg.Events.Topic)
	}

	var archiver service.SourceArchiver
	if appCfg.Archive.Enabled {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), appCfg.Evaluation.Timeouts.Storage)
		err = objStorage.EnsureBucket(ctx, appCfg.Archive.Bucket)
		cancel()
		if err != nil {
			logger.Error(context.Background(), "ensure archive bucket failed", zap.Error(err))
			return
		}
		objArchiver, err := service.NewObjectSourceArchiver(objStorage, appCfg.Archive.Bucket, appCfg.Archive.Prefix)
		if err != nil {
			logger.Error(context.Background(), "init source archiver failed", zap.Error(err))
			return
		}
		archiver = objArchiver
	}

	judge0, err := execution.NewJudge0Client(appCfg.Judge0, nil)
	if err != nil {
		logger.Error(context.Background(), "init judge0 client failed", zap.Error(err))
		return
	}

	problemRepo := repository.NewProblemRepository(database, cacheClient, appCfg.Cache.ProblemTTL)
	submissionRepo := repository.NewSubmissionRepository(database, cacheClient)
	leaderboardRepo := repository.NewLeaderboardRepository(database, cacheClient, appCfg.Cache.LeaderboardTTL)

	limiter := service.NewDailyLimiter(submissionRepo, cacheClient, service.LimiterConfig{
		DailyLimit: appCfg.Evaluation.DailyLimit,
		Location:   appCfg.Location(),
	})
	progress := service.NewProgressHub(appCfg.Evaluation.ProgressRetention)

	submissionService, err := service.NewSubmissionService(service.Config{
		Problems: problemRepo,
		Store:    submissionRepo,
		Executor: judge0,
		Limiter:  limiter,
		Awards:   service.NewAwardGuard(submissionRepo),
		Archiver: archiver,
		Events:   events,
		Progress: progress,
		PollPolicy: execution.PollPolicy{
			MaxAttempts: appCfg.Evaluation.PollAttempts,
			Interval:    appCfg.Evaluation.PollInterval,
		},
		StrictLanguages: appCfg.Evaluation.StrictLanguages,
		MaxCodeBytes:    appCfg.Evaluation.MaxCodeBytes,
		MaxConcurrent:   appCfg.Evaluation.MaxConcurrent,
		SlotWait:        appCfg.Evaluation.SlotWait,
		Timeouts:        appCfg.Evaluation.Timeouts,
	})
	if err != nil {
		logger.Error(context.Background(), "init submission service failed", zap.Error(err))
		return
	}
	queryService, err := service.NewQueryService(problemRepo, submissionRepo, leaderboardRepo, appCfg.Evaluation.Timeouts)
	if err != nil {
		logger.Error(context.Background(), "init query service failed", zap.Error(err))
		return
	}

	submissionController := controller.NewSubmissionController(submissionService, queryService, progress, appCfg.Evaluation.Stream)
	httpServer := buildHTTPServer(appCfg.Server, appCfg.Auth, submissionController)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		logger.Error(context.Background(), "init http listener failed", zap.Error(err))
		return
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "codehub http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("database", appCfg.Database.Driver),
			zap.Bool("redis", cacheClient != nil),
			zap.Bool("events", events != nil),
			zap.Bool("archive", archiver != nil),
		)
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	if err := submissionService.Wait(ctx); err != nil {
		logger.Warn(context.Background(), "evaluations still running at shutdown", zap.Error(err))
	}
}

func openDatabase(cfg DatabaseConfig) (*db.SQLDatabase, error) {
	dialect, _ := db.ParseDialect(cfg.Driver)
	if dialect == db.DialectPostgres {
		return db.NewPostgreSQLWithConfig(&db.PostgreSQLConfig{DSN: cfg.DSN, Pool: cfg.Pool})
	}
	return db.NewMySQLWithConfig(&db.MySQLConfig{DSN: cfg.DSN, Pool: cfg.Pool})
}

func buildHTTPServer(cfg ServerConfig, authCfg commonmw.AuthConfig, submissionController *controller.SubmissionController) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.RequestLogger())

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	submissionController.Register(router, commonmw.AuthMiddleware(commonmw.NewAuthenticator(authCfg)))

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}
