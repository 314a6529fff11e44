package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/vehicle-vision/internal/auth"
	"github.com/example/vehicle-vision/internal/config"
	"github.com/example/vehicle-vision/internal/grpcclient"
	"github.com/example/vehicle-vision/internal/grpcserver"
	"github.com/example/vehicle-vision/internal/handlers"
	"github.com/example/vehicle-vision/internal/logging"
	"github.com/example/vehicle-vision/internal/repository"
	"github.com/example/vehicle-vision/internal/usecase"
	"github.com/example/vehicle-vision/internal/vision"
)

const serviceName = "vehicle-vision-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel, !cfg.IsProduction())
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db := initDatabase(ctx, cfg, logger)
	repo := repository.NewAnalysisRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		logger.Fatal("auto migrate failed", zap.Error(err))
	}

	redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
	defer redisCancel()
	redisClient := initRedis(redisCtx, cfg, logger)

	local := usecase.NewLocalAnalyzer(buildVisionAnalyzer(cfg, logger))
	var analyzer usecase.Analyzer = local
	if cfg.AnalyzerAddr != "" {
		remote, conn, err := grpcclient.DialAnalyzer(ctx, cfg.AnalyzerAddr, cfg.AnalyzerToken, cfg.MaxUploadBytes, logger)
		if err != nil {
			logger.Fatal("failed to connect to analysis service", zap.Error(err))
		}
		defer conn.Close()
		analyzer = remote
		logger.Info("using remote analysis service", zap.String("addr", cfg.AnalyzerAddr))
	}

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTAudience)
	if err != nil {
		logger.Fatal("invalid auth configuration", zap.Error(err))
	}

	cache := usecase.NewRedisCache(redisClient)
	uc := usecase.NewAnalysisUseCase(repo, cache, analyzer, cfg.ResultTTL, logger)

	r := gin.New()
	r.Use(gin.Recovery(), logging.GinMiddleware(logger))
	handlers.RegisterRoutes(r, uc, verifier.Middleware(), handlers.Options{
		ServiceName:    serviceName,
		ServiceVersion: cfg.ServiceVersion,
		Environment:    cfg.Environment,
		MaxUploadSize:  cfg.MaxUploadBytes,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	})

	grpcServer, grpcHealth := grpcserver.New(grpcserver.NewAnalysisServer(local, logger), verifier, cfg.MaxUploadBytes, logger)
	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Fatal("failed to listen for grpc", zap.Error(err), zap.String("addr", cfg.GRPCAddr))
	}
	go serveGRPC(grpcServer, grpcListener, logger)
	defer grpcserver.GracefulStop(grpcServer, grpcHealth)

	addr := ":" + cfg.Port
	server := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("vehicle vision API listening",
		zap.String("addr", addr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("environment", cfg.Environment),
	)
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func buildVisionAnalyzer(cfg *config.Config, logger *zap.Logger) *vision.Analyzer {
	opts := []vision.Option{
		vision.WithClassifier(vision.NewHeuristicClassifier(cfg.EdgeRatioThreshold)),
		vision.WithDamageAssessor(vision.NewDamageAssessor(cfg.DamageBrightnessThreshold)),
		vision.WithMaxPixels(cfg.MaxImagePixels),
	}
	if cfg.Extractor == "opencv" {
		extractor, err := vision.NewOpenCVExtractor()
		if err != nil {
			logger.Fatal("opencv extractor unavailable", zap.Error(err))
		}
		opts = append(opts, vision.WithExtractor(extractor))
	}
	return vision.NewAnalyzer(opts...)
}

func serveGRPC(server *grpc.Server, listener net.Listener, logger *zap.Logger) {
	if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		logger.Error("grpc server stopped", zap.Error(err))
	}
}

func initDatabase(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *gorm.DB {
	logLevel := gormlogger.Info
	if cfg.IsProduction() {
		logLevel = gormlogger.Warn
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(logLevel)})
	if err != nil {
		zapLogger.Fatal("failed to connect to database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("database ping failed", zap.Error(err))
	}

	return db
}

func initRedis(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
