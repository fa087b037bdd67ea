package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-ledger/internal/adapter/handler"
	"github.com/rl1809/stock-ledger/internal/adapter/storage"
	"github.com/rl1809/stock-ledger/internal/config"
	"github.com/rl1809/stock-ledger/internal/core/service"
	"github.com/rl1809/stock-ledger/internal/port"
)

// store bundles the repository ports served by one backend.
type store interface {
	port.ItemRepository
	port.LedgerRepository
	port.RecipeRepository
	port.PostingRepository
}

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	var (
		backend store
		db      *sql.DB
	)
	switch cfg.StoreDriver {
	case "memory":
		backend = storage.NewMemoryStore()
		logger.Warn("using in-memory store; data is lost on exit")
	case "mysql":
		var err error
		db, err = sql.Open("mysql", cfg.MySQLDSN)
		if err != nil {
			logger.WithError(err).Fatal("failed to open mysql")
		}
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

		if err := db.PingContext(ctx); err != nil {
			logger.WithError(err).Fatal("failed to ping mysql")
		}
		logger.Info("connected to mysql")

		mysqlAdapter := storage.NewMySQLAdapter(db)
		if cfg.MigrateOnStart {
			if err := mysqlAdapter.Migrate(ctx); err != nil {
				logger.WithError(err).Fatal("failed to migrate schema")
			}
			logger.Info("schema migrated")
		}
		backend = mysqlAdapter
	default:
		logger.WithField("driver", cfg.StoreDriver).Fatal("unknown STORE_DRIVER")
	}

	// Initialize Redis (optional)
	var (
		cache port.CacheRepository
		rdb   *redis.Client
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Fatal("failed to connect redis")
		}
		logger.Info("connected to redis")
		cache = storage.NewRedisAdapter(rdb,
			storage.WithIdempotencyTTL(cfg.IdempotencyTTL),
			storage.WithLockTTL(cfg.PostingLockTTL),
		)
	} else {
		logger.Info("REDIS_ADDR not set; request ids are not deduplicated")
	}

	// Initialize services
	postingService := service.NewPostingService(backend, backend, cache, logger,
		service.WithMaxRetries(cfg.PostingMaxRetries))
	recipeService := service.NewRecipeService(backend, backend, logger)
	catalogService := service.NewCatalogService(backend, logger)
	reconciliationService := service.NewReconciliationService(backend, backend, logger)

	// Start reconciliation worker
	var wg sync.WaitGroup
	if cfg.ReconcileInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reconcileLoop(ctx, reconciliationService, cfg.ReconcileInterval, logger)
		}()
		logger.WithField("interval", cfg.ReconcileInterval.String()).Info("started reconciliation worker")
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.RegisterPostingServiceServer(grpcServer, handler.NewGRPCHandler(postingService))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.WithError(err).Fatal("failed to listen")
	}

	go func() {
		logger.WithField("addr", cfg.GRPCAddr).Info("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			logger.WithError(err).Error("gRPC server error")
		}
	}()

	// Initialize HTTP server
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	handler.NewHTTPHandler(postingService, recipeService, catalogService, reconciliationService).Register(router)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}

	go func() {
		logger.WithField("addr", cfg.HTTPAddr).Info("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP shutdown")
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	cancel()
	wg.Wait()
	logger.Info("workers stopped")

	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	logger.Info("connections closed")
}

func reconcileLoop(ctx context.Context, svc *service.ReconciliationService, interval time.Duration, logger logrus.FieldLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			if _, err := svc.Check(runCtx); err != nil {
				config.LogError(logger, "reconciliation", "reconcileLoop", "periodic check", nil, err)
			}
			cancel()
		}
	}
}

func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"module":   "http",
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.String())
			return
		}
		entry.Debug("request served")
	}
}
