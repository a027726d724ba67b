// Shinway is a multi-provider LLM gateway: one OpenAI-compatible edge in
// front of many upstream providers, with routing, failover, BYOK, and a
// usage ledger.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gmw "github.com/Laisky/gin-middlewares/v7"
	glog "github.com/Laisky/go-utils/v6/log"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/common/graceful"
	"github.com/shinmentakezo07/shinway-sub001/common/logger"
	"github.com/shinmentakezo07/shinway-sub001/common/logqueue"
	"github.com/shinmentakezo07/shinway-sub001/common/redis"
	"github.com/shinmentakezo07/shinway-sub001/common/telemetry"
	"github.com/shinmentakezo07/shinway-sub001/model"
	"github.com/shinmentakezo07/shinway-sub001/monitor"
	"github.com/shinmentakezo07/shinway-sub001/router"
)

func main() {
	os.Exit(run())
}

func run() int {
	lg := logger.Logger
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if config.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := model.InitDB(); err != nil {
		lg.Error("initialize database", zap.Error(err))
		return 1
	}
	graceful.OnShutdown("database", func(context.Context) { model.CloseDB() })

	if err := redis.Init(ctx); err != nil {
		lg.Error("initialize redis", zap.Error(err))
		return 1
	}
	graceful.OnShutdown("redis", func(context.Context) { redis.Close() })

	providers, err := telemetry.Init(ctx)
	if err != nil {
		lg.Error("initialize telemetry", zap.Error(err))
		return 1
	}
	if providers != nil {
		graceful.OnShutdown("telemetry", func(shutdownCtx context.Context) {
			if err := providers.Shutdown(shutdownCtx); err != nil {
				lg.Warn("shutdown telemetry", zap.Error(err))
			}
		})
	}

	// Usage envelopes drain from redis into the request_logs table until
	// shutdown, with one final flush.
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	defer stopConsumer()
	graceful.Go("log-queue-consumer", func() {
		logqueue.Consume(consumerCtx, model.InsertLogBatch)
	})
	graceful.Go("log-queue-depth", func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-consumerCtx.Done():
				return
			case <-ticker.C:
				if n, err := logqueue.Depth(consumerCtx); err == nil {
					monitor.SetLogQueueDepth(n)
				}
			}
		}
	})

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gmw.NewLoggerMiddleware(
		gmw.WithLevel(glog.LevelInfo.String()),
		gmw.WithLogger(logger.Logger.Named("gin")),
	))
	router.SetRouter(engine)

	server := &http.Server{
		Addr:        ":" + config.Port,
		Handler:     engine,
		IdleTimeout: config.KeepAliveTimeout,
	}
	serverErr := make(chan error, 1)
	go func() {
		lg.Info("gateway listening", zap.String("addr", server.Addr))
		serverErr <- server.ListenAndServe()
	}()

	exitCode := 0
	select {
	case <-ctx.Done():
		lg.Info("termination signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server failed", zap.Error(err))
			exitCode = 1
		}
	}

	// Stop accepting, drain in-flight requests, then stop the consumer and
	// run the shutdown hooks within the grace period.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownGracePeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http server shutdown", zap.Error(err))
	}
	stopConsumer()
	graceful.Shutdown(shutdownCtx)

	lg.Info("gateway stopped")
	return exitCode
}
