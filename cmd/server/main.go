package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"next_mart/internal/checkout"
	"next_mart/internal/config"
	"next_mart/internal/gateway"
	"next_mart/internal/logger"
	"next_mart/internal/notify"
	"next_mart/internal/pricing"
	"next_mart/internal/queue"
	"next_mart/internal/router"
	"next_mart/internal/stock"
	"next_mart/internal/storage"
	"next_mart/internal/telemetry"
	rediskey "next_mart/pkg/redis"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	// 1. 配置 + 日志 + trace
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}
	l, err := logger.New(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = l.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.InitTracer(ctx, "next_mart", cfg.AppEnv, cfg.OTelEndpoint)
	if err != nil {
		l.Fatal("tracer init", zap.Error(err))
	}

	// 2. 连接 SQLite（自动建表）和 Redis
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		l.Fatal("db open", zap.Error(err))
	}
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		l.Fatal("redis ping", zap.Error(err))
	}

	// 3. 定价 + 下单
	discounts := rediskey.NewDiscountCache(rdb, cfg.FlashSaleCacheTTL)
	prices := pricing.NewPriceResolver(db, discounts)
	coupons := pricing.NewCouponEvaluator(db)
	delivery := pricing.DeliveryCalculator{
		City:       cfg.Delivery.City,
		InsideFee:  cfg.Delivery.InsideFee,
		OutsideFee: cfg.Delivery.OutsideFee,
	}
	ssl := gateway.NewSSLCommerz(cfg.SSL, &http.Client{Timeout: 10 * time.Second}, l)
	dispatcher := notify.NewDispatcher(rdb, cfg.OrderEventStream)

	assembler := checkout.NewAssembler(db, prices, coupons, delivery)
	coordinator := checkout.NewCoordinator(db, stock.NewLedger(), coupons, ssl, dispatcher, l)
	svc := checkout.NewService(db, assembler, coordinator, ssl, dispatcher, l)

	// 4. 通知链路：Redis Stream → Relay → Kafka → Consumer → 邮件
	producer := queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	relay := queue.NewRelay(rdb, producer, l, cfg.OrderEventStream, cfg.OrderEventGroup, cfg.OrderEventConsumer)
	worker := notify.NewWorker(db, rdb, notify.NewSMTPMailer(cfg.SMTP, l), l)
	consumer := queue.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, worker, l)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		relay.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		consumer.Run(ctx)
	}()

	// 5. HTTP
	if cfg.AppEnv == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(logger.GinLogger(l), gin.Recovery())
	router.Setup(r, router.Deps{
		DB:        db,
		RDB:       rdb,
		Checkout:  svc,
		Coupons:   coupons,
		Discounts: discounts,
		Config:    cfg,
		Logger:    l,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		l.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("http serve", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warn("http shutdown", zap.Error(err))
	}

	// Relay / Consumer 在 ctx 取消后退出，再关闭底层连接
	wg.Wait()
	if err := consumer.Close(); err != nil {
		l.Warn("kafka consumer close", zap.Error(err))
	}
	if err := producer.Close(); err != nil {
		l.Warn("kafka producer close", zap.Error(err))
	}
	if err := rdb.Close(); err != nil {
		l.Warn("redis close", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		l.Warn("tracer shutdown", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
