package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string
	AppEnv   string
	LogLevel string

	RedisAddr string
	RedisDB   int

	// Kafka 集群地址（逗号分隔）、Topic、消费者组
	KafkaBrokers []string
	KafkaTopic   string
	KafkaGroupID string

	// Redis Stream outbox（下单提交后入流，Relay 异步转 Kafka）
	OrderEventStream   string
	OrderEventGroup    string
	OrderEventConsumer string

	// 下单接口限流、幂等键保留时间、折扣缓存
	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	IdempotencyTTL     time.Duration
	FlashSaleCacheTTL  time.Duration

	// 管理接口（优惠券）的简单令牌
	AdminToken string

	Delivery DeliveryConfig
	SSL      SSLConfig
	SMTP     SMTPConfig

	// OTLP/HTTP 上报地址，为空则不导出 trace
	OTelEndpoint string
}

// DeliveryConfig 两档运费：地址包含 City 走 InsideFee，否则 OutsideFee。
type DeliveryConfig struct {
	City       string
	InsideFee  decimal.Decimal
	OutsideFee decimal.Decimal
}

// SSLConfig 支付网关参数。
type SSLConfig struct {
	StoreID       string
	StorePass     string
	BaseURL       string
	Currency      string
	SuccessURL    string
	FailURL       string
	CancelURL     string
	ValidationURL string
	IPNURL        string
}

type SMTPConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// Load 读取并校验配置，缺失时使用默认值。存在 .env 时先加载。
func Load() (AppConfig, error) {
	_ = godotenv.Load()

	cfg := AppConfig{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DBPath:             getEnv("DB_PATH", "next_mart.db"),
		AppEnv:             getEnv("APP_ENV", "dev"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RedisAddr:          getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:            0,
		KafkaBrokers:       splitCSV(getEnv("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:         getEnv("KAFKA_TOPIC", "next-mart-order-events"),
		KafkaGroupID:       getEnv("KAFKA_GROUP_ID", "next-mart-notifier"),
		OrderEventStream:   getEnv("ORDER_EVENT_STREAM", "next_mart:order_events"),
		OrderEventGroup:    getEnv("ORDER_EVENT_GROUP", "next-mart-relay-group"),
		OrderEventConsumer: getEnv("ORDER_EVENT_CONSUMER", "next-mart-relay-1"),
		CheckoutRateLimit:  20,
		CheckoutRateWindow: time.Second,
		IdempotencyTTL:     24 * time.Hour,
		FlashSaleCacheTTL:  time.Minute,
		AdminToken:         getEnv("ADMIN_TOKEN", "dev-admin-token"),
		Delivery: DeliveryConfig{
			City: strings.ToLower(getEnv("DELIVERY_CITY", "dhaka")),
		},
		SSL: SSLConfig{
			StoreID:       getEnv("SSL_STORE_ID", ""),
			StorePass:     getEnv("SSL_STORE_PASS", ""),
			BaseURL:       getEnv("SSL_BASE_URL", "https://sandbox.sslcommerz.com"),
			Currency:      getEnv("SSL_CURRENCY", "BDT"),
			SuccessURL:    getEnv("SSL_SUCCESS_URL", "http://localhost:3000/success"),
			FailURL:       getEnv("SSL_FAIL_URL", "http://localhost:3000/failed"),
			CancelURL:     getEnv("SSL_CANCEL_URL", "http://localhost:3000/cancel"),
			ValidationURL: getEnv("SSL_VALIDATION_URL", "http://localhost:8080/api/ssl/validate"),
			IPNURL:        getEnv("SSL_IPN_URL", "http://localhost:8080/api/ssl/ipn"),
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnv("SMTP_PORT", "1025"),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@next-mart.local"),
		},
		OTelEndpoint: getEnv("OTEL_ENDPOINT", ""),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("CHECKOUT_RATE_LIMIT", cfg.CheckoutRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CHECKOUT_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("CHECKOUT_RATE_LIMIT must be > 0")
	}
	cfg.CheckoutRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("CHECKOUT_RATE_WINDOW_SEC", int(cfg.CheckoutRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CHECKOUT_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("CHECKOUT_RATE_WINDOW_SEC must be > 0")
	}
	cfg.CheckoutRateWindow = time.Duration(rateWindowSec) * time.Second

	idemMin, err := getEnvInt("IDEMPOTENCY_TTL_MIN", int(cfg.IdempotencyTTL.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid IDEMPOTENCY_TTL_MIN: %w", err)
	}
	if idemMin <= 0 {
		return AppConfig{}, fmt.Errorf("IDEMPOTENCY_TTL_MIN must be > 0")
	}
	cfg.IdempotencyTTL = time.Duration(idemMin) * time.Minute

	cacheSec, err := getEnvInt("FLASH_SALE_CACHE_TTL_SEC", int(cfg.FlashSaleCacheTTL.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid FLASH_SALE_CACHE_TTL_SEC: %w", err)
	}
	if cacheSec < 0 {
		return AppConfig{}, fmt.Errorf("FLASH_SALE_CACHE_TTL_SEC must be >= 0")
	}
	cfg.FlashSaleCacheTTL = time.Duration(cacheSec) * time.Second

	if cfg.Delivery.InsideFee, err = getEnvDecimal("DELIVERY_INSIDE_FEE", "60"); err != nil {
		return AppConfig{}, fmt.Errorf("invalid DELIVERY_INSIDE_FEE: %w", err)
	}
	if cfg.Delivery.OutsideFee, err = getEnvDecimal("DELIVERY_OUTSIDE_FEE", "120"); err != nil {
		return AppConfig{}, fmt.Errorf("invalid DELIVERY_OUTSIDE_FEE: %w", err)
	}
	if cfg.Delivery.InsideFee.IsNegative() || cfg.Delivery.OutsideFee.IsNegative() {
		return AppConfig{}, fmt.Errorf("delivery fees must be >= 0")
	}
	if cfg.Delivery.City == "" {
		return AppConfig{}, fmt.Errorf("DELIVERY_CITY must not be empty")
	}

	if len(cfg.KafkaBrokers) == 0 {
		return AppConfig{}, fmt.Errorf("KAFKA_BROKERS must not be empty")
	}
	if cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty")
	}
	if cfg.KafkaGroupID == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_GROUP_ID must not be empty")
	}
	if cfg.OrderEventStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_STREAM must not be empty")
	}
	if cfg.OrderEventGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_GROUP must not be empty")
	}
	if cfg.OrderEventConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_EVENT_CONSUMER must not be empty")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvDecimal(key, fallback string) (decimal.Decimal, error) {
	return decimal.NewFromString(getEnv(key, fallback))
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
