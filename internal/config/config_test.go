package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "dhaka", cfg.Delivery.City)
	assert.Equal(t, "60", cfg.Delivery.InsideFee.String())
	assert.Equal(t, "120", cfg.Delivery.OutsideFee.String())
	assert.Equal(t, time.Second, cfg.CheckoutRateWindow)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("DELIVERY_CITY", "Chattogram")
	t.Setenv("DELIVERY_INSIDE_FEE", "50.5")
	t.Setenv("CHECKOUT_RATE_LIMIT", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "chattogram", cfg.Delivery.City)
	assert.Equal(t, "50.5", cfg.Delivery.InsideFee.String())
	assert.Equal(t, 5, cfg.CheckoutRateLimit)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"CHECKOUT_RATE_LIMIT":      "0",
		"CHECKOUT_RATE_WINDOW_SEC": "abc",
		"DELIVERY_OUTSIDE_FEE":     "-1",
		"REDIS_DB":                 "x",
		"IDEMPOTENCY_TTL_MIN":      "-5",
	}
	for key, val := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
