package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STRIPE_CURRENCY", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "clp", cfg.Stripe.Currency)
	assert.Equal(t, 15*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, 5, cfg.Business.OrderNumberAttempts)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("STRIPE_CURRENCY", "USD")
	t.Setenv("STRIPE_TIMEOUT_SECONDS", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://fullsound.cl")
	t.Setenv("DB_AUTO_MIGRATE", "false")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Server.Port)
	assert.Equal(t, "usd", cfg.Stripe.Currency)
	assert.Equal(t, 3*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, []string{"https://fullsound.cl"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Database.AutoMigrate)
}

func TestValidateRequiresSecretInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	cfg := Load()
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a-real-secret")
	assert.NoError(t, Load().Validate())

	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")
	assert.NoError(t, Load().Validate())
}
