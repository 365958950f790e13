package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("APP_PORT", "")
	t.Setenv("OTP_TTL", "")
	t.Setenv("OTP_MAX_RESENDS", "")
	t.Setenv("OTP_MAX_ATTEMPTS", "")
	t.Setenv("STORE_DRIVER", "")

	cfg := LoadConfig()

	assert.Equal(t, 3004, cfg.AppPort)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, 10*time.Minute, cfg.OtpTTL)
	assert.Equal(t, 3, cfg.OtpMaxResends)
	assert.Equal(t, 5, cfg.OtpMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("OTP_MAX_RESENDS", "5")
	t.Setenv("OTP_MAX_ATTEMPTS", "8")
	t.Setenv("DB_TIMEOUT", "not-a-duration")
	t.Setenv("STORE_DRIVER", "memory")

	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 5*time.Minute, cfg.OtpTTL)
	assert.Equal(t, 5, cfg.OtpMaxResends)
	assert.Equal(t, 8, cfg.OtpMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.DBTimeout)
}
