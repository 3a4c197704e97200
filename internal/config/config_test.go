package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123456789abcdef"

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{"HTTP_PORT", "WS_ADDR", "WS_REQUIRE_TOKEN", "REDIS_URL", "LOG_LEVEL", "LOG_FORMAT", "WS_CLUSTER_CHANNEL"} {
		t.Setenv(key, "")
	}

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.HTTPPort)
	assert.Equal(t, "0.0.0.0:9001", cfg.WSAddr)
	assert.False(t, cfg.WSRequireToken)
	assert.Equal(t, int64(64*1024), cfg.WSMaxMessageSize)
	assert.Equal(t, 10*time.Second, cfg.WSWriteWait)
	assert.Equal(t, "dockhub:events", cfg.WSClusterChannel)
	assert.False(t, cfg.ClusterEnabled())
	assert.Equal(t, "127.0.0.1:8000", cfg.HTTPAddr())
	assert.NoError(t, cfg.Validate(false))
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "8080")
	t.Setenv("WS_ADDR", "127.0.0.1:9100")
	t.Setenv("WS_REQUIRE_TOKEN", "true")
	t.Setenv("WS_PONG_WAIT", "30s")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", secret)

	cfg, err := loadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "127.0.0.1:9100", cfg.WSAddr)
	assert.True(t, cfg.WSRequireToken)
	assert.Equal(t, 30*time.Second, cfg.WSPongWait)
	assert.True(t, cfg.ClusterEnabled())
	assert.NoError(t, cfg.Validate(true))
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	_, err := loadFromEnv()
	assert.Error(t, err)

	t.Setenv("HTTP_PORT", "8000")
	t.Setenv("WS_REQUIRE_TOKEN", "maybe")
	_, err = loadFromEnv()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		t.Setenv("JWT_SECRET", "")
		cfg, err := loadFromEnv()
		require.NoError(t, err)
		return cfg
	}

	t.Run("same port for relay and api", func(t *testing.T) {
		cfg := base()
		cfg.WSAddr = "0.0.0.0:8000"
		assert.ErrorContains(t, cfg.Validate(false), "different port")
	})

	t.Run("secret required by api", func(t *testing.T) {
		cfg := base()
		assert.ErrorContains(t, cfg.Validate(true), "JWT_SECRET")
	})

	t.Run("secret required by gated relay", func(t *testing.T) {
		cfg := base()
		cfg.WSRequireToken = true
		cfg.JWTSecret = "short"
		assert.ErrorContains(t, cfg.Validate(false), "JWT_SECRET")
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := base()
		cfg.LogLevel = "loud"
		assert.ErrorContains(t, cfg.Validate(false), "LOG_LEVEL")
	})
}

func TestRedisOptions(t *testing.T) {
	cfg := &Config{RedisURL: "redis://:inurl@cache.local:6380/2"}
	opts, err := cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "cache.local:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, "inurl", opts.Password)

	cfg.RedisPassword = "override"
	opts, err = cfg.RedisOptions()
	require.NoError(t, err)
	assert.Equal(t, "override", opts.Password)

	cfg.RedisURL = "http://not-redis"
	_, err = cfg.RedisOptions()
	assert.Error(t, err)
}
