package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnvKeys = []string{
	"PORT", "ALLOWED_ORIGIN", "STORAGE", "MONGODB_URI", "MONGODB_DATABASE",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "JWT_SECRET", "ACCESS_TOKEN_DURATION",
	"RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW", "PING_INTERVAL", "PONG_WAIT",
	"WRITE_WAIT", "SEND_BUFFER", "MAX_FRAME_BYTES", "SEED_USERS",
}

func clearTestEnvVars(t *testing.T) {
	for _, key := range testEnvKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearTestEnvVars(t)

	cfg := LoadConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "mongo", cfg.Storage)
	assert.Empty(t, cfg.SeedUsers)
	assert.Equal(t, "mongodb://localhost:27017", cfg.MongoDB.URI)
	assert.Equal(t, "linguaconnect", cfg.MongoDB.Database)
	assert.Empty(t, cfg.Redis.Addr)
	assert.False(t, cfg.AuthEnabled())
	assert.Equal(t, 100, cfg.RateLimit.Requests)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 30*time.Second, cfg.Realtime.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.Realtime.PongWait)
	assert.Equal(t, 256, cfg.Realtime.SendBuffer)
	assert.Equal(t, int64(8192), cfg.Realtime.MaxFrameBytes)
}

func TestLoadConfig_FromEnvironment(t *testing.T) {
	clearTestEnvVars(t)
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE", "memory")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")
	t.Setenv("PONG_WAIT", "15")
	t.Setenv("SEED_USERS", "alice, bob,,carol ")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, []string{"alice", "bob", "carol"}, cfg.SeedUsers)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.AuthEnabled())
	assert.Equal(t, 5, cfg.RateLimit.Requests)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, 15*time.Second, cfg.Realtime.PongWait)
}

func TestGetEnvHelpers_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("TEST_INT", "not-a-number")
	t.Setenv("TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvAsInt("TEST_INT", 7))
	assert.Equal(t, time.Second, getEnvAsDuration("TEST_DURATION", time.Second))
}
