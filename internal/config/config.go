package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Storage   string // mongo or memory
	SeedUsers []string
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Realtime  RealtimeConfig
}

type ServerConfig struct {
	Port          string
	AllowedOrigin string
}

type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig is optional. An empty Addr keeps rate limiting in process.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig enables token checks on REST and websocket routes when
// JWTSecret is set.
type AuthConfig struct {
	JWTSecret           string
	AccessTokenDuration time.Duration
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type RealtimeConfig struct {
	PingInterval  time.Duration
	PongWait      time.Duration
	WriteWait     time.Duration
	SendBuffer    int
	MaxFrameBytes int64
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("godotenv: no .env file loaded, using environment")
	}

	return &Config{
		Server: ServerConfig{
			Port:          getEnv("PORT", "8080"),
			AllowedOrigin: getEnv("ALLOWED_ORIGIN", "http://localhost:3000"),
		},
		Storage:   getEnv("STORAGE", "mongo"),
		SeedUsers: getEnvAsList("SEED_USERS"),
		MongoDB: MongoDBConfig{
			URI:      getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGODB_DATABASE", "linguaconnect"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", 15*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Requests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvAsDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Realtime: RealtimeConfig{
			PingInterval:  getEnvAsDuration("PING_INTERVAL", 30*time.Second),
			PongWait:      getEnvAsDuration("PONG_WAIT", 60*time.Second),
			WriteWait:     getEnvAsDuration("WRITE_WAIT", 10*time.Second),
			SendBuffer:    getEnvAsInt("SEND_BUFFER", 256),
			MaxFrameBytes: int64(getEnvAsInt("MAX_FRAME_BYTES", 8192)),
		},
	}
}

// AuthEnabled reports whether bearer tokens are required.
func (c *Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("config: invalid integer for %s=%q, using %d", key, valueStr, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string) []string {
	var values []string
	for _, v := range strings.Split(getEnv(key, ""), ",") {
		if v = strings.TrimSpace(v); v != "" {
			values = append(values, v)
		}
	}
	return values
}

// getEnvAsDuration accepts Go duration strings ("30s") or a plain number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Printf("config: invalid duration for %s=%q, using %s", key, valueStr, defaultValue)
	return defaultValue
}
