package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string
	LogMode  string

	DBDriver string
	DBDSN    string

	AuthHMACSecret  string
	EnableLocalAuth bool

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	// Background sweep
	EnableSweep      bool
	SweepInterval    time.Duration
	SweepConcurrency int

	// Notification fan-out; empty RedisAddr logs notifications instead of publishing.
	RedisAddr    string
	RedisChannel string

	AlertDedupWindow time.Duration
	InactivityDays   int
}

// FromEnv reads configuration from the environment, loading a .env file first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	mode := Mode(os.Getenv("MODE"))
	if mode == "" {
		mode = ModeOffline
	}
	logMode := "dev"
	if mode == ModeOnline {
		logMode = "prod"
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", ":8080"),
		LogMode:            envOr("LOG_MODE", logMode),
		DBDriver:           envOr("DB_DRIVER", "sqlite"),
		DBDSN:              envOr("DB_DSN", ""),
		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", "supersecret-dev-key"),
		EnableLocalAuth:    envBool("ENABLE_LOCAL_AUTH", true),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", "https://obe.mindengage.ai"),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", "http://localhost:3000,http://localhost:5173"),
		EnableSweep:        envBool("ENABLE_SWEEP", true),
		SweepInterval:      envDuration("SWEEP_INTERVAL", 5*time.Minute),
		SweepConcurrency:   envInt("SWEEP_CONCURRENCY", 1),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisChannel:       envOr("REDIS_CHANNEL", "obe:notifications"),
		AlertDedupWindow:   envDuration("ALERT_DEDUP_WINDOW", 24*time.Hour),
		InactivityDays:     envInt("INACTIVITY_DAYS", 7),
	}
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
func envBool(k string, def bool) bool {
	switch os.Getenv(k) {
	case "1", "true", "TRUE", "yes", "YES":
		return true
	case "0", "false", "FALSE", "no", "NO":
		return false
	default:
		return def
	}
}
func envInt(k string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(k)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
func envDuration(k string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(k)))
	if err != nil || v <= 0 {
		return def
	}
	return v
}
func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
