package config

import (
	"errors"
	"os"
	"time"
)

type Config struct {
	HTTPAddr        string
	DBDSN           string
	JWTSecret       string
	InternalToken   string
	WebSocketOrigin string
	RedisAddr       string
	QuoteCacheTTL   time.Duration
	MarginInterval  time.Duration
	QueueInterval   time.Duration
	ContestInterval time.Duration
}

func Load() (Config, error) {
	var c Config
	var missing []string
	c.HTTPAddr = os.Getenv("HTTP_ADDR")
	if c.HTTPAddr == "" {
		missing = append(missing, "HTTP_ADDR")
	}
	c.DBDSN = os.Getenv("DB_DSN")
	if c.DBDSN == "" {
		missing = append(missing, "DB_DSN")
	}
	c.JWTSecret = os.Getenv("JWT_SECRET")
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	c.InternalToken = os.Getenv("INTERNAL_API_TOKEN")
	if c.InternalToken == "" {
		missing = append(missing, "INTERNAL_API_TOKEN")
	}
	c.WebSocketOrigin = os.Getenv("WS_ORIGIN")
	if c.WebSocketOrigin == "" {
		c.WebSocketOrigin = "*"
	}
	c.RedisAddr = os.Getenv("REDIS_ADDR")

	var err error
	c.QuoteCacheTTL, err = durationEnv("QUOTE_CACHE_TTL", 2*time.Second)
	if err != nil {
		return c, err
	}
	c.MarginInterval, err = durationEnv("MARGIN_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return c, err
	}
	c.QueueInterval, err = durationEnv("QUEUE_SWEEP_INTERVAL", 1*time.Minute)
	if err != nil {
		return c, err
	}
	c.ContestInterval, err = durationEnv("CONTEST_SWEEP_INTERVAL", 1*time.Minute)
	if err != nil {
		return c, err
	}

	if len(missing) > 0 {
		return c, errors.New("missing required env: " + join(missing))
	}
	return c, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.New("invalid " + key)
	}
	return d, nil
}

func join(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for i := 1; i < len(items); i++ {
		out += "," + items[i]
	}
	return out
}
