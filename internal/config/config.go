package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Defaults for the exchange rate source. The fallback rate keeps the counter
// usable when the endpoint is unreachable.
const (
	DefaultRateURL      = "https://ve.dolarapi.com/v1/dolares/oficial"
	DefaultFallbackRate = "55.0"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RateURL               string
	FallbackRate          string
	RateTTLSeconds        int
	AuthSecret            string
	AccessTokenTTLMinutes int
	BootstrapAdminUser    string
	BootstrapAdminPass    string
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	rateTTL, err := strconv.Atoi(getEnv("RATE_TTL_SECONDS", "300"))
	if err != nil || rateTTL < 1 {
		rateTTL = 300
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		RateURL:               getEnv("RATE_URL", DefaultRateURL),
		FallbackRate:          getEnv("FALLBACK_RATE", DefaultFallbackRate),
		RateTTLSeconds:        rateTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		BootstrapAdminUser:    getEnv("BOOTSTRAP_ADMIN_USERNAME", "admin"),
		BootstrapAdminPass:    strings.TrimSpace(os.Getenv("BOOTSTRAP_ADMIN_PASSWORD")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}
