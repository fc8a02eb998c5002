package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                   string
	AllowedOrigin          string
	DatabaseURL            string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	DefaultPodID           string
	DefaultCountryCode     string
	CatalogCacheTTLSeconds int
	CartTTLMinutes         int
	AuthSecret             string
	AccessTokenTTLMinutes  int
	LogLevel               string
	LogFormat              string
}

// Load reads configuration from an optional .env file in the working
// directory, overridden by process environment variables.
func Load() Config {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_POD_ID", "pod-main")
	v.SetDefault("DEFAULT_COUNTRY_CODE", "27")
	v.SetDefault("CATALOG_CACHE_TTL_SECONDS", 60)
	v.SetDefault("CART_TTL_MINUTES", 120)
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	catalogTTL := v.GetInt("CATALOG_CACHE_TTL_SECONDS")
	if catalogTTL < 1 {
		catalogTTL = 60
	}
	cartTTL := v.GetInt("CART_TTL_MINUTES")
	if cartTTL < 1 {
		cartTTL = 120
	}
	tokenTTL := v.GetInt("ACCESS_TOKEN_TTL_MINUTES")
	if tokenTTL < 1 {
		tokenTTL = 480
	}

	return Config{
		Port:                   v.GetString("PORT"),
		AllowedOrigin:          v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:            strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:              strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:          v.GetString("REDIS_PASSWORD"),
		RedisDB:                v.GetInt("REDIS_DB"),
		DefaultPodID:           v.GetString("DEFAULT_POD_ID"),
		DefaultCountryCode:     strings.TrimPrefix(strings.TrimSpace(v.GetString("DEFAULT_COUNTRY_CODE")), "+"),
		CatalogCacheTTLSeconds: catalogTTL,
		CartTTLMinutes:         cartTTL,
		AuthSecret:             strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes:  tokenTTL,
		LogLevel:               strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:              strings.ToLower(v.GetString("LOG_FORMAT")),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
