// Package config loads the admission service configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	Secrets  SecretsConfig
	Facebook FacebookConfig
	Admin    AdminConfig
	Throttle ThrottleConfig
}

type ServerConfig struct {
	// Addr is the listen address, host optional.
	Addr string

	// PublicURL is the externally visible base URL, used for HSTS and the
	// OAuth redirect URL default.
	PublicURL string
}

type RedisConfig struct {
	// Addr empty means the in-process memory store.
	Addr     string
	Password string
	DB       int
}

type SecretsConfig struct {
	// WebhookSecret signs webhook payloads. Required to serve webhooks.
	WebhookSecret string

	// StateSecret signs the OAuth state parameter. Required to serve the
	// OAuth routes.
	StateSecret string

	// VerifyToken answers the webhook subscription handshake.
	VerifyToken string

	// AllowedOrigins is the comma-separated redirect origin allow-list.
	AllowedOrigins []string
}

type FacebookConfig struct {
	AppID     string
	AppSecret string
	// RedirectURL empty means PublicURL + "/oauth/callback".
	RedirectURL string
}

type AdminConfig struct {
	// Username and PasswordHash (bcrypt) protect the admin routes. Both
	// empty disables them.
	Username     string
	PasswordHash string
}

type ThrottleConfig struct {
	Rate  int
	Burst int
}

// Load reads the configuration from the environment. A .env file in the
// working directory is merged in when present, without overriding real
// environment variables.
func Load() (Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	throttleRate, err := strconv.Atoi(getEnv("THROTTLE_RATE", "20"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid THROTTLE_RATE: %w", err)
	}
	throttleBurst, err := strconv.Atoi(getEnv("THROTTLE_BURST", "40"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid THROTTLE_BURST: %w", err)
	}

	publicURL := getEnv("PUBLIC_URL", "http://localhost:8080")
	redirectURL := getEnv("FACEBOOK_REDIRECT_URL", "")
	if redirectURL == "" {
		redirectURL = strings.TrimSuffix(publicURL, "/") + "/oauth/callback"
	}

	return Config{
		Server: ServerConfig{
			Addr:      getEnv("LISTEN_ADDR", ":8080"),
			PublicURL: publicURL,
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Secrets: SecretsConfig{
			WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
			StateSecret:    os.Getenv("STATE_SECRET"),
			VerifyToken:    os.Getenv("WEBHOOK_VERIFY_TOKEN"),
			AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		},
		Facebook: FacebookConfig{
			AppID:       os.Getenv("FACEBOOK_APP_ID"),
			AppSecret:   os.Getenv("FACEBOOK_APP_SECRET"),
			RedirectURL: redirectURL,
		},
		Admin: AdminConfig{
			Username:     os.Getenv("ADMIN_USER"),
			PasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		},
		Throttle: ThrottleConfig{
			Rate:  throttleRate,
			Burst: throttleBurst,
		},
	}, nil
}

func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
