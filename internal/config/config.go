package config

import (
	"fmt"
	"os"
	"time"
)

type AppConfig struct {
	// Legion platform API base URL, e.g. https://api.legion.example.com.
	LegionAPIURL string

	// OAuth client credentials provisioned on the platform.
	OAuthClientID     string
	OAuthClientSecret string
	OAuthRedirectURI  string

	// OpenWeatherMap API key. Weather requests fail with a
	// configuration error when this is empty.
	OpenWeatherAPIKey string

	// Optional Google geocoder API key used as a fallback when
	// OpenWeather geocoding yields no result.
	GeocoderAPIKey string

	// Optional Redis address. When set, OAuth sessions and pending
	// states live in Redis instead of process memory.
	RedisAddr string

	// HTTPTimeout bounds every outbound call.
	HTTPTimeout time.Duration

	// StateTTL is how long a pending OAuth state stays valid.
	StateTTL time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.LegionAPIURL = getenvDefault("LEGION_API_URL", "https://api.legion.picogrid.com")
	cfg.OAuthClientID = os.Getenv("OAUTH_CLIENT_ID")
	cfg.OAuthClientSecret = os.Getenv("OAUTH_CLIENT_SECRET")
	cfg.OAuthRedirectURI = getenvDefault("OAUTH_REDIRECT_URI", "http://localhost:8080/oauth/callback")

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "15s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	ttlStr := getenvDefault("STATE_TTL", "1h")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid STATE_TTL: %w", err)
	}
	cfg.StateTTL = ttl

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
