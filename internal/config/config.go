package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultPort               = "8085"
	DefaultSPARQLHost         = "http://localhost:7200"
	DefaultSPARQLRepository   = "catalog"
	DefaultNamespace          = "http://example.org/catalog#"
	DefaultPageSize           = 30
	DefaultMaxParallelLookups = 8
)

// Config holds everything cmd/server needs to wire the service.
type Config struct {
	Port string
	Env  string

	SPARQLEndpoint string
	SPARQLTimeout  time.Duration
	Namespace      string

	PageSize           int
	MaxParallelLookups int
	CombinedListing    bool

	RedisURL string
	RedisDB  int
	CacheTTL time.Duration

	RateLimit      float64
	RateBurst      int
	AllowedOrigins []string

	SessionIdleTimeout time.Duration
	LogLevel           string
}

// Load reads an optional .env file and then the process environment.
// A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Port:      getenv("PORT", DefaultPort),
		Env:       getenv("APP_ENV", "production"),
		Namespace: getenv("CATALOG_NAMESPACE", DefaultNamespace),
		RedisURL:  getenv("REDIS_URL", "redis://localhost:6379"),
		LogLevel:  getenv("LOG_LEVEL", "info"),
	}

	cfg.SPARQLEndpoint = os.Getenv("SPARQL_ENDPOINT")
	if cfg.SPARQLEndpoint == "" {
		host := strings.TrimRight(getenv("SPARQL_HOST", DefaultSPARQLHost), "/")
		repo := getenv("SPARQL_REPOSITORY", DefaultSPARQLRepository)
		cfg.SPARQLEndpoint = host + "/repositories/" + repo
	}

	var err error
	if cfg.SPARQLTimeout, err = durationEnv("SPARQL_TIMEOUT", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PageSize, err = intEnv("PAGE_SIZE", DefaultPageSize); err != nil {
		return nil, err
	}
	if cfg.PageSize < 1 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive, got %d", cfg.PageSize)
	}
	if cfg.MaxParallelLookups, err = intEnv("MAX_PARALLEL_LOOKUPS", DefaultMaxParallelLookups); err != nil {
		return nil, err
	}
	if cfg.CombinedListing, err = boolEnv("COMBINED_LISTING", false); err != nil {
		return nil, err
	}
	if cfg.RedisDB, err = intEnv("REDIS_DB", 0); err != nil {
		return nil, err
	}

	// CACHE_TTL is in seconds, like the redis tooling expects.
	ttlSeconds, err := intEnv("CACHE_TTL", 600)
	if err != nil {
		return nil, err
	}
	cfg.CacheTTL = time.Duration(ttlSeconds) * time.Second

	if cfg.RateBurst, err = intEnv("RATE_BURST", 20); err != nil {
		return nil, err
	}
	cfg.RateLimit = 10
	if v := os.Getenv("RATE_LIMIT"); v != "" {
		if cfg.RateLimit, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf("invalid RATE_LIMIT %q: %w", v, err)
		}
	}

	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.SessionIdleTimeout, err = durationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment reports whether APP_ENV selects the development setup.
func (c *Config) IsDevelopment() bool {
	return strings.EqualFold(c.Env, "development") || strings.EqualFold(c.Env, "dev")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func boolEnv(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
