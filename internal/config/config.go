// Package config loads server configuration from YAML with environment
// overrides for deployment-specific values and secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when no config path is given.
const DefaultPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	PlatformURL     string `yaml:"platformURL"`
	PlatformAnonKey string `yaml:"platformAnonKey"`

	RequestTimeout string `yaml:"requestTimeout"`
	MaxRetries     int    `yaml:"maxRetries"`
	RetryBaseDelay string `yaml:"retryBaseDelay"`
	RetryMaxDelay  string `yaml:"retryMaxDelay"`

	SessionRevalidateInterval string `yaml:"sessionRevalidateInterval"`
	SessionProbeTimeout       string `yaml:"sessionProbeTimeout"`

	RedisAddr       string `yaml:"redisAddr"`
	RedisPassword   string `yaml:"redisPassword"`
	ListingCacheTTL string `yaml:"listingCacheTTL"`

	StorageDriver     string `yaml:"storageDriver"`
	RecipeImageBucket string `yaml:"recipeImageBucket"`
	S3Endpoint        string `yaml:"s3Endpoint"`
	S3AccessKey       string `yaml:"s3AccessKey"`
	S3SecretKey       string `yaml:"s3SecretKey"`
	S3UseSSL          bool   `yaml:"s3UseSSL"`
	S3PublicBase      string `yaml:"s3PublicBase"`

	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`

	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`
	CORSAllowedOrigins      []string `yaml:"corsAllowedOrigins"`
	AuthRateLimitPerMinute  int      `yaml:"authRateLimitPerMinute"`
	WriteRateLimitPerMinute int      `yaml:"writeRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("COOKSMART_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("COOKSMART_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("PLATFORM_URL"); v != "" {
		cfg.PlatformURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("PLATFORM_ANON_KEY"); v != "" {
		cfg.PlatformAnonKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("COOKSMART_STORAGE_DRIVER"); v != "" {
		cfg.StorageDriver = strings.TrimSpace(v)
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		cfg.S3Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		cfg.S3AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		cfg.S3SecretKey = v
	}
	if v := os.Getenv("COOKSMART_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("COOKSMART_ALLOWED_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitCSV(v)
	}
	if v := os.Getenv("COOKSMART_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if v := os.Getenv("COOKSMART_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
	if v := os.Getenv("COOKSMART_SESSION_REVALIDATE_INTERVAL"); v != "" {
		cfg.SessionRevalidateInterval = strings.TrimSpace(v)
	}
	if v := os.Getenv("COOKSMART_AUTH_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AuthRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("COOKSMART_WRITE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WriteRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.PlatformURL == "" {
		return errors.New("config: platformURL is required (set in config.yaml or PLATFORM_URL)")
	}
	if strings.TrimSpace(cfg.PlatformAnonKey) == "" {
		return errors.New("config: platformAnonKey is required (set in config.yaml or PLATFORM_ANON_KEY)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for caching and rate limiting")
	}
	switch cfg.StorageDriver {
	case "", "platform", "s3":
	default:
		return fmt.Errorf("config: unknown storageDriver %q (want platform or s3)", cfg.StorageDriver)
	}
	if cfg.StorageDriver == "s3" && (cfg.S3Endpoint == "" || cfg.S3AccessKey == "" || cfg.S3SecretKey == "") {
		return errors.New("config: s3 storage driver requires s3Endpoint, s3AccessKey and s3SecretKey")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: maxRetries must be >= 0")
	}
	if cfg.AuthRateLimitPerMinute < 0 || cfg.WriteRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if iv, err := ParseDurationOr(cfg.SessionRevalidateInterval, 10*time.Minute); err != nil {
		return fmt.Errorf("config: invalid sessionRevalidateInterval: %w", err)
	} else if iv < 5*time.Minute || iv > 20*time.Minute {
		return errors.New("config: sessionRevalidateInterval must be between 5m and 20m")
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseDurationOr parses an optional duration string, returning fallback
// when the string is empty.
func ParseDurationOr(value string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(value) == "" {
		return fallback, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	return dur, nil
}
