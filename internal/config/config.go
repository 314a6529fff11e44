package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service.
type Config struct {
	Port            string
	GRPCAddr        string
	Environment     string
	LogLevel        string
	ServiceVersion  string
	DatabaseDSN     string
	RedisAddr       string
	JWTSecret       string
	JWTAudience     string
	AnalyzerAddr    string
	AnalyzerToken   string
	Extractor       string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	ResultTTL       time.Duration
	MaxUploadBytes  int64
	MaxImagePixels  int64

	DamageBrightnessThreshold float64
	EdgeRatioThreshold        float64
}

// Load reads a .env file when one exists and then the process environment.
func Load() (*Config, error) {
	// A missing .env file is fine; real deployments use the environment.
	_ = godotenv.Load()
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, applying defaults for unset keys.
func FromEnv(lookup func(string) (string, bool)) (*Config, error) {
	get := func(key, fallback string) string {
		if value, ok := lookup(key); ok && value != "" {
			return value
		}
		return fallback
	}

	cfg := &Config{
		Port:           get("PORT", "8080"),
		GRPCAddr:       get("GRPC_ADDR", ":9090"),
		Environment:    get("ENVIRONMENT", "development"),
		LogLevel:       get("LOG_LEVEL", "info"),
		ServiceVersion: get("SERVICE_VERSION", "1.0.0"),
		DatabaseDSN:    get("DATABASE_DSN", "host=postgres user=postgres password=postgres dbname=vehicle_vision port=5432 sslmode=disable"),
		RedisAddr:      get("REDIS_ADDR", "redis:6379"),
		JWTSecret:      get("JWT_SECRET", "dev-secret"),
		JWTAudience:    get("JWT_AUDIENCE", ""),
		AnalyzerAddr:   get("ANALYZER_ADDR", ""),
		AnalyzerToken:  get("ANALYZER_TOKEN", ""),
		Extractor:      get("FEATURE_EXTRACTOR", "luminance"),
	}

	var err error
	if cfg.RequestTimeout, err = parseDuration("REQUEST_TIMEOUT", get("REQUEST_TIMEOUT", "30s")); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = parseDuration("SHUTDOWN_TIMEOUT", get("SHUTDOWN_TIMEOUT", "15s")); err != nil {
		return nil, err
	}
	if cfg.ResultTTL, err = parseDuration("RESULT_TTL", get("RESULT_TTL", "5m")); err != nil {
		return nil, err
	}
	if cfg.MaxUploadBytes, err = strconv.ParseInt(get("MAX_UPLOAD_BYTES", "10485760"), 10, 64); err != nil || cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("config: MAX_UPLOAD_BYTES must be a positive integer")
	}
	if cfg.MaxImagePixels, err = strconv.ParseInt(get("MAX_IMAGE_PIXELS", "50000000"), 10, 64); err != nil || cfg.MaxImagePixels <= 0 {
		return nil, fmt.Errorf("config: MAX_IMAGE_PIXELS must be a positive integer")
	}
	if cfg.DamageBrightnessThreshold, err = parseFloat("DAMAGE_BRIGHTNESS_THRESHOLD", get("DAMAGE_BRIGHTNESS_THRESHOLD", "100")); err != nil {
		return nil, err
	}
	if cfg.EdgeRatioThreshold, err = parseFloat("EDGE_RATIO_THRESHOLD", get("EDGE_RATIO_THRESHOLD", "0.2")); err != nil {
		return nil, err
	}

	switch cfg.Extractor {
	case "luminance", "opencv":
	default:
		return nil, fmt.Errorf("config: FEATURE_EXTRACTOR must be luminance or opencv, got %q", cfg.Extractor)
	}

	return cfg, nil
}

// IsProduction reports whether the service runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive duration, got %q", key, raw)
	}
	return d, nil
}

func parseFloat(key, raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("config: %s must be a finite number, got %q", key, raw)
	}
	return f, nil
}
