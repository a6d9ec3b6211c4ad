// Package config loads service configuration from the environment, with
// optional .env files for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"bookcatalog/internal/media"
)

const (
	defaultAddr           = ":8080"
	defaultMaxImageBytes  = 10 << 20
	defaultMaxBodyBytes   = 12 << 20
	defaultUploadFolder   = "book_covers"
	defaultRateLimitRPS   = 10
	defaultRateLimitBurst = 20
)

var defaultImageTypes = []string{"image/jpeg", "image/png", "image/webp", "image/avif"}

type Config struct {
	Addr        string
	DatabaseDSN string

	MaxImageBytes     int64
	MaxBodyBytes      int64
	AllowedImageTypes []string

	Media media.Config

	RateLimitRPS   float64
	RateLimitBurst int

	CORSAllowedOrigins []string
}

// Load reads configuration from the environment. .env and .env.local are
// loaded first but never override values already set by the runtime.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg := Config{
		Addr:        getEnv("APP_ADDR", defaultAddr),
		DatabaseDSN: os.Getenv("DB_DSN"),
		Media: media.Config{
			CloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
			APIKey:    os.Getenv("CLOUDINARY_API_KEY"),
			APISecret: os.Getenv("CLOUDINARY_API_SECRET"),
			Folder:    getEnv("UPLOAD_FOLDER", defaultUploadFolder),
		},
	}

	if cfg.DatabaseDSN == "" {
		return Config{}, fmt.Errorf("config: DB_DSN is required")
	}

	if err := checkMediaCredentials(cfg.Media); err != nil {
		return Config{}, err
	}

	var err error
	if cfg.MaxImageBytes, err = getEnvInt64("MAX_IMAGE_SIZE", defaultMaxImageBytes); err != nil {
		return Config{}, err
	}
	if cfg.MaxBodyBytes, err = getEnvInt64("MAX_BODY_SIZE", defaultMaxBodyBytes); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitRPS, err = getEnvFloat("RATE_LIMIT_RPS", defaultRateLimitRPS); err != nil {
		return Config{}, err
	}
	if burst, errBurst := getEnvInt64("RATE_LIMIT_BURST", defaultRateLimitBurst); errBurst != nil {
		return Config{}, errBurst
	} else {
		cfg.RateLimitBurst = int(burst)
	}

	cfg.AllowedImageTypes = getEnvList("ALLOWED_IMAGE_TYPES", defaultImageTypes)
	cfg.CORSAllowedOrigins = getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"})

	return cfg, nil
}

// checkMediaCredentials rejects a partially configured media host: either
// all Cloudinary credentials are set, or none are and hosting is disabled.
func checkMediaCredentials(m media.Config) error {
	set := 0
	for _, v := range []string{m.CloudName, m.APIKey, m.APISecret} {
		if v != "" {
			set++
		}
	}
	if set != 0 && set != 3 {
		return fmt.Errorf("config: CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET must be set together")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive integer, got %q", key, v)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("config: %s must be a positive number, got %q", key, v)
	}
	return f, nil
}

func getEnvList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
