package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DatabaseURL string
	RedisURL    string
	JWTSecret   string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string

	OCRBaseURL  string
	OCRAPIKey   string
	OCRTimeout  time.Duration
	OCRLanguage string

	AIPrimaryAPIKey    string
	AIPrimaryBaseURL   string
	AIPrimaryModel     string
	AISecondaryAPIKey  string
	AISecondaryBaseURL string
	AISecondaryModel   string
	AITimeout          time.Duration

	AttemptLimit   int
	ImageDelay     time.Duration
	BatchDelay     time.Duration
	LatestCacheTTL time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}
	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration from environment variables and an optional .env
// file. Attempt limits and pipeline delays are defaults here, not invariants.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("GRADEFLOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GradeFlow API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("cloudinary.folder", "gradeflow/answers")
	v.SetDefault("ocr.timeout_ms", 30000)
	v.SetDefault("ocr.language", "en")
	v.SetDefault("ai.timeout_ms", 30000)
	v.SetDefault("ai.primary_model", "gpt-4o-mini")
	v.SetDefault("ai.secondary_model", "gpt-4o-mini")
	v.SetDefault("attempt.limit", 5)
	v.SetDefault("ocr.image_delay_ms", 1000)
	v.SetDefault("ocr.batch_delay_ms", 2000)
	v.SetDefault("cache.latest_ttl", "5m")

	ttl, err := time.ParseDuration(v.GetString("cache.latest_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid latest cache ttl: %w", err)
	}

	cfg := Config{
		AppName:             v.GetString("app.name"),
		AppEnv:              v.GetString("app.env"),
		AppPort:             v.GetString("app.port"),
		DatabaseURL:         v.GetString("database.url"),
		RedisURL:            v.GetString("redis.url"),
		JWTSecret:           v.GetString("jwt.secret"),
		CloudinaryCloudName: v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:    v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret: v.GetString("cloudinary.api_secret"),
		CloudinaryFolder:    v.GetString("cloudinary.folder"),
		OCRBaseURL:          v.GetString("ocr.base_url"),
		OCRAPIKey:           v.GetString("ocr.api_key"),
		OCRTimeout:          time.Duration(v.GetInt("ocr.timeout_ms")) * time.Millisecond,
		OCRLanguage:         v.GetString("ocr.language"),
		AIPrimaryAPIKey:     v.GetString("ai.primary_api_key"),
		AIPrimaryBaseURL:    v.GetString("ai.primary_base_url"),
		AIPrimaryModel:      v.GetString("ai.primary_model"),
		AISecondaryAPIKey:   v.GetString("ai.secondary_api_key"),
		AISecondaryBaseURL:  v.GetString("ai.secondary_base_url"),
		AISecondaryModel:    v.GetString("ai.secondary_model"),
		AITimeout:           time.Duration(v.GetInt("ai.timeout_ms")) * time.Millisecond,
		AttemptLimit:        v.GetInt("attempt.limit"),
		ImageDelay:          time.Duration(v.GetInt("ocr.image_delay_ms")) * time.Millisecond,
		BatchDelay:          time.Duration(v.GetInt("ocr.batch_delay_ms")) * time.Millisecond,
		LatestCacheTTL:      ttl,
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.AttemptLimit <= 0 {
		cfg.AttemptLimit = 5
	}

	return cfg, nil
}
