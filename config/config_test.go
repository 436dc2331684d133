package config_test

import (
	"testing"
	"time"

	"github.com/Skryldev/image-host/config"
	apperrors "github.com/Skryldev/image-host/errors"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnv(t *testing.T) {
	cfg, err := config.FromEnv(env(map[string]string{
		"SECRET_KEY":                  "s3cr3t",
		"ACCESS_TOKEN_EXPIRE_MINUTES": "15",
		"STORAGE_BACKEND":             "S3",
		"S3_BUCKET_NAME":              "pics",
		"S3_REGION":                   "eu-west-1",
		"S3_USE_SSL":                  "false",
		"KAFKA_BROKERS":               "k1:9092, k2:9092,",
		"JOB_TIMEOUT":                 "5s",
		"MAX_PIXELS":                  "1000000",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Errorf("ttl: got %s, want 15m", cfg.AccessTokenTTL)
	}
	if cfg.Storage != config.StorageS3 {
		t.Errorf("storage: got %q, want s3", cfg.Storage)
	}
	if cfg.S3.UseSSL {
		t.Error("S3_USE_SSL=false not applied")
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers: got %v", cfg.Kafka.Brokers)
	}
	if cfg.JobTimeout != 5*time.Second {
		t.Errorf("job timeout: got %s", cfg.JobTimeout)
	}
	if cfg.MaxPixels != 1_000_000 {
		t.Errorf("max pixels: got %d, want 1000000", cfg.MaxPixels)
	}
	if cfg.DefaultQuality != 85 {
		t.Errorf("default quality: got %d, want 85", cfg.DefaultQuality)
	}
	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestFromEnvRejectsMalformedNumbers(t *testing.T) {
	_, err := config.FromEnv(env(map[string]string{"WORKER_COUNT": "many"}))
	if !apperrors.IsCategory(err, apperrors.CategoryConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := config.Default()
	valid.SecretKey = "k"

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"missing secret", func(c *config.Config) { c.SecretKey = "" }},
		{"bad algorithm", func(c *config.Config) { c.Algorithm = "RS256" }},
		{"quality zero", func(c *config.Config) { c.DefaultQuality = 0 }},
		{"quality 96", func(c *config.Config) { c.DefaultQuality = 96 }},
		{"unknown backend", func(c *config.Config) { c.Storage = "gcs" }},
		{"s3 without bucket", func(c *config.Config) { c.Storage = config.StorageS3 }},
		{"no rate limit", func(c *config.Config) { c.RateLimitPerMinute = 0 }},
		{"no pixel limit", func(c *config.Config) { c.MaxPixels = 0 }},
	}

	if err := config.Validate(valid); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			err := config.Validate(c)
			if !apperrors.IsCategory(err, apperrors.CategoryConfig) {
				t.Errorf("expected config error, got %v", err)
			}
		})
	}
}
