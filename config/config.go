package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	apperrors "github.com/Skryldev/image-host/errors"
)

// StorageBackend selects the storage adapter.
type StorageBackend string

const (
	StorageLocal StorageBackend = "local"
	StorageS3    StorageBackend = "s3"
)

// Config is the top-level configuration struct. Default() fills every field,
// so callers only override what they need.
type Config struct {
	HTTPAddr     string
	CORSOrigins  []string
	DatabasePath string

	// Bearer tokens.
	SecretKey      string
	Algorithm      string // HS256, HS384 or HS512
	AccessTokenTTL time.Duration

	// Raster worker pool.
	WorkerCount int // <= 0 resolves to runtime.NumCPU()
	QueueSize   int
	JobTimeout  time.Duration

	DefaultQuality int // JPEG quality when a request does not supply one
	MaxUploadBytes int64
	MaxPixels      int64 // largest raster decoded or produced, width*height

	RateLimitPerMinute int // transform requests per client address

	// Storage.
	Storage StorageBackend
	Local   LocalConfig
	S3      S3Config

	Kafka KafkaConfig

	LogLevel  string // "debug", "info", "warn", "error"
	LogFormat string // "json" or "console"
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string
	Permissions uint32 // default 0644
}

// S3Config configures the S3 storage adapter.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string // optional custom endpoint (MinIO, etc.)
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
}

// KafkaConfig configures domain event publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// DefaultMaxPixels bounds decoded and produced rasters. At four bytes per
// pixel it keeps one raster near 160 MiB.
const DefaultMaxPixels int64 = 40_000_000

// Default returns a Config populated with production defaults. SecretKey is
// left empty on purpose: Validate refuses to run without one.
func Default() Config {
	return Config{
		HTTPAddr:           ":8000",
		CORSOrigins:        []string{"http://localhost:3000"},
		DatabasePath:       "./imagehost.db",
		Algorithm:          "HS256",
		AccessTokenTTL:     30 * time.Minute,
		WorkerCount:        runtime.NumCPU(),
		QueueSize:          256,
		JobTimeout:         30 * time.Second,
		DefaultQuality:     85,
		MaxUploadBytes:     20 << 20,
		MaxPixels:          DefaultMaxPixels,
		RateLimitPerMinute: 10,
		Storage:            StorageLocal,
		Local:              LocalConfig{RootDir: "uploads", Permissions: 0o644},
		S3:                 S3Config{UseSSL: true},
		Kafka:              KafkaConfig{Topic: "image-events"},
		LogLevel:           "info",
		LogFormat:          "json",
	}
}

// Load reads an optional .env file, overlays environment variables on
// Default() and validates the result.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using process environment")
	}
	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		return Config{}, err
	}
	return cfg, Validate(cfg)
}

// FromEnv builds a Config from Default() and the variables returned by
// getenv. Malformed numeric values are reported, empty ones are ignored.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Default()
	p := envParser{getenv: getenv}

	p.str("HTTP_ADDR", &cfg.HTTPAddr)
	p.list("CORS_ORIGINS", &cfg.CORSOrigins)
	p.str("DATABASE_PATH", &cfg.DatabasePath)

	p.str("SECRET_KEY", &cfg.SecretKey)
	p.str("ALGORITHM", &cfg.Algorithm)
	var ttlMinutes int
	if p.int("ACCESS_TOKEN_EXPIRE_MINUTES", &ttlMinutes) {
		cfg.AccessTokenTTL = time.Duration(ttlMinutes) * time.Minute
	}

	p.int("WORKER_COUNT", &cfg.WorkerCount)
	p.int("QUEUE_SIZE", &cfg.QueueSize)
	p.duration("JOB_TIMEOUT", &cfg.JobTimeout)
	p.int("DEFAULT_QUALITY", &cfg.DefaultQuality)
	p.int64("MAX_UPLOAD_BYTES", &cfg.MaxUploadBytes)
	p.int64("MAX_PIXELS", &cfg.MaxPixels)
	p.int("RATE_LIMIT_PER_MINUTE", &cfg.RateLimitPerMinute)

	var backend string
	if p.str("STORAGE_BACKEND", &backend) {
		cfg.Storage = StorageBackend(strings.ToLower(backend))
	}
	p.str("UPLOAD_DIR", &cfg.Local.RootDir)
	p.str("S3_BUCKET_NAME", &cfg.S3.Bucket)
	p.str("S3_REGION", &cfg.S3.Region)
	p.str("S3_ENDPOINT", &cfg.S3.Endpoint)
	p.str("S3_ACCESS_KEY", &cfg.S3.AccessKeyID)
	p.str("S3_SECRET_KEY", &cfg.S3.SecretAccessKey)
	p.bool("S3_USE_SSL", &cfg.S3.UseSSL)

	p.list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	p.str("KAFKA_TOPIC", &cfg.Kafka.Topic)

	p.str("LOG_LEVEL", &cfg.LogLevel)
	p.str("LOG_FORMAT", &cfg.LogFormat)

	if p.err != nil {
		return Config{}, apperrors.Wrap(apperrors.CategoryConfig, "config.env", p.err)
	}
	return cfg, nil
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	fail := func(format string, args ...any) error {
		return apperrors.Newf(apperrors.CategoryConfig, "config.validate", format, args...)
	}
	if c.SecretKey == "" {
		return fail("SECRET_KEY must be set")
	}
	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fail("unsupported ALGORITHM %q", c.Algorithm)
	}
	if c.AccessTokenTTL <= 0 {
		return fail("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.DefaultQuality < 1 || c.DefaultQuality > 95 {
		return fail("DEFAULT_QUALITY must be between 1 and 95")
	}
	if c.QueueSize <= 0 {
		return fail("QUEUE_SIZE must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return fail("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxPixels <= 0 {
		return fail("MAX_PIXELS must be positive")
	}
	if c.RateLimitPerMinute <= 0 {
		return fail("RATE_LIMIT_PER_MINUTE must be positive")
	}
	switch c.Storage {
	case StorageLocal:
		if c.Local.RootDir == "" {
			return fail("UPLOAD_DIR must be set for local storage")
		}
	case StorageS3:
		if c.S3.Bucket == "" || c.S3.Region == "" {
			return fail("S3_BUCKET_NAME and S3_REGION must be set for s3 storage")
		}
	default:
		return fail("unsupported STORAGE_BACKEND %q", c.Storage)
	}
	return nil
}

// envParser collects the first parse failure so FromEnv reads linearly.
type envParser struct {
	getenv func(string) string
	err    error
}

func (p *envParser) lookup(key string) (string, bool) {
	v := strings.TrimSpace(p.getenv(key))
	return v, v != ""
}

func (p *envParser) str(key string, dst *string) bool {
	v, ok := p.lookup(key)
	if ok {
		*dst = v
	}
	return ok
}

func (p *envParser) list(key string, dst *[]string) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func (p *envParser) int(key string, dst *int) bool {
	v, ok := p.lookup(key)
	if !ok {
		return false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, err)
		return false
	}
	*dst = n
	return true
}

func (p *envParser) int64(key string, dst *int64) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.fail(key, err)
		return
	}
	*dst = n
}

func (p *envParser) bool(key string, dst *bool) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, err)
		return
	}
	*dst = b
}

func (p *envParser) duration(key string, dst *time.Duration) {
	v, ok := p.lookup(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.fail(key, err)
		return
	}
	*dst = d
}

func (p *envParser) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: %w", key, err)
	}
}
