// Package imagehost wires the image hosting service together: storage,
// persistence, the raster worker pool and the HTTP API.
package imagehost

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Skryldev/image-host/adapters/decoder"
	"github.com/Skryldev/image-host/adapters/encoder"
	"github.com/Skryldev/image-host/adapters/kafka"
	"github.com/Skryldev/image-host/adapters/sqlite"
	"github.com/Skryldev/image-host/adapters/storage"
	"github.com/Skryldev/image-host/adapters/vips"
	"github.com/Skryldev/image-host/auth"
	"github.com/Skryldev/image-host/config"
	"github.com/Skryldev/image-host/core"
	"github.com/Skryldev/image-host/hooks"
	"github.com/Skryldev/image-host/httpapi"
	"github.com/Skryldev/image-host/service"
)

// App is a fully wired service. Create it with New and release it with Close.
type App struct {
	db        *sql.DB
	processor *core.Processor
	events    core.EventPublisher
	metrics   *hooks.InMemoryMetrics
	handler   http.Handler
	stopVips  func()
}

// PoolStats are the worker pool counters reported on /metrics.
type PoolStats struct {
	Processed  int64 `json:"processed"`
	Errors     int64 `json:"errors"`
	InFlight   int64 `json:"in_flight"`
	QueueDepth int   `json:"queue_depth"`
}

// Metrics is the /metrics payload.
type Metrics struct {
	Pipeline hooks.MetricsSnapshot `json:"pipeline"`
	Pool     PoolStats             `json:"pool"`
}

// NewLogger builds the process logger from cfg.LogLevel and cfg.LogFormat.
func NewLogger(cfg config.Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if strings.EqualFold(cfg.LogFormat, "console") {
		w = zerolog.ConsoleWriter{Out: w}
	}
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "image-host").Logger()
}

// New validates cfg and builds every component. The storage backend, codec
// registry and worker pool are created once here and shared by all requests.
func New(ctx context.Context, cfg config.Config, log zerolog.Logger) (*App, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokens(cfg.SecretKey, cfg.Algorithm, cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	store, err := storage.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}

	logger := hooks.NewZerologLogger(log)

	reg := core.NewRegistry()
	decoder.Register(reg, cfg.MaxPixels)
	encoder.Register(reg, cfg.DefaultQuality)
	stopVips, withVips := vips.Enable(reg, cfg.DefaultQuality, cfg.WorkerCount, cfg.MaxPixels)
	log.Info().
		Bool("webp_output", withVips).
		Interface("output_formats", reg.EncodableFormats()).
		Str("storage", string(cfg.Storage)).
		Msg("codecs registered")

	proc := core.New(cfg)
	proc.SetLogger(logger)
	proc.Start()

	metrics := hooks.NewInMemoryMetrics()
	events := kafka.New(cfg.Kafka)

	users := sqlite.NewUserRepository(db)
	images := sqlite.NewImageRepository(db)
	ledger := sqlite.NewLedger(db)

	app := &App{
		db:        db,
		processor: proc,
		events:    events,
		metrics:   metrics,
		stopVips:  stopVips,
	}

	app.handler = httpapi.NewRouter(httpapi.Deps{
		Users: service.NewUsers(users, tokens, logger),
		Images: service.NewImages(service.ImagesDeps{
			Images:         images,
			Users:          users,
			Ledger:         ledger,
			Storage:        store,
			Registry:       reg,
			Events:         events,
			Logger:         logger,
			MaxUploadBytes: cfg.MaxUploadBytes,
		}),
		Transformer: service.NewTransformer(service.TransformerDeps{
			Images:    images,
			Ledger:    ledger,
			Storage:   store,
			Registry:  reg,
			Runner:    proc,
			Events:    events,
			Logger:    logger,
			Hooks:     []core.Hook{hooks.NewLoggingHook(logger), hooks.NewMetricsHook(metrics)},
			MaxPixels: cfg.MaxPixels,
		}),
		Limiter:     httpapi.NewRateLimiter(cfg.RateLimitPerMinute),
		Logger:      log,
		CORSOrigins: cfg.CORSOrigins,
		Health:      db.PingContext,
		Metrics:     func() any { return app.Metrics() },
	})
	return app, nil
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler { return a.handler }

// Metrics returns the current pipeline and pool counters.
func (a *App) Metrics() Metrics {
	return Metrics{
		Pipeline: a.metrics.Snapshot(),
		Pool: PoolStats{
			Processed:  a.processor.ProcessedCount(),
			Errors:     a.processor.ErrorCount(),
			InFlight:   a.processor.InFlight(),
			QueueDepth: a.processor.QueueDepth(),
		},
	}
}

// Close stops the worker pool and releases every connection.
func (a *App) Close() error {
	a.processor.Stop()
	a.stopVips()
	return errors.Join(a.events.Close(), a.db.Close())
}
