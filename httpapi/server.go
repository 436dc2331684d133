// Package httpapi exposes the services over HTTP with gin.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/Skryldev/image-host/service"
)

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Users       *service.Users
	Images      *service.Images
	Transformer *service.Transformer
	Limiter     *RateLimiter
	Logger      zerolog.Logger
	CORSOrigins []string

	// Health reports whether backing services are reachable.
	Health func(ctx context.Context) error
	// Metrics returns a JSON-serialisable snapshot for /metrics.
	Metrics func() any
}

// Server holds the handlers.
type Server struct {
	users       *service.Users
	images      *service.Images
	transformer *service.Transformer
	limiter     *RateLimiter
	log         zerolog.Logger
	health      func(ctx context.Context) error
	metrics     func() any
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) *gin.Engine {
	s := &Server{
		users:       d.Users,
		images:      d.Images,
		transformer: d.Transformer,
		limiter:     d.Limiter,
		log:         d.Logger,
		health:      d.Health,
		metrics:     d.Metrics,
	}

	r := gin.New()
	r.Use(accessLog(d.Logger))
	r.Use(gin.CustomRecovery(recovery(d.Logger)))
	if len(d.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     d.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", s.metricsSnapshot)

	r.POST("/register", s.register)
	r.POST("/login", s.login)

	images := r.Group("/images", s.authenticate())
	{
		images.POST("/upload", s.upload)
		images.POST("/transform", s.rateLimit(), s.transform)
		images.GET("", s.list)
		images.GET("/:id", s.getImage)
		images.GET("/:id/transformations", s.history)
		images.DELETE("/:id", s.deleteImage)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Not Found"})
	})
	return r
}

func (s *Server) healthz(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.log.Error().Err(err).Msg("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) metricsSnapshot(c *gin.Context) {
	if s.metrics == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, s.metrics())
}
