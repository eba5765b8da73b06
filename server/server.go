// Package server is the HTTP surface: the ingress webhook for pushed
// orders and the operator dashboard with its JSON API.
package server

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"packchicken-service/config"
	"packchicken-service/workers/fulfillment"
	"packchicken-service/workers/fulfillment/repositories"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed templates/*.html
var templates embed.FS

// Runner is the fulfillment pipeline as seen by the dashboard.
type Runner interface {
	Run(ctx context.Context, opts fulfillment.RunOptions) (*fulfillment.RunReport, error)
}

type Deps struct {
	Intake *fulfillment.Intake
	Runner Runner
	// RunnerErr explains why Runner is nil.
	RunnerErr error
}

type Server struct {
	logger    *zap.Logger
	cfg       *config.Config
	jobs      *repositories.JobRepository
	emails    *repositories.ProcessedEmailRepository
	intake    *fulfillment.Intake
	runner    Runner
	runnerErr error
}

func New(cfg *config.Config, logger *zap.Logger, db *gorm.DB, deps Deps) *Server {
	return &Server{
		logger:    logger,
		cfg:       cfg,
		jobs:      repositories.NewJobRepository(db),
		emails:    repositories.NewProcessedEmailRepository(db),
		intake:    deps.Intake,
		runner:    deps.Runner,
		runnerErr: deps.RunnerErr,
	}
}

func (s *Server) Router() *gin.Engine {
	if s.cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(requestLogger(s.logger))
	r.Use(gin.Recovery())
	if c, ok := s.corsConfig(); ok {
		r.Use(cors.New(c))
	}

	r.SetHTMLTemplate(template.Must(template.ParseFS(templates, "templates/*.html")))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/", s.dashboard)
	r.POST("/inbox/email-order", s.ingestOrder)

	api := r.Group("/api")
	api.GET("/jobs", s.listJobs)
	api.POST("/upload", s.uploadOrders)
	api.POST("/process", s.process)

	r.GET("/labels/:name", s.serveLabel)
	r.NoRoute(func(c *gin.Context) {
		errorJSON(c, http.StatusNotFound, "not found")
	})
	return r
}

// corsConfig allows the configured origins. Without a list every origin is
// allowed outside production and none in production.
func (s *Server) corsConfig() (cors.Config, bool) {
	c := cors.DefaultConfig()
	switch {
	case len(s.cfg.CORSOrigins) > 0:
		c.AllowOrigins = s.cfg.CORSOrigins
	case s.cfg.Env != "production":
		c.AllowAllOrigins = true
	default:
		return c, false
	}
	c.AddAllowHeaders("Authorization")
	c.AddExposeHeaders("Content-Length")
	return c, true
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error("HTTP request failed", fields...)
			return
		}
		logger.Debug("HTTP request", fields...)
	}
}

func errorJSON(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"ok": false, "error": msg})
}
