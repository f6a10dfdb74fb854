// Package server exposes the HTTP surface: ingestion, queries, stats, the
// live event stream, and the operational endpoints.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freightwatch/doomfeed/internal/broadcast"
	"github.com/freightwatch/doomfeed/internal/config"
	"github.com/freightwatch/doomfeed/internal/event"
	"github.com/freightwatch/doomfeed/internal/event/domain"
	eventservice "github.com/freightwatch/doomfeed/internal/event/service"
	"github.com/freightwatch/doomfeed/internal/observability"
	obsmiddleware "github.com/freightwatch/doomfeed/internal/observability/logger"
	"github.com/freightwatch/doomfeed/internal/subscriber"
	"github.com/freightwatch/doomfeed/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	db.Module,
	broadcast.Module,
	event.Module,
	subscriber.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config) *gin.Engine {
	return NewEngine(obsCfg)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine   *gin.Engine
	cfg      config.Config
	eventSvc domain.Service
	repo     domain.Repository
	channel  eventservice.ChannelPinger
	live     *broadcast.Hub
}

type ServerParams struct {
	fx.In

	Gin      *gin.Engine
	Cfg      config.Config
	EventSvc domain.Service
	Repo     domain.Repository
	Channel  eventservice.ChannelPinger
	Live     *broadcast.Hub `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:   p.Gin,
		cfg:      p.Cfg,
		eventSvc: p.EventSvc,
		repo:     p.Repo,
		channel:  p.Channel,
		live:     p.Live,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.Health)

	api := s.engine.Group("/api")
	{
		api.POST("/events", s.IngestEvent)
		api.GET("/events", s.ListEvents)
		api.GET("/stats", s.Stats)
		api.GET("/stream", s.StreamEvents)
	}
}
