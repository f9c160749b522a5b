package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Broadcast/internal/adapters/signal"
	"github.com/dkeye/Broadcast/internal/app"
	"github.com/dkeye/Broadcast/internal/config"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Snapshotter is the read side of app.Hub.
type Snapshotter interface {
	Snapshot(ctx context.Context) (app.Snapshot, error)
}

type profileRequest struct {
	Name string `json:"name" binding:"required,max=36"`
}

func SetupRouter(ctx context.Context, cfg *config.Config, hub *app.Hub) *gin.Engine {
	ctrl := signal.NewSignalWSController(hub, signal.Options{
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		WriteWait:    cfg.WriteWait,
		SendBuffer:   cfg.SendBuffer,
		RateLimit:    cfg.RateLimit,
		RateInterval: cfg.RateInterval,
	})
	return newEngine(ctx, cfg, hub, ctrl)
}

func newEngine(ctx context.Context, cfg *config.Config, snap Snapshotter, ctrl *signal.SignalWSController) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("BroadcastSessions", store))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"response": "OK"})
	})

	api := r.Group("/api")

	api.GET("/participants", func(c *gin.Context) {
		s, err := snap.Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s)
	})

	api.PUT("/profile", func(c *gin.Context) {
		var req profileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid name"})
			return
		}
		session := sessions.Default(c)
		session.Set(signal.SessionNameKey, req.Name)
		if err := session.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("save session")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"name": req.Name})
	})

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("remote", c.ClientIP()).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
