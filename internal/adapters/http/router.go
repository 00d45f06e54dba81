// Package http wires the gin router: static UI, session REST and the
// WebSocket upgrade endpoint.
package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/syncsound/syncsound/internal/adapters/signal"
	"github.com/syncsound/syncsound/internal/app"
	"github.com/syncsound/syncsound/internal/config"
	"github.com/syncsound/syncsound/internal/core"
)

// ClientTokenMiddleware hands every browser a stable token that stands
// in for an authenticated user id. Real credential auth is an external
// collaborator; this core only needs a consistent userRef.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator, store core.Store) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("SyncSound", cookieStore))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// ICE config for mesh clients: the configured STUN list, so browsers
	// never hardcode server URLs.
	api.GET("/ice", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"stunServers": cfg.STUNServers})
	})

	registerSessionRoutes(api, store)
	registerProfileRoutes(api)

	ctl := signal.NewController(orch, cfg)
	api.GET("/ws", func(c *gin.Context) {
		ctl.Handle(ctx, c)
	})

	return r
}
