package http

import (
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/session"
)

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Hub      *core.Hub
	History  HistoryAdmin
	Sessions *session.Handler
	JWT      *auth.JWTConfig
	// MaxFrame bounds a single WebSocket message.
	MaxFrame int
}

// NewRouter builds the gin engine with every route.
func NewRouter(deps Deps, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/ws", NewWSHandler(deps.Sessions, deps.MaxFrame, logger))

	api := NewAPIHandlers(deps.Hub, deps.History, logger)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/rooms", api.ListRooms)
		apiGroup.GET("/users", api.ListUsers)

		admin := apiGroup.Group("/admin")
		admin.Use(OperatorMiddleware(deps.JWT, logger))
		{
			admin.GET("/history", api.GetHistory)
			admin.DELETE("/history", api.ClearHistory)
		}
	}

	return router
}

// NewServer wraps the router in an http.Server bound to addr.
func NewServer(addr string, readHeaderTimeout time.Duration, deps Deps, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              addr,
		Handler:           NewRouter(deps, logger),
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
