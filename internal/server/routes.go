package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/BioHazard786/watchparty/internal/config"
	"github.com/BioHazard786/watchparty/internal/logging"
	"github.com/BioHazard786/watchparty/internal/protocol"
	"github.com/BioHazard786/watchparty/internal/server/converter"
	"github.com/BioHazard786/watchparty/internal/signaling"
)

// NewRouter wires the relay's websocket endpoint and diagnostic routes.
func NewRouter(hub *signaling.Hub, cfg *config.Server, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	corsCfg := cors.DefaultConfig()
	if cfg.AllowAllOrigins() {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "HEAD", "OPTIONS"}
	router.Use(cors.New(corsCfg))

	ws := ServeWs(hub, newUpgrader(cfg), log)

	router.GET("/", func(ctx *gin.Context) {
		if websocket.IsWebSocketUpgrade(ctx.Request) {
			ws(ctx)
			return
		}
		ctx.JSON(http.StatusOK, converter.StatusToApi(hub.RoomCount(), hub.ConnectionCount(), time.Now()))
	})
	router.GET("/ws", ws)
	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	rooms := router.Group("/rooms")
	rooms.GET("", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, converter.RoomsToApi(hub.Rooms()))
	})
	rooms.GET("/:roomID", func(ctx *gin.Context) {
		detail, err := hub.Room(ctx.Param("roomID"))
		if err != nil {
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
			return
		}
		ctx.JSON(http.StatusOK, converter.RoomToApi(detail))
	})

	return router
}

// Configure the websocket upgrader
func newUpgrader(cfg *config.Server) *websocket.Upgrader {
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		allowed[o] = struct{}{}
	}
	allowAll := cfg.AllowAllOrigins()

	return &websocket.Upgrader{
		ReadBufferSize:  64 * 1024, // 64 KB
		WriteBufferSize: 64 * 1024, // 64 KB
		Subprotocols:    protocol.Subprotocols(),

		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Non-browser clients send no Origin.
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// ServeWs returns a handler that upgrades the request and hands the
// connection to the hub.
func ServeWs(hub *signaling.Hub, upgrader *websocket.Upgrader, log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
		if err != nil {
			log.Warn("failed to upgrade connection",
				slog.String("remote_addr", ctx.ClientIP()),
				logging.Err(err),
			)
			return
		}

		c := hub.Accept(conn, protocol.CodecFor(conn.Subprotocol()))
		log.Info("websocket connection accepted",
			slog.String("conn_id", c.ID()),
			slog.String("remote_addr", ctx.ClientIP()),
			slog.String("subprotocol", conn.Subprotocol()),
		)
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()

		log.Debug("http request",
			slog.String("method", ctx.Request.Method),
			slog.String("path", ctx.Request.URL.Path),
			slog.Int("status", ctx.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
