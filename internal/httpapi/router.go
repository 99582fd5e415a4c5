package httpapi

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/auth"
	"github.com/chatcluster/chat/internal/chat"
	"github.com/chatcluster/chat/internal/chatdb"
	"github.com/chatcluster/chat/internal/health"
	"github.com/chatcluster/chat/internal/logging"
	"github.com/chatcluster/chat/internal/middleware"
	"github.com/chatcluster/chat/internal/ratelimit"
)

// RouterConfig bundles everything NewRouter needs to wire the chat
// service's HTTP surface.
type RouterConfig struct {
	Store          *chatdb.Store
	Hub            *chat.Hub
	Validator      *auth.Validator
	HTTPLimiter    *ratelimit.HTTPLimiter
	Health         *health.Handler
	AllowedOrigins []string
	APIKeys        []string
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewRouter builds the gin engine. Middleware runs in the fixed order
// API-key gate, then rate limit, then JWT: the cheapest checks reject
// first so an unauthenticated flood never reaches token validation.
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CorrelationID())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", middleware.APIKeyHeader},
		AllowCredentials: true,
	}))

	r.GET("/health", cfg.Health.Liveness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandlers(cfg.Store, cfg.Hub)

	api := r.Group("/api")
	api.Use(middleware.APIKey(cfg.APIKeys))
	api.Use(cfg.HTTPLimiter.Middleware(ratelimit.RuleAPIDefault))
	api.Use(middleware.JWT(cfg.Validator))

	rooms := api.Group("/rooms")
	rooms.POST("", h.CreateRoom)
	rooms.POST("/direct", h.CreateDirectRoom)
	rooms.GET("", h.ListRooms)
	rooms.GET("/:id", h.GetRoom)
	rooms.GET("/:id/messages", h.ListMessages)
	rooms.POST("/:id/leave", h.LeaveRoom)
	rooms.POST("/:id/hide", h.HideRoom)
	rooms.POST("/:id/mark-read", h.MarkRoomRead)

	invitations := api.Group("/invitations")
	invitations.GET("", h.ListInvitations)
	invitations.POST("/:id/accept", h.AcceptInvitation)
	invitations.POST("/:id/decline", h.DeclineInvitation)

	ws := r.Group("/api/ws")
	ws.Use(middleware.APIKey(cfg.APIKeys))
	ws.Use(middleware.JWT(cfg.Validator))
	ws.GET("", newWebSocketHandler(cfg.Store, cfg.Hub))

	return r
}

func newWebSocketHandler(store *chatdb.Store, hub *chat.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := ""
		if v, ok := c.Get("user_id"); ok {
			userID, _ = v.(string)
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
			return
		}

		session := chat.NewSession(uuid.NewString(), userID, conn, hub, store)
		session.Run(c.Request.Context())
	}
}
