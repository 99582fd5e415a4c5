// Package health serves the chat service's liveness endpoint.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chatcluster/chat/internal/bus"
	"github.com/chatcluster/chat/internal/logging"
)

// ServiceVersion is stamped at build time in a real deployment; here it
// defaults to "dev" and can be overridden by the binary's main package.
var ServiceVersion = "dev"

// ConnectionCounter reports the current number of locally-connected
// WebSocket sessions. The Hub implements this.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Handler serves GET /health.
type Handler struct {
	bus          *bus.Service
	connections  ConnectionCounter
	instanceName string
}

// NewHandler builds a health handler. connections may be nil before the Hub
// has started; the connection count then reports 0.
func NewHandler(busService *bus.Service, connections ConnectionCounter, instanceName string) *Handler {
	return &Handler{
		bus:          busService,
		connections:  connections,
		instanceName: instanceName,
	}
}

// Response is the body returned by GET /health.
type Response struct {
	Status      string `json:"status"`
	DBStatus    string `json:"db_status"`
	Connections int    `json:"ws_connections"`
	Instance    string `json:"instance"`
	Version     string `json:"version"`
	Timestamp   string `json:"timestamp"`
}

// Liveness handles GET /health: it reports dependency status but never
// fails the HTTP call itself, since a transient Redis hiccup should not
// take the whole instance out of rotation by itself.
func (h *Handler) Liveness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if err := h.bus.Ping(ctx); err != nil {
		logging.Error(ctx, "redis health check failed", zap.Error(err))
		dbStatus = "unhealthy"
	}

	count := 0
	if h.connections != nil {
		count = h.connections.ConnectionCount()
	}

	c.JSON(http.StatusOK, Response{
		Status:      "alive",
		DBStatus:    dbStatus,
		Connections: count,
		Instance:    h.instanceName,
		Version:     ServiceVersion,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}
