package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/ridemate/service-dispatch/internal/auth"
	"github.com/ridemate/service-dispatch/internal/middleware"
	"github.com/ridemate/service-dispatch/internal/realtime"
	"go.uber.org/zap"
)

// RealtimeHandler upgrades authenticated clients onto the realtime hub.
type RealtimeHandler struct {
	hub    *realtime.Hub
	logger *zap.Logger
}

// NewRealtimeHandler creates a new RealtimeHandler.
func NewRealtimeHandler(hub *realtime.Hub, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{hub: hub, logger: logger}
}

// RegisterRoutes registers the websocket endpoint.
func (h *RealtimeHandler) RegisterRoutes(r *gin.RouterGroup, jwtManager *auth.JWTManager) {
	r.GET("/api/v1/ws", middleware.AuthMiddleware(jwtManager), h.Connect)
}

// Connect handles GET /api/v1/ws. The token may be passed as ?access_token=.
func (h *RealtimeHandler) Connect(c *gin.Context) {
	userID, ok := actor(c)
	if !ok {
		return
	}
	// Serve writes its own error response when the upgrade fails.
	if err := h.hub.Serve(c.Writer, c.Request, userID); err != nil {
		h.logger.Debug("realtime connection ended", zap.String("user_id", userID.String()), zap.Error(err))
	}
}
