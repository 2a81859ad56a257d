package handlers

import (
	"github.com/gin-gonic/gin"

	"gateway-service/internal/gateway"
)

type WSHandler struct {
	gateway *gateway.Gateway
}

func NewWSHandler(g *gateway.Gateway) *WSHandler {
	return &WSHandler{gateway: g}
}

// HandleWebSocket upgrades the request and hands the session to the gateway.
// Authentication happens inside the gateway handshake so that rejected
// clients receive a websocket close code they can branch on, not an HTTP
// status.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	h.gateway.ServeWS(c.Writer, c.Request)
}
