package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"gateway-service/internal/gateway"
)

// AdminHandler exposes read-only views over the gateway's registries for
// the dashboard. The provisioning API itself lives in another service.
type AdminHandler struct {
	gateway *gateway.Gateway
}

func NewAdminHandler(g *gateway.Gateway) *AdminHandler {
	return &AdminHandler{gateway: g}
}

// ListChannels returns every registered channel with its live subscriber
// count.
func (h *AdminHandler) ListChannels(c *gin.Context) {
	channels := h.gateway.Registry().List()
	views := make([]gin.H, 0, len(channels))
	for _, ch := range channels {
		views = append(views, gin.H{
			"name":        ch.Name,
			"description": ch.Description,
			"category":    ch.Category,
			"permissions": ch.Permissions,
			"subscribers": h.gateway.SubscriberCount(ch.Name),
			"active":      ch.Active,
		})
	}
	c.JSON(http.StatusOK, gin.H{"channels": views})
}

// Stats returns gateway throughput counters and connection totals.
func (h *AdminHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.Stats())
}

// RecentEvents returns the tail of the lifecycle event log.
func (h *AdminHandler) RecentEvents(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	c.JSON(http.StatusOK, gin.H{"events": h.gateway.Events().Recent(limit)})
}
