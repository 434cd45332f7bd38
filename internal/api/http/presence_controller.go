package http

import (
	"net/http"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

type PresenceController struct {
	presence service.PresenceInteractor
}

func NewPresenceController(presence service.PresenceInteractor) *PresenceController {
	return &PresenceController{presence: presence}
}

func (c *PresenceController) ListOnline(ctx *gin.Context) {
	records, err := c.presence.ListOnline(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"online": records, "count": len(records)})
}
