package http

import (
	"net/http"

	"github.com/AtharvaKatiyar/WRAITHNET-sub000/internal/service"
	"github.com/gin-gonic/gin"
)

// WraithController exposes read and reset access to the mood engine for
// operators and the bulletin-board front end.
type WraithController struct {
	wraith service.WraithInteractor
}

func NewWraithController(wraith service.WraithInteractor) *WraithController {
	return &WraithController{wraith: wraith}
}

func (c *WraithController) GetState(ctx *gin.Context) {
	state, err := c.wraith.State(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"state": state})
}

func (c *WraithController) Reset(ctx *gin.Context) {
	state, err := c.wraith.Reset(ctx.Request.Context())
	if err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"state": state})
}
