package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(socketController *SocketController, presenceController *PresenceController, wraithController *WraithController) *gin.Engine {
	router := gin.Default()

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = []string{
		"Authorization",
		"Content-Type",
		"Origin",
		"Accept",
	}
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	router.Use(cors.New(config))

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	router.GET("/ws", socketController.Handshake)

	api := router.Group("/api")

	if presenceController != nil {
		api.GET("/presence/online", presenceController.ListOnline)
	}

	if wraithController != nil {
		api.GET("/wraith/state", wraithController.GetState)
		api.POST("/wraith/reset", wraithController.Reset)
	}

	return router
}
