package http

import (
	"github.com/gin-gonic/gin"

	"imgclass/internal/bootstrap"
	"imgclass/internal/transport/http/handler"
	"imgclass/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.AccessLog(app.Logger, app.Metrics), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/health", healthHandler.Check)
	router.GET("/ready", healthHandler.Ready)

	predictHandler := handler.NewPredictHandler(app.Predictions, app.Config.App.MaxUploadBytes, app.Logger)
	router.POST("/predict", predictHandler.Predict)

	if app.Config.Metrics.Enabled && app.Metrics != nil {
		router.GET("/metrics", gin.WrapH(app.Metrics.Handler()))
	}

	return router
}
