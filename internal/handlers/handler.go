package handlers

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"reflow_oven/internal/events"
	"reflow_oven/internal/logger"
	"reflow_oven/internal/service"
)

// EventStream is the part of the bus the websocket feed needs.
type EventStream interface {
	Subscribe(queueSize int) *events.Listener
	SubscribeTopic(topic string, queueSize int) *events.Listener
	AddTopic(l *events.Listener, topic string)
	Unsubscribe(l *events.Listener)
}

// Handler wires HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	stream   EventStream
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies. stream may be nil,
// in which case /ws only carries periodic status.
func NewHandler(services *service.Service, stream EventStream, log *logger.Logger) *Handler {
	return &Handler{services: services, stream: stream, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", h.health)

	h.registerAuthRoutes(router)

	// Versioned API endpoints (protected)
	h.registerAPIRoutes(router)

	// Live status and bus events over WebSocket, same port
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.operatorIdMiddleware)
	{
		h.registerOvenRoutes(api)
		h.registerReflowRoutes(api)
		h.registerCalibrationRoutes(api)
		h.registerCatalogRoutes(api)
		h.registerEventRoutes(api)
	}
}

func (h *Handler) registerOvenRoutes(api *gin.RouterGroup) {
	oven := api.Group("/oven")
	{
		oven.GET("/status", h.getStatus)
		// Body example: {"target_temp_c":150}
		oven.POST("/target", h.setTarget)
		// Body example: {"percent":40}
		oven.POST("/door", h.setDoor)
		oven.POST("/stop", h.stopAll)
	}
}

func (h *Handler) registerReflowRoutes(api *gin.RouterGroup) {
	reflow := api.Group("/reflow")
	{
		reflow.POST("/start", h.startReflow)
		reflow.POST("/cancel", h.cancelReflow)
		reflow.POST("/reset", h.resetProcess)
	}
}

func (h *Handler) registerCalibrationRoutes(api *gin.RouterGroup) {
	cal := api.Group("/calibration")
	{
		cal.GET("", h.getCalibration)
		cal.GET("/profile", h.getProfile)
		cal.GET("/rates", h.getRates)
		cal.POST("/start/:mode", h.startCalibration)
		cal.POST("/stop", h.stopCalibration)
		cal.POST("/door/open", h.setDoorOpen)
		cal.POST("/door/closed", h.setDoorClosed)
		cal.POST("/door/raw", h.moveDoorRaw)
		cal.POST("/door/jog", h.jogDoor)
	}
}

func (h *Handler) registerCatalogRoutes(api *gin.RouterGroup) {
	api.GET("/curves", h.listCurves)
	api.GET("/curves/:name", h.getCurve)
	api.GET("/runs", h.listRuns)
	api.GET("/runs/:id", h.getRun)
}

func (h *Handler) registerEventRoutes(api *gin.RouterGroup) {
	api.GET("/events", h.getEvents)
}
