package http

import (
	"context"
	"net/http"
	"time"

	"roomrelay/internal/core/domain"
	"roomrelay/internal/core/ports"
	"roomrelay/internal/core/services"
	"roomrelay/pkg/cache"

	"github.com/gin-gonic/gin"
)

// recordingsCacheTTL bounds the staleness of the recording history
// endpoint between store round trips.
const recordingsCacheTTL = 5 * time.Second

// RoomHandler serves the admin/REST surface: room directory, recording
// history and join-token issuance. All realtime traffic goes through
// the websocket signal server instead.
type RoomHandler struct {
	rooms     ports.RoomService
	recording ports.RecordingService
	store     ports.MetadataStore
	tokens    *services.TokenService

	recordings *cache.CacheWithFallback

	// healthCheck probes the backing store; nil means no dependency to
	// check.
	healthCheck func(ctx context.Context) error
}

func NewRoomHandler(
	rooms ports.RoomService,
	recording ports.RecordingService,
	store ports.MetadataStore,
	tokens *services.TokenService,
	healthCheck func(ctx context.Context) error,
) *RoomHandler {
	return &RoomHandler{
		rooms:       rooms,
		recording:   recording,
		store:       store,
		tokens:      tokens,
		recordings:  cache.NewCacheWithFallback(recordingsCacheTTL),
		healthCheck: healthCheck,
	}
}

func (h *RoomHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/rooms", h.ListRooms)
		api.GET("/rooms/:id/recordings", h.ListRecordings)
		api.GET("/rooms/:id/recording", h.RecordingStatus)
		api.POST("/tokens", h.CreateToken)
	}
}

func (h *RoomHandler) Health(c *gin.Context) {
	if h.healthCheck != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.healthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	})
}

func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms := h.rooms.ListRooms(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"rooms": rooms,
		"count": len(rooms),
	})
}

func (h *RoomHandler) ListRecordings(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))

	cached, err := h.recordings.GetOrSet(c.Request.Context(), string(roomID),
		func(ctx context.Context) (interface{}, error) {
			return h.store.ListRecordings(ctx, roomID)
		}, recordingsCacheTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	recordings := cached.([]domain.RecordingMetadata)
	c.JSON(http.StatusOK, gin.H{
		"recordings": recordings,
		"count":      len(recordings),
	})
}

func (h *RoomHandler) RecordingStatus(c *gin.Context) {
	roomID := domain.RoomID(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{
		"roomId":    roomID,
		"recording": h.recording.IsRecording(roomID),
	})
}

func (h *RoomHandler) CreateToken(c *gin.Context) {
	var req struct {
		RoomID   domain.RoomID `json:"roomId" binding:"required"`
		Username string        `json:"username" binding:"required,min=1,max=64"`
		Recorder bool          `json:"recorder"`
	}

	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !h.tokens.Enabled() {
		c.JSON(http.StatusConflict, gin.H{"error": "token auth is not configured"})
		return
	}

	token, err := h.tokens.GenerateJoinToken(req.RoomID, req.Username, req.Recorder)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"token": token})
}
