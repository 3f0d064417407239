package http

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"camward/internal/core/domain"
	"camward/internal/core/ports"
	"camward/internal/infrastructure/signal"

	"github.com/gin-gonic/gin"
)

type StreamHandler struct {
	supervisor ports.Supervisor
	catalog    ports.RecordingCatalog
	hub        *signal.FrameHub

	// frameInterval paces the MJPEG endpoint, normally 1/frame-rate.
	frameInterval time.Duration
}

func NewStreamHandler(
	supervisor ports.Supervisor,
	catalog ports.RecordingCatalog,
	hub *signal.FrameHub,
	frameInterval time.Duration,
) *StreamHandler {
	if frameInterval <= 0 {
		frameInterval = time.Second
	}
	return &StreamHandler{
		supervisor:    supervisor,
		catalog:       catalog,
		hub:           hub,
		frameInterval: frameInterval,
	}
}

// SetupRoutes mounts the API. requireAuth, when non-nil, guards the
// mutating routes; reads stay open.
func (h *StreamHandler) SetupRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	api := router.Group("/api/v1")

	mutating := api.Group("")
	if requireAuth != nil {
		mutating.Use(requireAuth)
	}
	{
		mutating.POST("/stream/start", h.StartStream)
		mutating.POST("/stream/stop", h.StopStream)
		mutating.POST("/recording/start", h.StartRecording)
		mutating.POST("/recording/stop", h.StopRecording)
	}

	api.GET("/stream/status", h.StreamStatus)
	api.GET("/stream/frame", h.CurrentFrame)
	api.GET("/stream/live", h.LiveStream)
	api.GET("/recordings", h.ListRecordings)

	if h.hub != nil {
		router.GET("/ws/frames", h.FrameSocket)
	}
}

func (h *StreamHandler) StartStream(c *gin.Context) {
	if err := h.supervisor.Start(c.Request.Context()); err != nil {
		if errors.Is(err, domain.ErrAlreadyStreaming) {
			c.JSON(http.StatusConflict, gin.H{
				"status":  "error",
				"message": "stream already running",
			})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "stream started",
	})
}

func (h *StreamHandler) StopStream(c *gin.Context) {
	if err := h.supervisor.Stop(); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "stream stopped",
	})
}

func (h *StreamHandler) StreamStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.supervisor.Status())
}

func (h *StreamHandler) CurrentFrame(c *gin.Context) {
	frame, err := h.supervisor.CurrentFrame()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no recent frame"})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", frame.Data)
}

// LiveStream serves MJPEG until the client disconnects or the stream
// stops. Frames are paced at the capture-rate cadence and deduplicated
// by sequence.
func (h *StreamHandler) LiveStream(c *gin.Context) {
	if h.supervisor.Phase() != domain.PhaseRunning {
		c.JSON(http.StatusConflict, gin.H{
			"status":  "error",
			"message": "stream not running",
		})
		return
	}

	c.Writer.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ticker := time.NewTicker(h.frameInterval)
	defer ticker.Stop()

	var lastSequence uint64
	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			if h.supervisor.Phase() != domain.PhaseRunning {
				return
			}
			frame, err := h.supervisor.CurrentFrame()
			if err != nil || frame.Sequence == lastSequence {
				continue
			}
			lastSequence = frame.Sequence

			if _, err := fmt.Fprintf(c.Writer,
				"--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(frame.Data)); err != nil {
				return
			}
			if _, err := c.Writer.Write(frame.Data); err != nil {
				return
			}
			if _, err := fmt.Fprint(c.Writer, "\r\n"); err != nil {
				return
			}
			c.Writer.Flush()
		}
	}
}

func (h *StreamHandler) StartRecording(c *gin.Context) {
	if err := h.supervisor.StartRecording(c.Request.Context()); err != nil {
		switch {
		case errors.Is(err, domain.ErrNotStreaming):
			c.JSON(http.StatusConflict, gin.H{
				"status":  "error",
				"message": "stream not running",
			})
		case errors.Is(err, domain.ErrAlreadyRecording):
			c.JSON(http.StatusConflict, gin.H{
				"status":  "error",
				"message": "recording already running",
			})
		default:
			c.Error(err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "recording started",
	})
}

func (h *StreamHandler) StopRecording(c *gin.Context) {
	if err := h.supervisor.StopRecording(); err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"message": "recording stopped",
	})
}

func (h *StreamHandler) ListRecordings(c *gin.Context) {
	recordings, err := h.catalog.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"count":      len(recordings),
		"recordings": recordings,
	})
}

func (h *StreamHandler) FrameSocket(c *gin.Context) {
	h.hub.HandleFrames(c.Writer, c.Request)
}
