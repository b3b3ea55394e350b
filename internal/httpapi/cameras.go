package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/physical-mcp/engine/internal/core"
	"github.com/physical-mcp/engine/internal/mdns"
)

// handleListCameras serves GET /cameras: every registered camera (spec
// §4.11).
func (s *Server) handleListCameras(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.ListCameras())
}

type createCameraRequest struct {
	ID     string          `json:"id"`
	Name   string          `json:"name" binding:"required"`
	Kind   core.CameraKind `json:"kind" binding:"required"`
	URL    string          `json:"url" binding:"required"`
	Width  int             `json:"width"`
	Height int             `json:"height"`
	FPS    int             `json:"fps"`
}

// handleCreateCamera serves POST /cameras: registers and starts a new
// camera's capture + perception loop.
func (s *Server) handleCreateCamera(c *gin.Context) {
	var req createCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if req.ID == "" {
		req.ID = "cam_" + uuid.New().String()
	}

	cam := core.Camera{
		ID:        req.ID,
		Name:      req.Name,
		Kind:      req.Kind,
		URL:       req.URL,
		Width:     req.Width,
		Height:    req.Height,
		FPS:       req.FPS,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.engine.AddCamera(c.Request.Context(), cam); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cam)
}

type openCameraRequest struct {
	CameraID string `json:"camera_id" binding:"required"`
}

// handleOpenCamera serves POST /cameras/open: opens (starts perception
// for) a camera already present in the static configuration but not yet
// running, per spec §4.11's "open-on-demand".
func (s *Server) handleOpenCamera(c *gin.Context) {
	var req openCameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	if _, ok := s.engine.Camera(req.CameraID); ok {
		c.JSON(http.StatusOK, gin.H{"status": "already_open", "camera_id": req.CameraID})
		return
	}

	for _, cam := range s.cfg.Cameras {
		if cam.ID == req.CameraID {
			if err := s.engine.AddCamera(c.Request.Context(), cam); err != nil {
				writeError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"status": "opened", "camera_id": req.CameraID})
			return
		}
	}
	writeError(c, core.ErrCameraNotFound.WithCamera(req.CameraID))
}

// handleDiscoverCameras serves GET /cameras/discover: a short
// WS-Discovery LAN scan for ONVIF-capable devices (spec §4.11).
func (s *Server) handleDiscoverCameras(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	devices, err := mdns.Scan(ctx, 3*time.Second)
	if err != nil {
		writeError(c, core.Wrap(core.KindInvalidRequest, "LAN discovery failed", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": devices})
}
