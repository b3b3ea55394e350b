package httpapi

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/physical-mcp/engine/internal/core"
)

func cameraIDFromQuery(c *gin.Context) string {
	id := c.Query("camera_id")
	if id == "" {
		id = c.DefaultQuery("camera", "")
	}
	return id
}

// handleFrame serves GET /frame[?camera_id=]: the latest JPEG frame
// for one camera (spec §4.11).
func (s *Server) handleFrame(c *gin.Context) {
	cameraID := cameraIDFromQuery(c)
	buf, ok := s.engine.Buffer(cameraID)
	if !ok {
		writeError(c, core.ErrCameraNotFound.WithCamera(cameraID))
		return
	}
	frame, ok := buf.Latest()
	if !ok {
		writeError(c, core.New(core.KindCameraNotAvailable, "no frame captured yet").WithCamera(cameraID))
		return
	}
	c.Data(http.StatusOK, "image/jpeg", frame.Data)
}

const mjpegBoundary = "frame"

// handleStream serves GET /stream[?camera_id=]: a
// multipart/x-mixed-replace MJPEG stream, fed from the camera's frame
// buffer as new frames arrive (spec §4.11). Each request gets its own
// WaitForNew loop over the shared Buffer, so the same camera supports
// any number of concurrent viewers without extra fan-out machinery.
func (s *Server) handleStream(c *gin.Context) {
	cameraID := cameraIDFromQuery(c)
	buf, ok := s.engine.Buffer(cameraID)
	if !ok {
		writeError(c, core.ErrCameraNotFound.WithCamera(cameraID))
		return
	}

	c.Writer.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", mjpegBoundary))
	c.Writer.Header().Set("Cache-Control", "no-cache, no-store")
	c.Writer.Header().Set("Pragma", "no-cache")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	ctx := c.Request.Context()
	var lastSeq uint64
	if latest, ok := buf.Latest(); ok {
		if err := writeMJPEGPart(c.Writer, latest.Data); err != nil {
			return
		}
		lastSeq = latest.Sequence
		c.Writer.Flush()
	}

	for {
		frame, ok := buf.WaitForNew(ctx, lastSeq, 30*time.Second)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		lastSeq = frame.Sequence
		if err := writeMJPEGPart(c.Writer, frame.Data); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// writeMJPEGPart writes one multipart/x-mixed-replace part: a boundary
// line, Content-Type/Content-Length headers, a blank line, the JPEG
// bytes, and a trailing CRLF.
func writeMJPEGPart(w io.Writer, data []byte) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "--%s\r\n", mjpegBoundary)
	fmt.Fprintf(&buf, "Content-Type: image/jpeg\r\n")
	fmt.Fprintf(&buf, "Content-Length: %d\r\n\r\n", len(data))
	buf.Write(data)
	buf.WriteString("\r\n")
	_, err := w.Write(buf.Bytes())
	return err
}
