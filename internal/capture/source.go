package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/url"
	"os/exec"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/physical-mcp/engine/internal/core"
)

// Options configures a Source's timing (spec §4.1 defaults).
type Options struct {
	OpenTimeout      time.Duration
	StalenessWindow  time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	ResetAfterOKs    int
	FPS              int
}

// DefaultOptions matches spec.md §4.1's stated defaults.
func DefaultOptions() Options {
	return Options{
		OpenTimeout:     20 * time.Second,
		StalenessWindow: 10 * time.Second,
		InitialBackoff:  2 * time.Second,
		MaxBackoff:      30 * time.Second,
		ResetAfterOKs:   3,
		FPS:             2,
	}
}

// Source produces frames for one camera in the background, feeding a
// Buffer, and auto-reconnects on failure with exponential backoff (spec
// §4.1). Grounded on other_examples' marcopennelli-orbo MJPEG stream
// manager, which drives USB/RTSP/HTTP capture through an ffmpeg
// subprocess and scans its stdout for JPEG frame boundaries — the same
// approach used here, generalized with the reconnect/backoff/staleness
// contract spec.md requires and that the reference lacks.
type Source struct {
	camera core.Camera
	buf    *Buffer
	opts   Options
	log    zerolog.Logger

	seq    atomic.Uint64
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewSource builds a capture source for cam, pushing frames into buf.
func NewSource(cam core.Camera, buf *Buffer, opts Options, log zerolog.Logger) *Source {
	return &Source{
		camera: cam,
		buf:    buf,
		opts:   opts,
		log:    log.With().Str("camera_id", cam.ID).Logger(),
	}
}

// Open starts background capture and blocks until the first frame arrives
// or the open timeout elapses.
func (s *Source) Open(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.runLoop(runCtx)

	openCtx, openCancel := context.WithTimeout(ctx, s.opts.OpenTimeout)
	defer openCancel()

	if _, ok := s.buf.WaitForNew(openCtx, 0, s.opts.OpenTimeout); !ok {
		if openCtx.Err() != nil {
			return core.New(core.KindCameraOpenTimeout, fmt.Sprintf("camera %s did not produce a frame within %s", s.camera.ID, s.opts.OpenTimeout))
		}
		return core.New(core.KindCameraNotAvailable, fmt.Sprintf("camera %s unavailable", s.camera.ID))
	}
	return nil
}

// GrabFrame returns the most recent frame, failing with camera_disconnected
// if it is older than the staleness window.
func (s *Source) GrabFrame() (core.Frame, error) {
	f, ok := s.buf.Latest()
	if !ok {
		return core.Frame{}, core.New(core.KindCameraNotAvailable, "no frame produced yet").WithCamera(s.camera.ID)
	}
	if time.Since(f.Timestamp) > s.opts.StalenessWindow {
		return core.Frame{}, core.New(core.KindCameraDisconnected, "latest frame is stale").WithCamera(s.camera.ID)
	}
	return f, nil
}

// Close stops capture and releases the underlying process.
func (s *Source) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if s.done != nil {
		<-s.done
	}
	return nil
}

func (s *Source) runLoop(ctx context.Context) {
	defer close(s.done)

	backoff := s.opts.InitialBackoff
	consecutiveOK := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := s.captureOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			consecutiveOK = 0
			s.log.Warn().Err(err).Dur("backoff", backoff).Str("url", maskCredentials(s.camera.URL)).Msg("capture stream ended, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > s.opts.MaxBackoff {
				backoff = s.opts.MaxBackoff
			}
			continue
		}

		consecutiveOK++
		if consecutiveOK >= s.opts.ResetAfterOKs {
			backoff = s.opts.InitialBackoff
		}
	}
}

// captureOnce runs a single ffmpeg subprocess until it exits or ctx is
// cancelled, pushing each decoded JPEG frame into the buffer.
func (s *Source) captureOnce(ctx context.Context) error {
	args := ffmpegArgs(s.camera, s.opts.FPS)

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return core.Wrap(core.KindCameraNotAvailable, "creating capture stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return core.Wrap(core.KindCameraNotAvailable, "creating capture stderr pipe", err)
	}
	if err := cmd.Start(); err != nil {
		return core.Wrap(core.KindCameraNotAvailable, "starting capture process", err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	go drainSilently(stderr)

	width, height := s.camera.Width, s.camera.Height
	if width == 0 {
		width = 1280
	}
	if height == 0 {
		height = 720
	}

	scanErr := scanJPEGFrames(stdout, func(data []byte) {
		seq := s.seq.Add(1)
		s.buf.Push(core.Frame{
			CameraID:  s.camera.ID,
			Data:      data,
			Width:     width,
			Height:    height,
			Sequence:  seq,
			Timestamp: time.Now().UTC(),
		})
	})

	waitErr := cmd.Wait()
	if scanErr != nil && scanErr != io.EOF {
		return core.Wrap(core.KindCameraDisconnected, "reading capture stream", scanErr)
	}
	if waitErr != nil && ctx.Err() == nil {
		return core.Wrap(core.KindCameraDisconnected, "capture process exited", waitErr)
	}
	return nil
}

func drainSilently(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		// intentionally discarded; ffmpeg's stderr is progress chatter
	}
}

// ffmpegArgs builds the capture command line for a camera's kind. RTSP
// sources pin TCP transport per spec §4.1.
func ffmpegArgs(cam core.Camera, fps int) []string {
	if fps <= 0 {
		fps = 2
	}
	switch cam.Kind {
	case core.CameraKindRTSP:
		return []string{
			"-rtsp_transport", "tcp",
			"-i", cam.URL,
			"-f", "image2pipe", "-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", fps),
			"-q:v", "5", "-",
		}
	case core.CameraKindHTTP:
		return []string{
			"-i", cam.URL,
			"-f", "image2pipe", "-vcodec", "mjpeg",
			"-r", fmt.Sprintf("%d", fps),
			"-q:v", "5", "-",
		}
	default: // usb
		return []string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", cam.Width, cam.Height),
			"-framerate", fmt.Sprintf("%d", fps),
			"-i", cam.URL,
			"-f", "image2pipe", "-vcodec", "mjpeg",
			"-q:v", "5", "-",
		}
	}
}

// scanJPEGFrames reads r and calls emit for each complete JPEG frame found
// (0xFFD8 .. 0xFFD9), grounded on other_examples' marcopennelli-orbo
// extractJPEGFrame scanner.
func scanJPEGFrames(r io.Reader, emit func([]byte)) error {
	buf := make([]byte, 0, 1<<20)
	chunk := make([]byte, 8192)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				frame, rest, ok := extractJPEGFrame(buf)
				if !ok {
					break
				}
				emit(frame)
				buf = rest
			}
		}
		if err != nil {
			return err
		}
	}
}

func extractJPEGFrame(buf []byte) (frame []byte, rest []byte, ok bool) {
	start := -1
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD8 {
			start = i
			break
		}
	}
	if start == -1 {
		return nil, buf, false
	}
	end := -1
	for i := start + 2; i+1 < len(buf); i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD9 {
			end = i + 2
			break
		}
	}
	if end == -1 {
		return nil, buf, false
	}
	out := make([]byte, end-start)
	copy(out, buf[start:end])
	return out, buf[end:], true
}

var credentialPattern = regexp.MustCompile(`://[^/@]+@`)

// maskCredentials redacts user:pass@ segments from a camera URL before it
// reaches a log line (spec §4.1).
func maskCredentials(raw string) string {
	if u, err := url.Parse(raw); err == nil && u.User != nil {
		u.User = url.User("***")
		return u.String()
	}
	return credentialPattern.ReplaceAllString(raw, "://***@")
}
