// Package httpapi implements the secondary HTTP surface (C11) described
// in spec.md §4.11: live MJPEG/frame endpoints, scene state, camera and
// rule CRUD, alert replay, and the change feed. Routing follows the
// teacher's cmd/server/main.go + internal/api/handlers.go gin texture
// (gin.H JSON responses, explicit status codes, a CORS middleware
// closure, graceful shutdown via http.Server.Shutdown) generalized from
// the teacher's flat camera/event/alert handler set to this spec's
// endpoint list.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/physical-mcp/engine/internal/alertlog"
	"github.com/physical-mcp/engine/internal/config"
	"github.com/physical-mcp/engine/internal/perception"
	"github.com/physical-mcp/engine/internal/rules"
	"github.com/physical-mcp/engine/internal/scene"
	"github.com/physical-mcp/engine/internal/stats"
	"github.com/physical-mcp/engine/internal/wshub"
)

// Server bundles the HTTP surface's dependencies and owns the
// underlying http.Server.
type Server struct {
	cfg        *config.Config
	engine     *perception.Engine
	rulesStore *rules.Store
	sceneStore *scene.Store
	alertLog   *alertlog.Log
	tracker    *stats.Tracker
	memory     *stats.MemoryStore
	hub        *wshub.Hub
	log        zerolog.Logger

	httpServer *http.Server
}

// New builds a Server wired to the engine's shared stores.
func New(cfg *config.Config, engine *perception.Engine, rulesStore *rules.Store, sceneStore *scene.Store, alertLog *alertlog.Log, tracker *stats.Tracker, memory *stats.MemoryStore, hub *wshub.Hub, log zerolog.Logger) *Server {
	return &Server{
		cfg:        cfg,
		engine:     engine,
		rulesStore: rulesStore,
		sceneStore: sceneStore,
		alertLog:   alertLog,
		tracker:    tracker,
		memory:     memory,
		hub:        hub,
		log:        log,
	}
}

// Router builds the gin engine with every route spec.md §4.11 names.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(corsMiddleware())

	auth := s.authMiddleware()

	r.GET("/health", s.handleHealth)

	r.GET("/frame", auth, s.handleFrame)
	r.GET("/stream", auth, s.handleStream)
	r.GET("/scene", s.handleScene)
	r.GET("/ws", s.handleWS)

	r.GET("/cameras", s.handleListCameras)
	r.POST("/cameras", auth, s.handleCreateCamera)
	r.POST("/cameras/open", auth, s.handleOpenCamera)
	r.GET("/cameras/discover", auth, s.handleDiscoverCameras)

	r.GET("/rules", s.handleListRules)
	r.POST("/rules", auth, s.handleCreateRule)
	r.DELETE("/rules/:id", auth, s.handleDeleteRule)
	r.PUT("/rules/:id/toggle", auth, s.handleToggleRule)

	r.GET("/templates", s.handleListTemplates)
	r.POST("/templates/:id/create", auth, s.handleCreateFromTemplate)

	r.GET("/alerts", s.handleListAlerts)
	r.GET("/changes", s.handleChanges)

	r.POST("/mcp/report_rule_evaluation", auth, s.handleReportRuleEvaluation)
	r.POST("/mcp/configure_provider", auth, s.handleConfigureProvider)

	return r
}

// Start binds addr and begins serving in the background, returning once
// the listener is open (so callers can query the bound address or fail
// fast on an unavailable port) and returning the bind error if the listen fails.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{Handler: s.Router()}
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("http server stopped unexpectedly")
		}
	}()
	return nil
}

// Shutdown gracefully drains in-flight requests within the given
// timeout (spec §5 step 1: "stop accepting new HTTP requests but drain
// in-flight").
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}
}

// corsMiddleware permits the dashboard to call the API from a different
// origin, the same closure shape the teacher's main.go registers.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
