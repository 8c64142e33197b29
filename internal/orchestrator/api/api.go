// Package api is the orchestrator's public HTTP surface: worker
// registration on the internal side, command proxying and composite
// status on the caller side.
package api

import (
	"io"
	"net/http"
	"time"

	"soundfleet/internal/config"
	"soundfleet/internal/logger"
	"soundfleet/internal/orchestrator/registry"
	"soundfleet/internal/orchestrator/router"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// knownOps whitelists proxyable command names so the orchestrator never
// becomes an open relay into worker processes.
var knownOps = map[string]bool{
	"join": true, "leave": true, "enqueue": true, "skip": true,
	"pause": true, "stop": true, "clear": true, "volume": true,
	"seek": true, "replay": true, "autoplay": true,
}

// Server wires the gin router for the orchestrator.
type Server struct {
	reg       *registry.Registry
	router    *router.Router
	secret    string
	apiSecret string
	startedAt time.Time
	log       zerolog.Logger
}

// NewServer creates the orchestrator API server. secret guards worker
// registration, apiSecret guards the caller-facing v1 surface.
func NewServer(reg *registry.Registry, rt *router.Router, secret, apiSecret string) *Server {
	return &Server{
		reg:       reg,
		router:    rt,
		secret:    secret,
		apiSecret: apiSecret,
		startedAt: time.Now(),
		log:       logger.For("orchestrator"),
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health/live", s.handleLive)
	r.GET("/health/ready", s.handleReady)

	r.POST("/internal/workers/register", s.requireSecret, s.handleRegister)

	// The proxy attaches a valid internal secret to forwarded requests, so
	// leaving it open would hand out worker access for free.
	v1 := r.Group("/v1", s.requireAPIKey)
	{
		v1.POST("/:botType/commands/:op", s.handleCommand)
		v1.GET("/:botType/queue/:guildId", s.handleQueue)
		v1.GET("/:botType/sounds", s.handleSounds)
		v1.GET("/guilds/:guildId/status", s.handleStatus)
		v1.GET("/workers", s.handleWorkers)
	}
	return r
}

func (s *Server) requireSecret(c *gin.Context) {
	if s.secret == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			gin.H{"status": "error", "error": "worker secret not configured"})
		return
	}
	if c.GetHeader("x-worker-secret") != s.secret {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			gin.H{"status": "error", "error": "invalid worker secret"})
		return
	}
	c.Next()
}

func (s *Server) requireAPIKey(c *gin.Context) {
	if s.apiSecret == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			gin.H{"status": "error", "error": "api secret not configured"})
		return
	}
	if c.GetHeader("x-api-key") != s.apiSecret {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			gin.H{"status": "error", "error": "invalid api key"})
		return
	}
	c.Next()
}

func (s *Server) handleLive(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleReady(c *gin.Context) {
	workers := s.reg.All()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"ready":     true,
		"workers":   len(workers),
		"uptime":    time.Since(s.startedAt).String(),
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleRegister(c *gin.Context) {
	var reg registry.Registration
	if err := c.ShouldBindJSON(&reg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	if err := s.reg.Register(reg); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, registry.ErrUnknownBotType) {
			code = http.StatusBadRequest
		}
		c.JSON(code, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleCommand proxies one command to the owning worker and returns the
// worker's response verbatim, so idempotency replays survive the hop.
func (s *Server) handleCommand(c *gin.Context) {
	botType := config.BotType(c.Param("botType"))
	if !config.IsKnownBotType(botType) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "unknown bot type"})
		return
	}
	op := c.Param("op")
	if !knownOps[op] {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "unknown command"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	code, respBody, err := s.router.Forward(c.Request.Context(), botType, "/v1/commands/"+op, body)
	s.relay(c, botType, code, respBody, err)
}

func (s *Server) handleQueue(c *gin.Context) {
	botType := config.BotType(c.Param("botType"))
	if !config.IsKnownBotType(botType) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "unknown bot type"})
		return
	}

	code, body, err := s.router.ForwardGet(c.Request.Context(), botType, "/v1/queue/"+c.Param("guildId"))
	s.relay(c, botType, code, body, err)
}

func (s *Server) handleSounds(c *gin.Context) {
	botType := config.BotType(c.Param("botType"))
	if !config.IsKnownBotType(botType) {
		c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "unknown bot type"})
		return
	}

	code, body, err := s.router.ForwardGet(c.Request.Context(), botType, "/v1/sounds")
	s.relay(c, botType, code, body, err)
}

func (s *Server) relay(c *gin.Context, botType config.BotType, code int, body []byte, err error) {
	switch {
	case err == nil:
		c.Data(code, "application/json", body)
	case errors.Is(err, router.ErrNoWorker):
		c.JSON(http.StatusServiceUnavailable,
			gin.H{"status": "error", "error": "no worker available for " + string(botType)})
	default:
		s.log.Warn().Err(err).Str("botType", string(botType)).Msg("worker unreachable")
		c.JSON(http.StatusBadGateway, gin.H{"status": "error", "error": err.Error()})
	}
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.router.Status(c.Request.Context(), c.Param("guildId")))
}

func (s *Server) handleWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workers": s.reg.All()})
}
