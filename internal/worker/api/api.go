// Package api is the worker's internal HTTP command surface.
package api

import (
	"context"
	"net/http"
	"time"

	"soundfleet/internal/config"
	"soundfleet/internal/idempotency"
	"soundfleet/internal/logger"
	"soundfleet/internal/music/queue"
	"soundfleet/internal/music/track"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Engine is the playback surface the API drives. The worker engine
// implements it; tests substitute a fake.
type Engine interface {
	Join(ctx context.Context, guildID, channelID string) error
	Leave(ctx context.Context, guildID string) error
	Enqueue(ctx context.Context, guildID, url, requesterID, requesterName string) (int, []track.Track, error)
	Skip(guildID string, count int) ([]string, error)
	TogglePause(guildID string) (bool, error)
	Stop(guildID string) error
	Clear(guildID string) int
	SetVolume(guildID string, level int) error
	Seek(guildID string, positionSeconds int) error
	Replay(guildID string) (string, error)
	ToggleAutoplay(guildID string, explicit *bool) bool
	Queue(guildID string) queue.View
	Status(guildID string) GuildStatus
	Health() Health
	Sounds() []string
}

// GuildStatus is this worker's view of one guild, merged by the
// orchestrator into the composite status.
type GuildStatus struct {
	BotType     config.BotType `json:"botType"`
	InstanceID  string         `json:"instanceId"`
	Connected   bool           `json:"connected"`
	Playing     bool           `json:"playing"`
	Paused      bool           `json:"paused"`
	QueueLength int            `json:"queueLength"`
	Volume      int            `json:"volume"`
}

// Health is the readiness payload.
type Health struct {
	Ready    bool
	Degraded bool
	Uptime   time.Duration
}

// Server wires the gin router for one worker.
type Server struct {
	engine Engine
	secret string
	idem   *idempotency.Cache
	log    zerolog.Logger
}

// NewServer creates the API server. A nil cache gets the default TTL.
func NewServer(engine Engine, secret string, cache *idempotency.Cache) *Server {
	if cache == nil {
		cache = idempotency.New(idempotency.DefaultTTL)
	}
	return &Server{
		engine: engine,
		secret: secret,
		idem:   cache,
		log:    logger.For("api"),
	}
}

// Router builds the gin engine with all routes attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health/live", s.handleLive)
	r.GET("/health/ready", s.handleReady)

	v1 := r.Group("/v1", s.requireSecret)
	{
		v1.POST("/commands/join", s.handleJoin)
		v1.POST("/commands/leave", s.handleLeave)
		v1.POST("/commands/enqueue", s.handleEnqueue)
		v1.POST("/commands/skip", s.handleSkip)
		v1.POST("/commands/pause", s.handlePause)
		v1.POST("/commands/stop", s.handleStop)
		v1.POST("/commands/clear", s.handleClear)
		v1.POST("/commands/volume", s.handleVolume)
		v1.POST("/commands/seek", s.handleSeek)
		v1.POST("/commands/replay", s.handleReplay)
		v1.POST("/commands/autoplay", s.handleAutoplay)
		v1.GET("/queue/:guildId", s.handleQueue)
		v1.GET("/status/:guildId", s.handleStatus)
		v1.GET("/sounds", s.handleSounds)
	}
	return r
}

// requireSecret guards the command surface with the shared worker secret.
// A missing configuration disables the routes but keeps health reachable.
func (s *Server) requireSecret(c *gin.Context) {
	if s.secret == "" {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			gin.H{"status": "error", "error": "worker secret not configured"})
		return
	}

	provided := c.GetHeader("x-worker-secret")
	if provided == "" {
		provided = c.GetHeader("x-internal-secret")
	}
	if provided != s.secret {
		c.AbortWithStatusJSON(http.StatusUnauthorized,
			gin.H{"status": "error", "error": "invalid secret"})
		return
	}
	c.Next()
}

func (s *Server) handleLive(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

func (s *Server) handleReady(c *gin.Context) {
	h := s.engine.Health()

	status := "ok"
	code := http.StatusOK
	if !h.Ready {
		status = "starting"
		code = http.StatusServiceUnavailable
	} else if h.Degraded {
		status = "degraded"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"ready":     h.Ready,
		"degraded":  h.Degraded,
		"uptime":    h.Uptime.String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
