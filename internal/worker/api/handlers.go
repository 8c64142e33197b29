package api

import (
	"fmt"
	"net/http"

	"soundfleet/internal/music/player"
	"soundfleet/internal/music/queue"
	"soundfleet/internal/music/resolver"
	"soundfleet/internal/music/stream"
	"soundfleet/internal/music/track"
	"soundfleet/internal/music/voice"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

// result is a cacheable HTTP outcome. Domain failures are encoded in the
// body so a retried request replays them identically.
type result struct {
	code int
	body gin.H
}

func ok(body gin.H) result {
	return result{code: http.StatusOK, body: body}
}

func fail(code int, msg string) result {
	return result{code: code, body: gin.H{"status": "error", "error": msg}}
}

// dedup wraps a mutating handler body with the idempotency cache: a known
// (op, requestId) replays the original response without re-executing.
func (s *Server) dedup(c *gin.Context, op, requestID string, fn func() result) {
	v, err := s.idem.Do(op, requestID, func() (any, error) {
		return fn(), nil
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": err.Error()})
		return
	}
	res := v.(result)
	c.JSON(res.code, res.body)
}

func bindErr(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
}

func (s *Server) handleJoin(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
		ChannelID string `json:"channelId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "join", req.RequestID, func() result {
		err := s.engine.Join(c.Request.Context(), req.GuildID, req.ChannelID)
		switch {
		case err == nil:
			return ok(gin.H{"status": "joined", "channelId": req.ChannelID})
		case errors.Is(err, voice.ErrAlreadyConnected):
			return ok(gin.H{"status": "already_connected"})
		case errors.Is(err, voice.ErrNotFound):
			return fail(http.StatusNotFound, err.Error())
		default:
			return fail(http.StatusInternalServerError, err.Error())
		}
	})
}

func (s *Server) handleLeave(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "leave", req.RequestID, func() result {
		err := s.engine.Leave(c.Request.Context(), req.GuildID)
		switch {
		case err == nil:
			return ok(gin.H{"status": "left"})
		case errors.Is(err, voice.ErrNotConnected):
			return ok(gin.H{"status": "not_connected"})
		default:
			return fail(http.StatusInternalServerError, err.Error())
		}
	})
}

func (s *Server) handleEnqueue(c *gin.Context) {
	var req struct {
		RequestID     string `json:"requestId"`
		GuildID       string `json:"guildId" binding:"required"`
		URL           string `json:"url" binding:"required"`
		RequestedBy   string `json:"requestedBy"`
		RequestedByID string `json:"requestedById"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "enqueue", req.RequestID, func() result {
		pos, tracks, err := s.engine.Enqueue(c.Request.Context(), req.GuildID, req.URL, req.RequestedByID, req.RequestedBy)
		switch {
		case err == nil:
			return ok(gin.H{
				"status":   "success",
				"position": pos,
				"message":  enqueueMessage(tracks),
			})
		case errors.Is(err, resolver.ErrNoResults):
			return fail(http.StatusNotFound, err.Error())
		case errors.Is(err, stream.ErrStreamResolution):
			return fail(http.StatusBadGateway, err.Error())
		default:
			return fail(http.StatusInternalServerError, err.Error())
		}
	})
}

func enqueueMessage(tracks []track.Track) string {
	if len(tracks) == 1 {
		return fmt.Sprintf("added %q to the queue", tracks[0].Title)
	}
	return fmt.Sprintf("added %d tracks to the queue", len(tracks))
}

func (s *Server) handleSkip(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
		Count     int    `json:"count"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "skip", req.RequestID, func() result {
		titles, err := s.engine.Skip(req.GuildID, req.Count)
		switch {
		case err == nil:
			return ok(gin.H{"status": "success", "skipped": titles})
		case errors.Is(err, queue.ErrNothingPlaying):
			return fail(http.StatusConflict, err.Error())
		default:
			return fail(http.StatusInternalServerError, err.Error())
		}
	})
}

func (s *Server) handlePause(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "pause", req.RequestID, func() result {
		paused, err := s.engine.TogglePause(req.GuildID)
		switch {
		case err == nil:
			return ok(gin.H{"status": "success", "paused": paused})
		case errors.Is(err, queue.ErrNothingPlaying):
			return fail(http.StatusConflict, err.Error())
		default:
			return fail(http.StatusInternalServerError, err.Error())
		}
	})
}

func (s *Server) handleStop(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "stop", req.RequestID, func() result {
		if err := s.engine.Stop(req.GuildID); err != nil {
			return fail(http.StatusInternalServerError, err.Error())
		}
		return ok(gin.H{"status": "success"})
	})
}

func (s *Server) handleClear(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "clear", req.RequestID, func() result {
		cleared := s.engine.Clear(req.GuildID)
		return ok(gin.H{"status": "success", "cleared": cleared})
	})
}

func (s *Server) handleVolume(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
		Level     *int   `json:"level" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "volume", req.RequestID, func() result {
		if err := s.engine.SetVolume(req.GuildID, *req.Level); err != nil {
			if errors.Is(err, player.ErrVolumeOutOfRange) {
				return fail(http.StatusBadRequest, err.Error())
			}
			return fail(http.StatusInternalServerError, err.Error())
		}
		return ok(gin.H{"status": "success", "volume": *req.Level})
	})
}

func (s *Server) handleSeek(c *gin.Context) {
	var req struct {
		RequestID       string `json:"requestId"`
		GuildID         string `json:"guildId" binding:"required"`
		PositionSeconds *int   `json:"positionSeconds" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "seek", req.RequestID, func() result {
		err := s.engine.Seek(req.GuildID, *req.PositionSeconds)
		switch {
		case err == nil:
			return ok(gin.H{"status": "success"})
		case errors.Is(err, queue.ErrNothingPlaying), errors.Is(err, voice.ErrNotConnected):
			return fail(http.StatusConflict, err.Error())
		default:
			return fail(http.StatusInternalServerError, err.Error())
		}
	})
}

func (s *Server) handleReplay(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "replay", req.RequestID, func() result {
		title, err := s.engine.Replay(req.GuildID)
		switch {
		case err == nil:
			return ok(gin.H{"status": "success", "replaying": title})
		case errors.Is(err, player.ErrNoTrackToReplay):
			return fail(http.StatusConflict, err.Error())
		default:
			return fail(http.StatusInternalServerError, err.Error())
		}
	})
}

func (s *Server) handleAutoplay(c *gin.Context) {
	var req struct {
		RequestID string `json:"requestId"`
		GuildID   string `json:"guildId" binding:"required"`
		Enabled   *bool  `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		bindErr(c, err)
		return
	}

	s.dedup(c, "autoplay", req.RequestID, func() result {
		on := s.engine.ToggleAutoplay(req.GuildID, req.Enabled)
		return ok(gin.H{"status": "success", "autoplay": on})
	})
}

func (s *Server) handleQueue(c *gin.Context) {
	v := s.engine.Queue(c.Param("guildId"))

	items := make([]gin.H, 0, len(v.Tracks))
	for i, t := range v.Tracks {
		items = append(items, gin.H{
			"position":  i + 1,
			"title":     t.Title,
			"url":       t.URL,
			"duration":  t.DurationSec(),
			"source":    t.Source,
			"requester": t.RequesterName,
		})
	}

	resp := gin.H{
		"queue":      items,
		"total":      v.Total,
		"isPaused":   v.Paused,
		"isAutoplay": v.Autoplay,
		"volume":     v.Volume,
	}
	if v.NowPlaying != nil {
		resp["nowPlaying"] = gin.H{
			"title":     v.NowPlaying.Title,
			"url":       v.NowPlaying.URL,
			"duration":  v.NowPlaying.DurationSec(),
			"position":  v.PositionSec,
			"source":    v.NowPlaying.Source,
			"requester": v.NowPlaying.RequesterName,
		}
	}
	if v.LastPlayed != nil {
		resp["lastPlayed"] = gin.H{"title": v.LastPlayed.Title, "url": v.LastPlayed.URL}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Status(c.Param("guildId")))
}

func (s *Server) handleSounds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sounds": s.engine.Sounds()})
}
