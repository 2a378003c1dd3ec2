package web

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tunelink/internal/music/engine"
	"tunelink/internal/music/voice"
	"tunelink/internal/spotify"
)

func (s *Server) handleStatus(c *gin.Context) {
	userID, loggedIn := s.sessionUser(c)
	data := gin.H{
		"logged_in":      loggedIn,
		"spotify_linked": false,
	}
	if loggedIn && s.remote != nil {
		data["spotify_linked"] = s.remote.Linked(userID)
	}
	success(c, "ok", data)
}

func (s *Server) handleQueueList(c *gin.Context) {
	ctx, cancel := engineContext()
	defer cancel()
	pending, err := s.engine.Pending(ctx)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	success(c, "queue", gin.H{"pending": pending, "count": len(pending)})
}

func (s *Server) handleQueueAdd(c *gin.Context) {
	var body struct {
		Source string `json:"source"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Source) == "" {
		failure(c, http.StatusBadRequest, "Body must be JSON with a non-empty \"source\".")
		return
	}
	source := strings.TrimSpace(body.Source)

	ctx, cancel := engineContext()
	defer cancel()
	if err := s.engine.Enqueue(ctx, source); err != nil {
		respondEngineError(c, err)
		return
	}

	advCtx, advCancel := engineContext()
	defer advCancel()
	if err := s.engine.Advance(advCtx, ""); err != nil &&
		!errors.Is(err, engine.ErrQueueEmpty) && !errors.Is(err, engine.ErrNotConnected) {
		respondEngineError(c, err)
		return
	}
	success(c, "Queued: "+source, nil)
}

func (s *Server) handleNowPlaying(c *gin.Context) {
	userID, _ := s.sessionUser(c)

	ctx, cancel := engineContext()
	defer cancel()
	snap := s.projector.Project(ctx, userID)
	success(c, "nowplaying", snap)
}

// handleControl serves both surfaces: play/previous act on the session
// user's Spotify, the rest act on the shared queue.
func (s *Server) handleControl(c *gin.Context) {
	action := c.Param("action")

	switch action {
	case "play", "previous":
		s.handleRemoteControl(c, action)
		return
	}

	ctx, cancel := engineContext()
	defer cancel()

	var err error
	var message string
	switch action {
	case "pause":
		err = s.engine.Pause(ctx)
		message = "Paused."
	case "resume":
		err = s.engine.Resume(ctx)
		message = "Resumed."
	case "stop":
		err = s.engine.Stop(ctx)
		message = "Stopped and cleared the queue."
	case "skip":
		err = s.engine.Skip(ctx)
		message = "Skipped."
	default:
		failure(c, http.StatusNotFound, "Unknown control action.")
		return
	}

	if err != nil {
		if errors.Is(err, voice.ErrNotPlaying) || errors.Is(err, voice.ErrNotPaused) {
			warning(c, "Nothing to do: "+err.Error())
			return
		}
		respondEngineError(c, err)
		return
	}
	success(c, message, nil)
}

func (s *Server) handleRemoteControl(c *gin.Context, action string) {
	userID, ok := s.sessionUser(c)
	if !ok {
		failure(c, http.StatusUnauthorized, "Log in with Discord first.")
		return
	}
	if s.remote == nil {
		failure(c, http.StatusNotImplemented, "Spotify is not configured.")
		return
	}

	ctx, cancel := engineContext()
	defer cancel()

	var err error
	var message string
	switch action {
	case "play":
		var body struct {
			Query string `json:"query"`
		}
		_ = c.ShouldBindJSON(&body)
		var title string
		title, err = s.remote.Play(ctx, userID, strings.TrimSpace(body.Query))
		message = "Playing on your Spotify."
		if title != "" {
			message = "Playing on your Spotify: " + title
		}
	case "previous":
		err = s.remote.Previous(ctx, userID)
		message = "Went back a track."
	}

	if err != nil {
		respondRemoteError(c, err)
		return
	}
	success(c, message, nil)
}

func (s *Server) handleVolume(c *gin.Context) {
	delta := voice.VolumeStep
	switch c.Param("direction") {
	case "up":
	case "down":
		delta = -voice.VolumeStep
	default:
		failure(c, http.StatusNotFound, "Volume direction must be up or down.")
		return
	}

	ctx, cancel := engineContext()
	defer cancel()
	volume, err := s.engine.AdjustVolume(ctx, delta)
	if err != nil {
		respondEngineError(c, err)
		return
	}
	success(c, "Volume adjusted.", gin.H{"volume": volume})
}

func respondRemoteError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, spotify.ErrNotLinked):
		failure(c, http.StatusUnauthorized, "Spotify is not linked. Visit /login/spotify.")
	case errors.Is(err, spotify.ErrNoActiveDevice):
		failure(c, http.StatusConflict, "No active Spotify device. Open Spotify somewhere first.")
	case errors.Is(err, spotify.ErrPremiumRequired):
		failure(c, http.StatusForbidden, "Spotify Premium is required for playback control.")
	case errors.Is(err, spotify.ErrRateLimited):
		warning(c, "Spotify is rate limiting requests, try again shortly.")
	case errors.Is(err, spotify.ErrNothingFound):
		failure(c, http.StatusNotFound, "No matching track found.")
	default:
		failure(c, http.StatusBadGateway, err.Error())
	}
}
