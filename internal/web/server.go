// Package web serves the browser-facing JSON API and the OAuth flows for
// linking Discord and Spotify accounts.
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"tunelink/internal/config"
	"tunelink/internal/music/engine"
	"tunelink/internal/nowplaying"
	"tunelink/internal/spotify"
	"tunelink/internal/storage"
)

// engineTimeout bounds every engine call made on behalf of a web request.
// A not-ready or stuck engine turns into a "try again" reply.
const engineTimeout = 5 * time.Second

const sessionCookie = "tunelink_session"

// Server is the web adapter. Run blocks; construct with New.
type Server struct {
	cfg       *config.Config
	engine    *engine.Engine
	remote    *spotify.Controller
	projector *nowplaying.Projector
	store     *storage.Storage

	discordOAuth *oauth2.Config

	mu sync.Mutex
	// sessions maps cookie tokens to Discord user IDs.
	sessions map[string]string
	// linkStates maps OAuth state nonces to the Discord user being linked.
	linkStates map[string]string
}

func New(cfg *config.Config, eng *engine.Engine, remote *spotify.Controller, projector *nowplaying.Projector, store *storage.Storage) *Server {
	s := &Server{
		cfg:        cfg,
		engine:     eng,
		remote:     remote,
		projector:  projector,
		store:      store,
		sessions:   make(map[string]string),
		linkStates: make(map[string]string),
	}

	if cfg.DiscordOAuthEnabled() {
		s.discordOAuth = &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURI,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://discord.com/api/oauth2/authorize",
				TokenURL: "https://discord.com/api/oauth2/token",
			},
		}
	}

	return s
}

func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleStatus)
	r.GET("/login/discord", s.handleDiscordLogin)
	r.GET("/callback/discord", s.handleDiscordCallback)
	r.GET("/login/spotify", s.handleSpotifyLogin)
	r.GET("/callback/spotify", s.handleSpotifyCallback)

	api := r.Group("/api", rateLimit())
	{
		api.GET("/queue", s.handleQueueList)
		api.POST("/queue", s.handleQueueAdd)
		api.GET("/nowplaying", s.handleNowPlaying)
		api.POST("/control/:action", s.handleControl)
		api.POST("/volume/:direction", s.handleVolume)
	}

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.WebAddr, Handler: s.router()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("component", "web").Str("addr", s.cfg.WebAddr).Msg("web server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// SpotifyLinkURL mints a one-time OAuth URL for userID. Implements the chat
// adapter's LinkURLProvider.
func (s *Server) SpotifyLinkURL(userID string) string {
	state := randomToken()
	s.mu.Lock()
	s.linkStates[state] = userID
	s.mu.Unlock()
	return s.remote.AuthURL(state)
}

// sessionUser resolves the request's cookie to a Discord user ID.
func (s *Server) sessionUser(c *gin.Context) (string, bool) {
	token, err := c.Cookie(sessionCookie)
	if err != nil || token == "" {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.sessions[token]
	return userID, ok
}

func (s *Server) startSession(c *gin.Context, userID string) {
	token := randomToken()
	s.mu.Lock()
	s.sessions[token] = userID
	s.mu.Unlock()
	c.SetCookie(sessionCookie, token, int((30 * 24 * time.Hour).Seconds()), "/", "", false, true)
}

func (s *Server) consumeLinkState(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.linkStates[state]
	if ok {
		delete(s.linkStates, state)
	}
	return userID, ok
}

func randomToken() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func engineContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), engineTimeout)
}
