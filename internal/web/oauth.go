package web

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// handleDiscordLogin starts the browser login flow. The state nonce doubles
// as a CSRF check, parked in linkStates with no user attached yet.
func (s *Server) handleDiscordLogin(c *gin.Context) {
	if s.discordOAuth == nil {
		failure(c, http.StatusNotImplemented, "Discord login is not configured.")
		return
	}
	state := randomToken()
	s.mu.Lock()
	s.linkStates[state] = ""
	s.mu.Unlock()
	c.Redirect(http.StatusFound, s.discordOAuth.AuthCodeURL(state))
}

func (s *Server) handleDiscordCallback(c *gin.Context) {
	if s.discordOAuth == nil {
		failure(c, http.StatusNotImplemented, "Discord login is not configured.")
		return
	}
	if _, ok := s.consumeLinkState(c.Query("state")); !ok {
		failure(c, http.StatusBadRequest, "Unknown or expired login state.")
		return
	}

	token, err := s.discordOAuth.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		failure(c, http.StatusBadGateway, "Discord code exchange failed.")
		return
	}

	userID, username, err := fetchDiscordIdentity(c, token.AccessToken)
	if err != nil {
		log.Warn().Str("component", "web").Err(err).Msg("discord identity fetch failed")
		failure(c, http.StatusBadGateway, "Could not read your Discord identity.")
		return
	}

	if err := s.store.UpsertUsername(userID, username); err != nil {
		log.Warn().Str("component", "web").Err(err).Msg("username upsert failed")
	}
	s.startSession(c, userID)
	success(c, "Logged in as "+username+".", gin.H{"user_id": userID})
}

// fetchDiscordIdentity reads users/@me with the fresh bearer token.
func fetchDiscordIdentity(c *gin.Context, accessToken string) (id, username string, err error) {
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, "https://discord.com/api/users/@me", nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	var me struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return "", "", err
	}
	return me.ID, me.Username, nil
}

// handleSpotifyLogin links the logged-in browser user's Spotify. Chat users
// get their link URL from /link-spotify instead.
func (s *Server) handleSpotifyLogin(c *gin.Context) {
	if s.remote == nil {
		failure(c, http.StatusNotImplemented, "Spotify is not configured.")
		return
	}
	userID, ok := s.sessionUser(c)
	if !ok {
		failure(c, http.StatusUnauthorized, "Log in with Discord first: /login/discord.")
		return
	}
	c.Redirect(http.StatusFound, s.SpotifyLinkURL(userID))
}

func (s *Server) handleSpotifyCallback(c *gin.Context) {
	if s.remote == nil {
		failure(c, http.StatusNotImplemented, "Spotify is not configured.")
		return
	}

	state := c.Query("state")
	userID, ok := s.consumeLinkState(state)
	if !ok || userID == "" {
		failure(c, http.StatusBadRequest, "Unknown or expired link state.")
		return
	}

	token, err := s.remote.Exchange(c.Request.Context(), state, c.Query("code"))
	if err != nil {
		failure(c, http.StatusBadGateway, "Spotify code exchange failed.")
		return
	}
	if err := s.remote.Link(c.Request.Context(), userID, token); err != nil {
		failure(c, http.StatusInternalServerError, "Could not store your Spotify link.")
		return
	}
	success(c, "Spotify linked! You can close this tab.", nil)
}
