// Package spotify remote-controls each linked user's own Spotify playback.
// Nothing here touches the voice pipeline; commands act on whatever device
// the user's Spotify account is already playing on.
package spotify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"tunelink/internal/storage"
)

var (
	// ErrNotLinked means the user has no stored credential (or it was just
	// invalidated and they must re-link).
	ErrNotLinked = errors.New("spotify account is not linked")

	// ErrNoActiveDevice means no Spotify app is open anywhere for the user.
	ErrNoActiveDevice = errors.New("no active spotify device found, open spotify on any device first")

	// ErrPremiumRequired covers playback control rejected for free accounts.
	ErrPremiumRequired = errors.New("spotify premium is required for playback control")

	// ErrRateLimited means Spotify asked us to back off. Not retried.
	ErrRateLimited = errors.New("spotify is rate limiting requests, try again shortly")

	// ErrNothingFound means a search query matched no tracks.
	ErrNothingFound = errors.New("no matching track found on spotify")
)

// RemoteSnapshot is the displayable state of a user's remote playback.
type RemoteSnapshot struct {
	Playing     bool   `json:"playing"`
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	CoverArtURL string `json:"cover_art_url"`
	ProgressMs  int    `json:"progress_ms"`
	DurationMs  int    `json:"duration_ms"`
}

// Controller maps Discord user IDs to authenticated Spotify clients backed
// by persisted OAuth tokens.
type Controller struct {
	auth  *spotifyauth.Authenticator
	store *storage.Storage

	mu      sync.Mutex
	clients map[string]*spotify.Client
}

func New(clientID, clientSecret, redirectURI string, store *storage.Storage) *Controller {
	return &Controller{
		auth: spotifyauth.New(
			spotifyauth.WithClientID(clientID),
			spotifyauth.WithClientSecret(clientSecret),
			spotifyauth.WithRedirectURL(redirectURI),
			spotifyauth.WithScopes(
				spotifyauth.ScopeUserReadPlaybackState,
				spotifyauth.ScopeUserModifyPlaybackState,
				spotifyauth.ScopeUserReadCurrentlyPlaying,
			),
		),
		store:   store,
		clients: make(map[string]*spotify.Client),
	}
}

// LoadFromStorage rebuilds the client cache from persisted tokens. Records
// that fail to deserialize are skipped, not fatal.
func (c *Controller) LoadFromStorage() error {
	records, err := c.store.LoadAll()
	if err != nil {
		return fmt.Errorf("load user records: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for userID, record := range records {
		if len(record.SpotifyToken) == 0 {
			continue
		}
		var token oauth2.Token
		if err := json.Unmarshal(record.SpotifyToken, &token); err != nil {
			log.Warn().Str("component", "spotify").Str("user", userID).Err(err).Msg("skipping unreadable stored token")
			continue
		}
		c.clients[userID] = spotify.New(c.auth.Client(context.Background(), &token))
	}
	log.Info().Str("component", "spotify").Int("linked_users", len(c.clients)).Msg("restored spotify credentials")
	return nil
}

// AuthURL returns the Spotify consent URL for the OAuth flow.
func (c *Controller) AuthURL(state string) string {
	return c.auth.AuthURL(state)
}

// Exchange completes the OAuth code exchange from the callback values.
func (c *Controller) Exchange(ctx context.Context, state, code string) (*oauth2.Token, error) {
	return c.auth.Exchange(ctx, code, oauth2.SetAuthURLParam("state", state))
}

// Link persists the token for userID and caches an authenticated client.
// Re-linking overwrites the previous credential.
func (c *Controller) Link(ctx context.Context, userID string, token *oauth2.Token) error {
	raw, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("serialize token: %w", err)
	}
	if err := c.store.UpsertSpotifyToken(userID, raw); err != nil {
		return fmt.Errorf("persist token: %w", err)
	}

	c.mu.Lock()
	c.clients[userID] = spotify.New(c.auth.Client(ctx, token))
	c.mu.Unlock()

	log.Info().Str("component", "spotify").Str("user", userID).Msg("spotify account linked")
	return nil
}

// Linked reports whether userID has a usable credential.
func (c *Controller) Linked(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.clients[userID]
	return ok
}

func (c *Controller) clientFor(userID string) (*spotify.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	client, ok := c.clients[userID]
	if !ok {
		return nil, ErrNotLinked
	}
	return client, nil
}

// invalidate drops the credential from cache and storage. Called on 401.
func (c *Controller) invalidate(userID string) {
	c.mu.Lock()
	delete(c.clients, userID)
	c.mu.Unlock()
	if err := c.store.DeleteSpotifyToken(userID); err != nil {
		log.Warn().Str("component", "spotify").Str("user", userID).Err(err).Msg("could not delete expired token")
	}
	log.Info().Str("component", "spotify").Str("user", userID).Msg("spotify credential invalidated")
}

// Play starts playback on the user's active device. The query may be a
// track link, a playlist or album link (played as a context), or free-text
// search. An empty query resumes whatever is paused.
func (c *Controller) Play(ctx context.Context, userID, query string) (string, error) {
	client, err := c.clientFor(userID)
	if err != nil {
		return "", err
	}

	deviceID, err := c.activeDevice(ctx, userID, client)
	if err != nil {
		return "", err
	}

	if query == "" {
		opts := &spotify.PlayOptions{DeviceID: &deviceID}
		if err := client.PlayOpt(ctx, opts); err != nil {
			return "", c.mapError(userID, err)
		}
		return "", nil
	}

	if uri, ok := contextURIFromLink(query); ok {
		title, err := c.contextTitle(ctx, userID, client, query)
		if err != nil {
			return "", err
		}
		opts := &spotify.PlayOptions{DeviceID: &deviceID, PlaybackContext: &uri}
		if err := client.PlayOpt(ctx, opts); err != nil {
			return "", c.mapError(userID, err)
		}
		return title, nil
	}

	uri, title, err := c.trackFor(ctx, userID, client, query)
	if err != nil {
		return "", err
	}

	opts := &spotify.PlayOptions{DeviceID: &deviceID, URIs: []spotify.URI{uri}}
	if err := client.PlayOpt(ctx, opts); err != nil {
		return "", c.mapError(userID, err)
	}
	return title, nil
}

// trackFor turns an open.spotify.com track link or free-text query into a
// playable URI plus a display title.
func (c *Controller) trackFor(ctx context.Context, userID string, client *spotify.Client, query string) (spotify.URI, string, error) {
	if id, ok := spotifyLinkID(query, "track"); ok {
		track, err := client.GetTrack(ctx, id)
		if err != nil {
			return "", "", c.mapError(userID, err)
		}
		return track.URI, displayTitle(track), nil
	}

	result, err := client.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(1))
	if err != nil {
		return "", "", c.mapError(userID, err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return "", "", ErrNothingFound
	}
	track := &result.Tracks.Tracks[0]
	return track.URI, displayTitle(track), nil
}

// contextTitle fetches the display name for a playlist or album link.
func (c *Controller) contextTitle(ctx context.Context, userID string, client *spotify.Client, link string) (string, error) {
	if id, ok := spotifyLinkID(link, "playlist"); ok {
		playlist, err := client.GetPlaylist(ctx, id)
		if err != nil {
			return "", c.mapError(userID, err)
		}
		return playlist.Name, nil
	}
	if id, ok := spotifyLinkID(link, "album"); ok {
		album, err := client.GetAlbum(ctx, id)
		if err != nil {
			return "", c.mapError(userID, err)
		}
		return album.Name, nil
	}
	return "", nil
}

// activeDevice requires a device the user's Spotify marks active. An
// inactive device cannot be targeted silently; the user must pick one by
// opening Spotify.
func (c *Controller) activeDevice(ctx context.Context, userID string, client *spotify.Client) (spotify.ID, error) {
	devices, err := client.PlayerDevices(ctx)
	if err != nil {
		return "", c.mapError(userID, err)
	}
	return pickActiveDevice(devices)
}

func pickActiveDevice(devices []spotify.PlayerDevice) (spotify.ID, error) {
	for _, d := range devices {
		if d.Active {
			return d.ID, nil
		}
	}
	return "", ErrNoActiveDevice
}

func (c *Controller) Pause(ctx context.Context, userID string) error {
	client, err := c.clientFor(userID)
	if err != nil {
		return err
	}
	return c.mapError(userID, client.Pause(ctx))
}

// Resume continues paused remote playback without changing the track.
func (c *Controller) Resume(ctx context.Context, userID string) error {
	client, err := c.clientFor(userID)
	if err != nil {
		return err
	}
	return c.mapError(userID, client.Play(ctx))
}

func (c *Controller) Next(ctx context.Context, userID string) error {
	client, err := c.clientFor(userID)
	if err != nil {
		return err
	}
	return c.mapError(userID, client.Next(ctx))
}

func (c *Controller) Previous(ctx context.Context, userID string) error {
	client, err := c.clientFor(userID)
	if err != nil {
		return err
	}
	return c.mapError(userID, client.Previous(ctx))
}

// CurrentPlayback returns the user's remote playback state, or nil when
// nothing is loaded on any device.
func (c *Controller) CurrentPlayback(ctx context.Context, userID string) (*RemoteSnapshot, error) {
	client, err := c.clientFor(userID)
	if err != nil {
		return nil, err
	}

	state, err := client.PlayerState(ctx)
	if err != nil {
		return nil, c.mapError(userID, err)
	}
	if state == nil || state.Item == nil {
		return nil, nil
	}

	snapshot := &RemoteSnapshot{
		Playing:    state.Playing,
		Title:      state.Item.Name,
		Artist:     artistNames(state.Item),
		ProgressMs: int(state.Progress),
		DurationMs: int(state.Item.Duration),
	}
	if len(state.Item.Album.Images) > 0 {
		snapshot.CoverArtURL = state.Item.Album.Images[0].URL
	}
	return snapshot, nil
}

// mapError translates Spotify API failures into actionable errors. 401
// invalidates the credential; nothing is retried.
func (c *Controller) mapError(userID string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Status {
		case 401:
			c.invalidate(userID)
			return ErrNotLinked
		case 403:
			return ErrPremiumRequired
		case 404:
			return ErrNoActiveDevice
		case 429:
			return ErrRateLimited
		}
	}
	return fmt.Errorf("spotify request: %w", err)
}

func displayTitle(track *spotify.FullTrack) string {
	artist := artistNames(track)
	if artist == "" {
		return track.Name
	}
	return fmt.Sprintf("%s by %s", track.Name, artist)
}

func artistNames(track *spotify.FullTrack) string {
	names := make([]string, 0, len(track.Artists))
	for _, a := range track.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// spotifyLinkID extracts the ID from an open.spotify.com/<kind>/... link.
func spotifyLinkID(ref, kind string) (spotify.ID, bool) {
	marker := "open.spotify.com/" + kind + "/"
	idx := strings.Index(ref, marker)
	if idx < 0 {
		return "", false
	}
	id := ref[idx+len(marker):]
	if q := strings.IndexAny(id, "?#/"); q >= 0 {
		id = id[:q]
	}
	if id == "" {
		return "", false
	}
	return spotify.ID(id), true
}

// contextURIFromLink maps playlist and album links to playable context URIs.
func contextURIFromLink(ref string) (spotify.URI, bool) {
	for _, kind := range []string{"playlist", "album"} {
		if id, ok := spotifyLinkID(ref, kind); ok {
			return spotify.URI("spotify:" + kind + ":" + string(id)), true
		}
	}
	return "", false
}
