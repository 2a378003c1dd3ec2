package spotify

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	spotifyapi "github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"tunelink/internal/storage"
)

func newTestController(t *testing.T) (*Controller, *storage.Storage) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "store.json"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New("client-id", "client-secret", "http://localhost/callback/spotify", store), store
}

func TestSpotifyLinkID(t *testing.T) {
	id, ok := spotifyLinkID("https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", "track")
	require.True(t, ok)
	assert.Equal(t, spotifyapi.ID("4uLU6hMCjMI75M1A2tKUQC"), id)

	id, ok = spotifyLinkID("https://open.spotify.com/track/abc?si=xyz", "track")
	require.True(t, ok)
	assert.Equal(t, spotifyapi.ID("abc"), id)

	_, ok = spotifyLinkID("https://open.spotify.com/album/abc", "track")
	assert.False(t, ok)

	_, ok = spotifyLinkID("never gonna give you up", "track")
	assert.False(t, ok)

	_, ok = spotifyLinkID("https://open.spotify.com/track/", "track")
	assert.False(t, ok)
}

func TestContextURIFromLink(t *testing.T) {
	uri, ok := contextURIFromLink("https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M")
	require.True(t, ok)
	assert.Equal(t, spotifyapi.URI("spotify:playlist:37i9dQZF1DXcBWIGoYBM5M"), uri)

	uri, ok = contextURIFromLink("https://open.spotify.com/album/abc?si=share")
	require.True(t, ok)
	assert.Equal(t, spotifyapi.URI("spotify:album:abc"), uri)

	// Track links are not contexts; they go through the track path.
	_, ok = contextURIFromLink("https://open.spotify.com/track/abc")
	assert.False(t, ok)

	_, ok = contextURIFromLink("some playlist I like")
	assert.False(t, ok)
}

func TestPickActiveDevice(t *testing.T) {
	_, err := pickActiveDevice(nil)
	assert.ErrorIs(t, err, ErrNoActiveDevice)

	// Devices exist but none is active: still a reported failure, playback
	// must not silently target an inactive device.
	_, err = pickActiveDevice([]spotifyapi.PlayerDevice{
		{ID: "d1", Active: false},
		{ID: "d2", Active: false},
	})
	assert.ErrorIs(t, err, ErrNoActiveDevice)

	id, err := pickActiveDevice([]spotifyapi.PlayerDevice{
		{ID: "d1", Active: false},
		{ID: "d2", Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, spotifyapi.ID("d2"), id)
}

func TestLinkedAfterRestore(t *testing.T) {
	ctl, store := newTestController(t)
	assert.False(t, ctl.Linked("user1"))

	token := &oauth2.Token{AccessToken: "at", RefreshToken: "rt", Expiry: time.Now().Add(time.Hour)}
	raw, err := json.Marshal(token)
	require.NoError(t, err)
	require.NoError(t, store.UpsertSpotifyToken("user1", raw))

	fresh := New("client-id", "client-secret", "http://localhost/callback/spotify", store)
	require.NoError(t, fresh.LoadFromStorage())
	assert.True(t, fresh.Linked("user1"))
	assert.False(t, fresh.Linked("user2"))
}

func TestRestoreSkipsGarbageTokens(t *testing.T) {
	ctl, store := newTestController(t)
	require.NoError(t, store.UpsertSpotifyToken("broken", json.RawMessage(`"not a token"`)))
	require.NoError(t, ctl.LoadFromStorage())
	assert.False(t, ctl.Linked("broken"))
}

func TestMapErrorStatuses(t *testing.T) {
	ctl, _ := newTestController(t)

	assert.NoError(t, ctl.mapError("u", nil))
	assert.ErrorIs(t, ctl.mapError("u", spotifyapi.Error{Status: 403}), ErrPremiumRequired)
	assert.ErrorIs(t, ctl.mapError("u", spotifyapi.Error{Status: 404}), ErrNoActiveDevice)
	assert.ErrorIs(t, ctl.mapError("u", spotifyapi.Error{Status: 429}), ErrRateLimited)

	plain := errors.New("connection refused")
	assert.ErrorIs(t, ctl.mapError("u", plain), plain)
}

func TestUnauthorizedInvalidatesCredential(t *testing.T) {
	ctl, store := newTestController(t)

	token := &oauth2.Token{AccessToken: "at", Expiry: time.Now().Add(time.Hour)}
	raw, err := json.Marshal(token)
	require.NoError(t, err)
	require.NoError(t, store.UpsertSpotifyToken("user1", raw))
	require.NoError(t, ctl.LoadFromStorage())
	require.True(t, ctl.Linked("user1"))

	err = ctl.mapError("user1", spotifyapi.Error{Status: 401})
	assert.ErrorIs(t, err, ErrNotLinked)
	assert.False(t, ctl.Linked("user1"))

	_, exists, err := store.SpotifyToken("user1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestOperationsRequireLink(t *testing.T) {
	ctl, _ := newTestController(t)
	_, err := ctl.clientFor("nobody")
	assert.ErrorIs(t, err, ErrNotLinked)
}
