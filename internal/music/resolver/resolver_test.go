package resolver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsPlaylistURL(t *testing.T) {
	cases := map[string]bool{
		"https://www.youtube.com/playlist?list=PLx":        true,
		"https://youtube.com/watch?v=abc&list=PLx":         true,
		"https://soundcloud.com/artist/sets/mixtape":       true,
		"https://www.youtube.com/watch?v=abc":              false,
		"https://soundcloud.com/artist/track":              false,
		"https://example.com/playlist?list=PLx":            false,
		"not a url at all":                                 false,
		"lo-fi beats to queue playlists to":                false,
	}
	for input, want := range cases {
		assert.Equal(t, want, isPlaylistURL(input), input)
	}
}

func TestIsYouTubeVideoURL(t *testing.T) {
	assert.True(t, isYouTubeVideoURL("https://www.youtube.com/watch?v=dQw4w9WgXcQ"))
	assert.True(t, isYouTubeVideoURL("https://youtu.be/dQw4w9WgXcQ"))
	assert.False(t, isYouTubeVideoURL("https://www.youtube.com/playlist?list=PLx"))
	assert.False(t, isYouTubeVideoURL("https://soundcloud.com/a/b"))
	assert.False(t, isYouTubeVideoURL("rick astley"))
}

func TestEntryToTrack(t *testing.T) {
	raw := `{
		"id": "abc123",
		"webpage_url": "https://www.youtube.com/watch?v=abc123",
		"title": "Some Song",
		"uploader": "Some Channel",
		"duration": 215.3,
		"thumbnail": "https://i.ytimg.com/vi/abc123/hq720.jpg",
		"url": "https://cdn.example.com/stream.m4a"
	}`
	var entry ytdlpEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))

	track, err := entryToTrack("abc", &entry)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/stream.m4a", track.StreamURL)
	assert.Equal(t, "https://www.youtube.com/watch?v=abc123", track.SourceURL)
	assert.Equal(t, "Some Song", track.Title)
	assert.Equal(t, "Some Channel", track.Uploader)
	assert.Equal(t, time.Duration(215.3*float64(time.Second)), track.Duration)
	assert.Equal(t, "https://i.ytimg.com/vi/abc123/hq720.jpg", track.ThumbnailURL)
}

func TestEntryToTrackFallsBackToFormats(t *testing.T) {
	raw := `{
		"title": "",
		"channel": "Chan",
		"formats": [{"url": "https://cdn.example.com/f0.m4a", "fragments": [{"duration": 12.5}]}]
	}`
	var entry ytdlpEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entry))

	track, err := entryToTrack("someref", &entry)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/f0.m4a", track.StreamURL)
	assert.Equal(t, "Unknown Title", track.Title)
	assert.Equal(t, "Chan", track.Uploader)
	assert.Equal(t, "someref", track.SourceURL)
	assert.Equal(t, time.Duration(12.5*float64(time.Second)), track.Duration)
}

func TestEntryToTrackRejectsEmptyStream(t *testing.T) {
	var entry ytdlpEntry
	_, err := entryToTrack("ref", &entry)
	require.Error(t, err)
}

func TestClassifyStderr(t *testing.T) {
	cases := []struct {
		stderr string
		want   FailureClass
	}{
		{"ERROR: Private video. Sign in if you've been granted access", FailureAccessRestricted},
		{"ERROR: This video is not available in your country", FailureAccessRestricted},
		{"ERROR: Join this channel to get access to members-only content", FailureAccessRestricted},
		{"ERROR: Video unavailable", FailureNotFound},
		{"ERROR: HTTP Error 404: Not Found", FailureNotFound},
		{"ERROR: something exploded", FailureUnknown},
		{"", FailureUnknown},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifyStderr(tc.stderr), tc.stderr)
	}
}

func TestFailureError(t *testing.T) {
	inner := assert.AnError
	f := &Failure{Class: FailureNotFound, Ref: "xyz", Err: inner}
	assert.ErrorIs(t, f, inner)
	assert.Contains(t, f.Error(), "not found")
	assert.Contains(t, f.Error(), "xyz")
}

func TestPlaylistListingParse(t *testing.T) {
	raw := `{"entries": [
		{"url": "https://www.youtube.com/watch?v=a"},
		{"webpage_url": "https://www.youtube.com/watch?v=b"},
		{"id": "c"}
	]}`
	var listing ytdlpListing
	require.NoError(t, json.Unmarshal([]byte(raw), &listing))
	require.Len(t, listing.Entries, 3)
}
