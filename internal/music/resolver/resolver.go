// Package resolver turns user-supplied source references (URLs or search
// text) into playable tracks via yt-dlp, with a library fallback for plain
// YouTube video links.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Kind classifies a resolution result.
type Kind int

const (
	KindSingle Kind = iota
	KindPlaylist
)

// ResolvedTrack is the concrete playable stream plus display metadata for a
// single source reference. It is ephemeral: held only until playback starts.
type ResolvedTrack struct {
	SourceURL    string
	StreamURL    string
	Title        string
	Uploader     string
	Duration     time.Duration
	ThumbnailURL string
}

// Resolution is the outcome of resolving one source reference.
// For KindPlaylist, Siblings holds the flattened entry URLs in original
// order; they are not directly playable and must be re-resolved one by one.
type Resolution struct {
	Kind     Kind
	Track    *ResolvedTrack
	Siblings []string
}

// FailureClass buckets resolution errors for user-facing reporting.
type FailureClass int

const (
	FailureUnknown FailureClass = iota
	FailureAccessRestricted
	FailureNotFound
)

func (c FailureClass) String() string {
	switch c {
	case FailureAccessRestricted:
		return "access restricted"
	case FailureNotFound:
		return "not found"
	default:
		return "unknown"
	}
}

// Failure is a classified resolution error.
type Failure struct {
	Class FailureClass
	Ref   string
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("resolve %q: %s: %v", f.Ref, f.Class, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Resolver resolves source references by shelling out to yt-dlp.
// It performs blocking network I/O and must never be called from the
// engine's control loop directly.
type Resolver struct {
	ytdlpPath string
	fallback  *kkdaiFallback
}

func New(ytdlpPath string) *Resolver {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &Resolver{
		ytdlpPath: ytdlpPath,
		fallback:  newKKDAIFallback(),
	}
}

// Resolve classifies ref as a playlist or single item and resolves it.
// Errors are *Failure where classification was possible. No retries are
// attempted here; retry-next policy belongs to the caller.
func (r *Resolver) Resolve(ctx context.Context, ref string) (*Resolution, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, &Failure{Class: FailureNotFound, Ref: ref, Err: errors.New("empty source reference")}
	}

	if isPlaylistURL(ref) {
		siblings, err := r.flattenPlaylist(ctx, ref)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("component", "resolver").Str("ref", ref).Int("entries", len(siblings)).Msg("expanded playlist")
		return &Resolution{Kind: KindPlaylist, Siblings: siblings}, nil
	}

	track, err := r.resolveSingle(ctx, ref)
	if err != nil {
		var failure *Failure
		if errors.As(err, &failure) && failure.Class != FailureUnknown {
			return nil, err
		}
		// yt-dlp missing or errored without classification: try the
		// library client for plain YouTube video URLs.
		if isYouTubeVideoURL(ref) {
			if track, fbErr := r.fallback.resolve(ctx, ref); fbErr == nil {
				log.Debug().Str("component", "resolver").Str("ref", ref).Msg("resolved via library fallback")
				return &Resolution{Kind: KindSingle, Track: track}, nil
			}
		}
		return nil, err
	}
	return &Resolution{Kind: KindSingle, Track: track}, nil
}

func isURL(input string) bool {
	u, err := url.Parse(input)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// isPlaylistURL detects flattenable listing URLs: YouTube playlists and
// SoundCloud sets. A watch URL carrying a list parameter counts too.
func isPlaylistURL(input string) bool {
	if !isURL(input) {
		return false
	}
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	switch {
	case strings.Contains(host, "youtube.com"):
		return strings.HasPrefix(u.Path, "/playlist") || u.Query().Get("list") != ""
	case strings.Contains(host, "soundcloud.com"):
		return strings.Contains(u.Path, "/sets/")
	}
	return false
}

func isYouTubeVideoURL(input string) bool {
	if !isURL(input) {
		return false
	}
	u, err := url.Parse(input)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(u.Host, "www.")
	if host == "youtu.be" {
		return len(u.Path) > 1
	}
	return strings.Contains(host, "youtube.com") && u.Path == "/watch" && u.Query().Get("v") != ""
}
