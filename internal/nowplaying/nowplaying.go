// Package nowplaying merges the two playback surfaces (a user's remote
// Spotify playback and the shared voice queue) into one display snapshot.
package nowplaying

import (
	"context"

	"tunelink/internal/music/engine"
	"tunelink/internal/spotify"
)

// Status values, in precedence order for a linked user: remote playback
// first, then the shared queue, then idle.
const (
	StatusNotLoggedIn   = "not_logged_in"
	StatusPlayingRemote = "playing_remote"
	StatusRemotePaused  = "remote_paused"
	StatusPlayingQueue  = "playing_queue"
	StatusQueuePaused   = "queue_paused"
	StatusNoMusic       = "no_music"
)

// Snapshot is the merged now-playing view served to chat and the web UI.
type Snapshot struct {
	Status      string `json:"status"`
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	CoverArtURL string `json:"cover_art_url,omitempty"`
	ProgressMs  int    `json:"progress_ms,omitempty"`
	DurationMs  int    `json:"duration_ms,omitempty"`
}

// RemoteSource reads a linked user's remote playback.
type RemoteSource interface {
	Linked(userID string) bool
	CurrentPlayback(ctx context.Context, userID string) (*spotify.RemoteSnapshot, error)
}

// QueueSource reads the shared voice queue's current track.
type QueueSource interface {
	NowPlaying(ctx context.Context) (*engine.Current, error)
}

// Projector computes Snapshots. Stateless; safe for concurrent use.
type Projector struct {
	remote RemoteSource
	queue  QueueSource
}

func New(remote RemoteSource, queue QueueSource) *Projector {
	return &Projector{remote: remote, queue: queue}
}

// Project builds the snapshot for userID. An empty userID (or an unlinked
// one) skips the remote surface; remote read errors degrade to the queue
// surface rather than failing the whole view.
func (p *Projector) Project(ctx context.Context, userID string) Snapshot {
	linked := false
	if p.remote != nil && userID != "" {
		linked = p.remote.Linked(userID)
	}

	if linked {
		if remote, err := p.remote.CurrentPlayback(ctx, userID); err == nil && remote != nil {
			status := StatusPlayingRemote
			if !remote.Playing {
				status = StatusRemotePaused
			}
			return Snapshot{
				Status:      status,
				Title:       remote.Title,
				Artist:      remote.Artist,
				CoverArtURL: remote.CoverArtURL,
				ProgressMs:  remote.ProgressMs,
				DurationMs:  remote.DurationMs,
			}
		}
	}

	if p.queue != nil {
		if current, err := p.queue.NowPlaying(ctx); err == nil && current != nil {
			status := StatusPlayingQueue
			if current.Paused {
				status = StatusQueuePaused
			}
			return Snapshot{
				Status:      status,
				Title:       current.Track.Title,
				Artist:      current.Track.Uploader,
				CoverArtURL: current.Track.ThumbnailURL,
				DurationMs:  int(current.Track.Duration.Milliseconds()),
			}
		}
	}

	if !linked {
		return Snapshot{Status: StatusNotLoggedIn}
	}
	return Snapshot{Status: StatusNoMusic}
}
