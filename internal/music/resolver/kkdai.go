package resolver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	youtube "github.com/kkdai/youtube/v2"
)

// kkdaiFallback resolves plain YouTube video URLs through the kkdai client
// when yt-dlp is unavailable or fails without a usable classification.
type kkdaiFallback struct {
	client *youtube.Client
}

func newKKDAIFallback() *kkdaiFallback {
	return &kkdaiFallback{
		client: &youtube.Client{
			HTTPClient: &http.Client{Timeout: 15 * time.Second},
		},
	}
}

func (f *kkdaiFallback) resolve(ctx context.Context, ref string) (*ResolvedTrack, error) {
	video, err := f.client.GetVideoContext(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("youtube client: %w", err)
	}

	formats := video.Formats.WithAudioChannels()
	if len(formats) == 0 {
		return nil, fmt.Errorf("no audio formats found for video %s", video.ID)
	}

	streamURL, err := f.client.GetStreamURLContext(ctx, video, &formats[0])
	if err != nil {
		return nil, fmt.Errorf("get stream URL: %w", err)
	}

	var thumbnail string
	if len(video.Thumbnails) > 0 {
		thumbnail = video.Thumbnails[len(video.Thumbnails)-1].URL
	}

	return &ResolvedTrack{
		SourceURL:    ref,
		StreamURL:    streamURL,
		Title:        video.Title,
		Uploader:     video.Author,
		Duration:     video.Duration,
		ThumbnailURL: thumbnail,
	}, nil
}
