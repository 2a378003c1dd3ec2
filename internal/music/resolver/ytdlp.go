package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

type ytdlpEntry struct {
	ID         string  `json:"id"`
	URL        string  `json:"url"`
	WebpageURL string  `json:"webpage_url"`
	Title      string  `json:"title"`
	Uploader   string  `json:"uploader"`
	Channel    string  `json:"channel"`
	Duration   float64 `json:"duration"`
	Thumbnail  string  `json:"thumbnail"`
	Formats    []struct {
		URL       string `json:"url"`
		Fragments []struct {
			Duration float64 `json:"duration"`
		} `json:"fragments,omitempty"`
	} `json:"formats"`
}

type ytdlpListing struct {
	Entries []ytdlpEntry `json:"entries"`
}

// resolveSingle runs yt-dlp against a single video URL or free-text search
// and extracts the playable stream URL plus display metadata.
func (r *Resolver) resolveSingle(ctx context.Context, ref string) (*ResolvedTrack, error) {
	target := ref
	if !isURL(ref) {
		target = "ytsearch1:" + ref
	}

	cmd := exec.CommandContext(ctx, r.ytdlpPath, "-j", "--no-playlist", "-f", "bestaudio/best", target)
	output, err := cmd.Output()
	if err != nil {
		return nil, classifyExecError(ref, err)
	}

	var entry ytdlpEntry
	if err := json.Unmarshal(output, &entry); err != nil {
		return nil, &Failure{Class: FailureUnknown, Ref: ref, Err: fmt.Errorf("yt-dlp json unmarshal: %w", err)}
	}

	track, err := entryToTrack(ref, &entry)
	if err != nil {
		return nil, &Failure{Class: FailureUnknown, Ref: ref, Err: err}
	}
	return track, nil
}

// flattenPlaylist lists a playlist without resolving its entries.
// The flat listing carries no playable stream URLs.
func (r *Resolver) flattenPlaylist(ctx context.Context, ref string) ([]string, error) {
	cmd := exec.CommandContext(ctx, r.ytdlpPath, "-J", "--flat-playlist", ref)
	output, err := cmd.Output()
	if err != nil {
		return nil, classifyExecError(ref, err)
	}

	var listing ytdlpListing
	if err := json.Unmarshal(output, &listing); err != nil {
		return nil, &Failure{Class: FailureUnknown, Ref: ref, Err: fmt.Errorf("yt-dlp json unmarshal: %w", err)}
	}
	if len(listing.Entries) == 0 {
		return nil, &Failure{Class: FailureNotFound, Ref: ref, Err: errors.New("playlist has no entries")}
	}

	siblings := make([]string, 0, len(listing.Entries))
	for _, entry := range listing.Entries {
		switch {
		case entry.URL != "":
			siblings = append(siblings, entry.URL)
		case entry.WebpageURL != "":
			siblings = append(siblings, entry.WebpageURL)
		case entry.ID != "":
			siblings = append(siblings, "https://www.youtube.com/watch?v="+entry.ID)
		}
	}
	if len(siblings) == 0 {
		return nil, &Failure{Class: FailureNotFound, Ref: ref, Err: errors.New("playlist entries carry no URLs")}
	}
	return siblings, nil
}

func entryToTrack(ref string, entry *ytdlpEntry) (*ResolvedTrack, error) {
	streamURL := strings.TrimSpace(entry.URL)
	if streamURL == "" && len(entry.Formats) > 0 {
		streamURL = strings.TrimSpace(entry.Formats[0].URL)
	}
	if streamURL == "" {
		return nil, errors.New("empty stream URL returned from yt-dlp")
	}

	duration := entry.Duration
	if duration == 0 && len(entry.Formats) > 0 && len(entry.Formats[0].Fragments) > 0 {
		duration = entry.Formats[0].Fragments[0].Duration
	}

	title := entry.Title
	if title == "" {
		title = "Unknown Title"
	}
	uploader := entry.Uploader
	if uploader == "" {
		uploader = entry.Channel
	}

	sourceURL := entry.WebpageURL
	if sourceURL == "" {
		sourceURL = ref
	}

	return &ResolvedTrack{
		SourceURL:    sourceURL,
		StreamURL:    streamURL,
		Title:        title,
		Uploader:     uploader,
		Duration:     time.Duration(duration * float64(time.Second)),
		ThumbnailURL: entry.Thumbnail,
	}, nil
}

// classifyExecError maps a yt-dlp process failure onto a FailureClass using
// its stderr output.
func classifyExecError(ref string, err error) *Failure {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		// binary missing, context cancelled, etc.
		return &Failure{Class: FailureUnknown, Ref: ref, Err: fmt.Errorf("yt-dlp: %w", err)}
	}
	return &Failure{Class: classifyStderr(string(exitErr.Stderr)), Ref: ref, Err: fmt.Errorf("yt-dlp: %w", err)}
}

func classifyStderr(stderr string) FailureClass {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "private video"),
		strings.Contains(lower, "sign in"),
		strings.Contains(lower, "members-only"),
		strings.Contains(lower, "age-restricted"),
		strings.Contains(lower, "not available in your country"),
		strings.Contains(lower, "region"):
		return FailureAccessRestricted
	case strings.Contains(lower, "does not exist"),
		strings.Contains(lower, "video unavailable"),
		strings.Contains(lower, "not found"),
		strings.Contains(lower, "404"),
		strings.Contains(lower, "no video results"):
		return FailureNotFound
	default:
		return FailureUnknown
	}
}
