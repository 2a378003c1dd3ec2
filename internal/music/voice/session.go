// Package voice owns the process-wide Discord voice connection and the
// single active audio source playing through it.
package voice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const (
	channels   = 2
	sampleRate = 48000
	frameSize  = 960 // 20ms at 48kHz

	// Volume bounds for the locally synthesized stream. Remote-service
	// volume is server-side and never touched here.
	MinVolume     = 0.1
	MaxVolume     = 2.0
	DefaultVolume = 1.0
	VolumeStep    = 0.1
)

var (
	ErrNotConnected   = errors.New("not connected to a voice channel")
	ErrAlreadyPlaying = errors.New("an audio source is already playing")
	ErrNotPlaying     = errors.New("no audio source is playing")
	ErrNotPaused      = errors.New("playback is not paused")
)

// Session is the singleton voice connection wrapper. At most one audio
// source may be active; a second Play without an intervening stop is
// rejected.
type Session struct {
	mu         sync.Mutex
	dg         *discordgo.Session
	guildID    string
	ffmpegPath string

	vc      *discordgo.VoiceConnection
	playing bool
	paused  bool
	volume  float64
	stop    chan struct{}
}

func New(dg *discordgo.Session, guildID, ffmpegPath string) *Session {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return &Session{
		dg:         dg,
		guildID:    guildID,
		ffmpegPath: ffmpegPath,
		volume:     DefaultVolume,
	}
}

// Join connects to the given voice channel. Already being there is a no-op;
// being elsewhere moves the connection.
func (s *Session) Join(channelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc != nil && s.vc.ChannelID == channelID {
		return nil
	}

	vc, err := s.dg.ChannelVoiceJoin(s.guildID, channelID, false, true)
	if err != nil {
		return fmt.Errorf("join voice channel: %w", err)
	}
	s.vc = vc
	log.Info().Str("component", "voice").Str("channel", channelID).Msg("joined voice channel")
	return nil
}

// Leave stops any active source and disconnects.
func (s *Session) Leave() error {
	s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return ErrNotConnected
	}
	err := s.vc.Disconnect()
	s.vc = nil
	log.Info().Str("component", "voice").Msg("left voice channel")
	return err
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vc != nil
}

// ChannelID returns the connected channel, or "".
func (s *Session) ChannelID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vc == nil {
		return ""
	}
	return s.vc.ChannelID
}

func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Play starts streaming the given URL (or local file) through the voice
// connection. onDone is invoked exactly once when the source ends, with a
// nil error on natural end-of-stream or explicit stop.
func (s *Session) Play(streamURL string, onDone func(error)) error {
	s.mu.Lock()
	if s.vc == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	if s.playing {
		s.mu.Unlock()
		return ErrAlreadyPlaying
	}

	pcm, cleanup, err := s.openPCM(streamURL)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	stop := make(chan struct{})
	s.stop = stop
	s.playing = true
	s.paused = false
	vc := s.vc
	s.mu.Unlock()

	var once sync.Once
	done := func(err error) {
		s.mu.Lock()
		s.playing = false
		s.paused = false
		s.mu.Unlock()
		once.Do(func() {
			if onDone != nil {
				onDone(err)
			}
		})
	}

	go func() {
		defer cleanup()
		err := s.stream(pcm, vc, stop)
		done(err)
	}()

	return nil
}

// Stop terminates the active source, if any. The source's completion
// callback still fires (with a nil error).
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || s.stop == nil {
		return
	}
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	s.paused = false
}

func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return ErrNotPlaying
	}
	s.paused = true
	return nil
}

func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		return ErrNotPlaying
	}
	if !s.paused {
		return ErrNotPaused
	}
	s.paused = false
	return nil
}

// SetVolume clamps v into [MinVolume, MaxVolume] and applies it to the
// active and future sources. Returns the applied value.
func (s *Session) SetVolume(v float64) float64 {
	v = clampVolume(v)
	s.mu.Lock()
	s.volume = v
	s.mu.Unlock()
	return v
}

func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func clampVolume(v float64) float64 {
	if v < MinVolume {
		return MinVolume
	}
	if v > MaxVolume {
		return MaxVolume
	}
	return v
}
