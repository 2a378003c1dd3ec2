package voice

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"
)

// openPCM launches ffmpeg decoding the source into raw s16le 48kHz stereo
// on stdout. The reconnect flags cover flaky CDN stream URLs; they are http
// protocol options and must not be passed for local files.
func (s *Session) openPCM(streamURL string) (io.ReadCloser, func(), error) {
	var args []string
	if strings.HasPrefix(streamURL, "http://") || strings.HasPrefix(streamURL, "https://") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
		)
	}
	args = append(args,
		"-i", streamURL,
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-ac", fmt.Sprintf("%d", channels),
		"-loglevel", "warning",
		"pipe:1",
	)
	ffmpeg := exec.Command(s.ffmpegPath, args...)

	reader, err := ffmpeg.StdoutPipe()
	if err != nil {
		return nil, nil, fmt.Errorf("stdout pipe error: %w", err)
	}

	if err := ffmpeg.Start(); err != nil {
		return nil, nil, fmt.Errorf("ffmpeg start error: %w", err)
	}

	cleanup := func() {
		_ = ffmpeg.Process.Kill()
		_ = ffmpeg.Wait()
	}

	return reader, cleanup, nil
}

// stream encodes PCM frames to opus and feeds the voice connection until
// end-of-stream or stop. Returns nil on either; a non-nil error means the
// source failed mid-stream.
func (s *Session) stream(pcm io.ReadCloser, vc *discordgo.VoiceConnection, stop <-chan struct{}) error {
	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return fmt.Errorf("encoder error: %w", err)
	}

	defer pcm.Close()

	_ = vc.Speaking(true)
	defer func() { _ = vc.Speaking(false) }()

	pcmBuf := make([]byte, frameSize*channels*2)
	intBuf := make([]int16, frameSize*channels)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		if s.Paused() {
			time.Sleep(20 * time.Millisecond)
			continue
		}

		if _, err := io.ReadFull(pcm, pcmBuf); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		volume := s.Volume()
		for i := range intBuf {
			sample := int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
			intBuf[i] = scaleSample(sample, volume)
		}

		opus, err := encoder.Encode(intBuf, frameSize, len(pcmBuf))
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		select {
		case <-stop:
			return nil
		case vc.OpusSend <- opus:
		}
	}
}

// scaleSample applies the volume multiplier with clipping.
func scaleSample(sample int16, volume float64) int16 {
	scaled := float64(sample) * volume
	switch {
	case scaled > 32767:
		return 32767
	case scaled < -32768:
		return -32768
	default:
		return int16(scaled)
	}
}
