package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampVolume(t *testing.T) {
	assert.Equal(t, MinVolume, clampVolume(0))
	assert.Equal(t, MinVolume, clampVolume(-3))
	assert.Equal(t, MaxVolume, clampVolume(2.5))
	assert.Equal(t, 1.0, clampVolume(1.0))
	assert.InDelta(t, 0.7, clampVolume(0.7), 0.0001)
}

func TestScaleSample(t *testing.T) {
	assert.Equal(t, int16(1000), scaleSample(1000, 1.0))
	assert.Equal(t, int16(500), scaleSample(1000, 0.5))
	assert.Equal(t, int16(2000), scaleSample(1000, 2.0))

	// Clipping at the int16 bounds instead of wrapping.
	assert.Equal(t, int16(32767), scaleSample(20000, 2.0))
	assert.Equal(t, int16(-32768), scaleSample(-20000, 2.0))
}

func TestSessionVolumeClamped(t *testing.T) {
	s := New(nil, "guild", "")
	assert.Equal(t, DefaultVolume, s.Volume())

	assert.Equal(t, MaxVolume, s.SetVolume(9))
	assert.Equal(t, MaxVolume, s.Volume())

	assert.Equal(t, MinVolume, s.SetVolume(0.01))
	assert.Equal(t, MinVolume, s.Volume())
}

func TestPauseResumeRequirePlayback(t *testing.T) {
	s := New(nil, "guild", "")
	assert.ErrorIs(t, s.Pause(), ErrNotPlaying)
	assert.ErrorIs(t, s.Resume(), ErrNotPlaying)
	assert.False(t, s.Connected())
	assert.Empty(t, s.ChannelID())
}
