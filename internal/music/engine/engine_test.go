package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tunelink/internal/music/resolver"
)

type fakeSession struct {
	mu        sync.Mutex
	connected bool
	playing   bool
	paused    bool
	volume    float64
	onDone    func(error)
	playCount int
	played    []string
}

func newFakeSession() *fakeSession {
	return &fakeSession{connected: true, volume: 1.0}
}

func (f *fakeSession) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) ChannelID() string { return "voice-chan" }

func (f *fakeSession) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeSession) Paused() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.paused
}

func (f *fakeSession) Play(streamURL string, onDone func(error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.playing {
		return errors.New("already playing")
	}
	f.playing = true
	f.onDone = onDone
	f.playCount++
	f.played = append(f.played, streamURL)
	return nil
}

func (f *fakeSession) Stop() {
	f.mu.Lock()
	if !f.playing {
		f.mu.Unlock()
		return
	}
	f.playing = false
	done := f.onDone
	f.onDone = nil
	f.mu.Unlock()
	if done != nil {
		go done(nil)
	}
}

// finish simulates the source ending on its own.
func (f *fakeSession) finish(err error) {
	f.mu.Lock()
	f.playing = false
	done := f.onDone
	f.onDone = nil
	f.mu.Unlock()
	if done != nil {
		done(err)
	}
}

func (f *fakeSession) Pause() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.playing {
		return errors.New("not playing")
	}
	f.paused = true
	return nil
}

func (f *fakeSession) Resume() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
	return nil
}

func (f *fakeSession) SetVolume(v float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v < 0.1 {
		v = 0.1
	}
	if v > 2.0 {
		v = 2.0
	}
	f.volume = v
	return v
}

func (f *fakeSession) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeSession) Join(channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = true
	return nil
}

func (f *fakeSession) Leave() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeSession) plays() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playCount
}

func (f *fakeSession) playedRefs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.played))
	copy(out, f.played)
	return out
}

type fakeResolver struct {
	mu       sync.Mutex
	resolved []string
	fn       func(ref string) (*resolver.Resolution, error)
}

func (f *fakeResolver) Resolve(_ context.Context, ref string) (*resolver.Resolution, error) {
	f.mu.Lock()
	f.resolved = append(f.resolved, ref)
	f.mu.Unlock()
	return f.fn(ref)
}

func (f *fakeResolver) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.resolved))
	copy(out, f.resolved)
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeNotifier) Notify(_, message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, message)
}

func (f *fakeNotifier) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func singleTrack(ref string) (*resolver.Resolution, error) {
	return &resolver.Resolution{
		Kind: resolver.KindSingle,
		Track: &resolver.ResolvedTrack{
			SourceURL: ref,
			StreamURL: "stream://" + ref,
			Title:     "title of " + ref,
		},
	}, nil
}

func startEngine(t *testing.T, session *fakeSession, res *fakeResolver, notifier *fakeNotifier) *Engine {
	t.Helper()
	e := New(session, res, notifier, WithSettleDelay(10*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go e.Run(ctx)
	e.SetReady()
	return e
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNotReadyUntilGateOpens(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: singleTrack}
	e := New(session, res, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go e.Run(ctx)

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer shortCancel()
	err := e.Enqueue(shortCtx, "https://example.com/a")
	require.ErrorIs(t, err, ErrNotReady)

	e.SetReady()
	require.NoError(t, e.Enqueue(testCtx(t), "https://example.com/a"))
}

func TestHappyPath(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: singleTrack}
	notifier := &fakeNotifier{}
	e := startEngine(t, session, res, notifier)

	require.NoError(t, e.Enqueue(testCtx(t), "songA"))
	require.NoError(t, e.Advance(testCtx(t), "text-chan"))

	require.Eventually(t, session.Playing, time.Second, 5*time.Millisecond)

	current, err := e.NowPlaying(testCtx(t))
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "title of songA", current.Track.Title)

	pending, err := e.Pending(testCtx(t))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAtMostOneSourcePlaying(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: singleTrack}
	e := startEngine(t, session, res, &fakeNotifier{})

	require.NoError(t, e.Enqueue(testCtx(t), "songA"))
	require.NoError(t, e.Enqueue(testCtx(t), "songB"))
	require.NoError(t, e.Advance(testCtx(t), ""))
	require.Eventually(t, session.Playing, time.Second, 5*time.Millisecond)

	// Further advances while playing must not start a second source.
	require.NoError(t, e.Advance(testCtx(t), ""))
	require.NoError(t, e.Advance(testCtx(t), ""))
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, 1, session.plays())
	pending, err := e.Pending(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"songB"}, pending)
}

func TestCompletionChainsToNextTrack(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: singleTrack}
	e := startEngine(t, session, res, &fakeNotifier{})

	require.NoError(t, e.Enqueue(testCtx(t), "songA"))
	require.NoError(t, e.Enqueue(testCtx(t), "songB"))
	require.NoError(t, e.Advance(testCtx(t), ""))
	require.Eventually(t, session.Playing, time.Second, 5*time.Millisecond)

	session.finish(nil)

	require.Eventually(t, func() bool {
		return session.plays() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"stream://songA", "stream://songB"}, session.playedRefs())
}

func TestFailingQueueDrainsAndTerminates(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: func(ref string) (*resolver.Resolution, error) {
		return nil, &resolver.Failure{Class: resolver.FailureNotFound, Ref: ref, Err: errors.New("gone")}
	}}
	notifier := &fakeNotifier{}
	e := startEngine(t, session, res, notifier)

	const n = 4
	for i := 0; i < n; i++ {
		require.NoError(t, e.Enqueue(testCtx(t), fmt.Sprintf("bad%d", i)))
	}
	require.NoError(t, e.Advance(testCtx(t), ""))

	// Every entry gets exactly one resolution attempt, then the queue ends.
	require.Eventually(t, func() bool {
		return len(res.calls()) == n
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		pending, err := e.Pending(testCtx(t))
		return err == nil && len(pending) == 0
	}, 2*time.Second, 5*time.Millisecond)

	assert.Zero(t, session.plays())
	require.Eventually(t, func() bool {
		for _, m := range notifier.messages() {
			if m == "✅ Queue finished!" {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}

func TestFailureThenRecovery(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: func(ref string) (*resolver.Resolution, error) {
		if ref == "bad" {
			return nil, &resolver.Failure{Class: resolver.FailureAccessRestricted, Ref: ref, Err: errors.New("private")}
		}
		return singleTrack(ref)
	}}
	e := startEngine(t, session, res, &fakeNotifier{})

	require.NoError(t, e.Enqueue(testCtx(t), "bad"))
	require.NoError(t, e.Enqueue(testCtx(t), "good"))
	require.NoError(t, e.Advance(testCtx(t), ""))

	require.Eventually(t, func() bool {
		return session.plays() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"stream://good"}, session.playedRefs())
}

func TestPlaylistExpansionPreservesOrder(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: func(ref string) (*resolver.Resolution, error) {
		if ref == "playlist" {
			return &resolver.Resolution{
				Kind:     resolver.KindPlaylist,
				Siblings: []string{"s1", "s2", "s3"},
			}, nil
		}
		return singleTrack(ref)
	}}
	e := startEngine(t, session, res, &fakeNotifier{})

	// Something already queued behind the playlist must stay behind it.
	require.NoError(t, e.Enqueue(testCtx(t), "playlist"))
	require.NoError(t, e.Enqueue(testCtx(t), "after"))
	require.NoError(t, e.Advance(testCtx(t), ""))

	require.Eventually(t, session.Playing, time.Second, 5*time.Millisecond)

	pending, err := e.Pending(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"s2", "s3", "after"}, pending)
	assert.Equal(t, []string{"stream://s1"}, session.playedRefs())

	for session.plays() < 4 {
		session.finish(nil)
		time.Sleep(20 * time.Millisecond)
	}
	assert.Equal(t, []string{"stream://s1", "stream://s2", "stream://s3", "stream://after"}, session.playedRefs())
}

func TestStopClearsQueue(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: singleTrack}
	e := startEngine(t, session, res, &fakeNotifier{})

	require.NoError(t, e.Enqueue(testCtx(t), "songA"))
	require.NoError(t, e.Enqueue(testCtx(t), "songB"))
	require.NoError(t, e.Advance(testCtx(t), ""))
	require.Eventually(t, session.Playing, time.Second, 5*time.Millisecond)

	require.NoError(t, e.Stop(testCtx(t)))

	pending, err := e.Pending(testCtx(t))
	require.NoError(t, err)
	assert.Empty(t, pending)

	current, err := e.NowPlaying(testCtx(t))
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestSkipWhileIdle(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: singleTrack}
	e := startEngine(t, session, res, &fakeNotifier{})

	// Queued but not started: skipping must say nothing is playing, not
	// complain about the queue, and must leave the queue alone.
	require.NoError(t, e.Enqueue(testCtx(t), "songA"))
	err := e.Skip(testCtx(t))
	require.ErrorIs(t, err, ErrNotPlaying)

	pending, err := e.Pending(testCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"songA"}, pending)
}

func TestStopDuringResolveDropsTrack(t *testing.T) {
	session := newFakeSession()
	gate := make(chan struct{})
	res := &fakeResolver{fn: func(ref string) (*resolver.Resolution, error) {
		if ref == "slow" {
			<-gate
		}
		return singleTrack(ref)
	}}
	e := startEngine(t, session, res, &fakeNotifier{})

	require.NoError(t, e.Enqueue(testCtx(t), "slow"))
	require.NoError(t, e.Advance(testCtx(t), ""))
	require.Eventually(t, func() bool {
		return len(res.calls()) == 1
	}, time.Second, 5*time.Millisecond)

	// Stop lands while the resolve is still in flight. When it completes,
	// the popped track must not start playing.
	require.NoError(t, e.Stop(testCtx(t)))
	close(gate)
	time.Sleep(50 * time.Millisecond)

	assert.Zero(t, session.plays())
	current, err := e.NowPlaying(testCtx(t))
	require.NoError(t, err)
	assert.Nil(t, current)

	// The engine stays usable afterwards.
	require.NoError(t, e.Enqueue(testCtx(t), "songB"))
	require.NoError(t, e.Advance(testCtx(t), ""))
	require.Eventually(t, func() bool {
		return session.plays() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"stream://songB"}, session.playedRefs())
}

func TestLeaveClearsQueue(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: singleTrack}
	e := startEngine(t, session, res, &fakeNotifier{})

	require.NoError(t, e.Enqueue(testCtx(t), "songA"))
	require.NoError(t, e.Leave(testCtx(t)))

	assert.False(t, session.Connected())
	pending, err := e.Pending(testCtx(t))
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestAdvanceWithoutConnection(t *testing.T) {
	session := newFakeSession()
	session.connected = false
	res := &fakeResolver{fn: singleTrack}
	e := startEngine(t, session, res, &fakeNotifier{})

	require.NoError(t, e.Enqueue(testCtx(t), "songA"))
	err := e.Advance(testCtx(t), "")
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestVolumeAdjustClamped(t *testing.T) {
	session := newFakeSession()
	res := &fakeResolver{fn: singleTrack}
	e := startEngine(t, session, res, &fakeNotifier{})

	v, err := e.SetVolume(testCtx(t), 1.9)
	require.NoError(t, err)
	assert.InDelta(t, 1.9, v, 0.001)

	v, err = e.AdjustVolume(testCtx(t), 0.5)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, v, 0.001)

	v, err = e.AdjustVolume(testCtx(t), -5)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, v, 0.001)
}
