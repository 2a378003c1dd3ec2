// Package engine sequences playback of queued source references through the
// voice session. All queue and now-playing state is owned by a single
// control loop; other goroutines (slash handlers, the web server, playback
// completion) reach it only through message passing.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"tunelink/internal/music/resolver"
)

var (
	ErrNotReady     = errors.New("engine is not ready yet")
	ErrTimeout      = errors.New("engine request timed out")
	ErrNotConnected = errors.New("not connected to a voice channel")
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrNotPlaying   = errors.New("nothing is playing")
	ErrClosed       = errors.New("engine is shut down")
)

// AudioSession is the voice-connection surface the engine drives.
// Implemented by voice.Session.
type AudioSession interface {
	Connected() bool
	ChannelID() string
	Playing() bool
	Paused() bool
	Play(streamURL string, onDone func(error)) error
	Stop()
	Pause() error
	Resume() error
	SetVolume(v float64) float64
	Volume() float64
	Join(channelID string) error
	Leave() error
}

// TrackResolver resolves a source reference into a playable track or a
// playlist expansion. Blocking; the engine always calls it off-loop.
type TrackResolver interface {
	Resolve(ctx context.Context, ref string) (*resolver.Resolution, error)
}

// Notifier delivers user-facing playback messages to a text channel.
type Notifier interface {
	Notify(channelID, message string)
}

// Current is the cached now-playing projection of the queue side.
type Current struct {
	Track  resolver.ResolvedTrack
	Paused bool
}

// Engine is the queue playback state machine. Construct with New, start the
// loop with Run, and gate external calls with SetReady.
type Engine struct {
	session  AudioSession
	resolver TrackResolver
	notifier Notifier

	reqs   chan request
	events chan event
	ready  chan struct{}
	done   chan struct{}

	settleDelay    time.Duration
	resolveTimeout time.Duration

	// Loop-owned state. Never touched outside the run loop.
	queue      []string
	nowPlaying *resolver.ResolvedTrack
	resolving  bool
	// gen stamps in-flight resolves and settle timers. Stop and Leave bump
	// it, so a resolve racing a stop cannot start playback afterwards.
	gen int
}

// Option tweaks engine timing, mainly for tests.
type Option func(*Engine)

// WithSettleDelay sets the pause before advancing past a failed resolution.
func WithSettleDelay(d time.Duration) Option {
	return func(e *Engine) { e.settleDelay = d }
}

// WithResolveTimeout bounds a single resolution attempt.
func WithResolveTimeout(d time.Duration) Option {
	return func(e *Engine) { e.resolveTimeout = d }
}

func New(session AudioSession, res TrackResolver, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		session:        session,
		resolver:       res,
		notifier:       notifier,
		reqs:           make(chan request),
		events:         make(chan event, 16),
		ready:          make(chan struct{}),
		done:           make(chan struct{}),
		settleDelay:    time.Second,
		resolveTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetReady opens the readiness gate. Called once the chat session is up.
func (e *Engine) SetReady() {
	select {
	case <-e.ready:
	default:
		close(e.ready)
	}
}

// Run drives the control loop until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-e.reqs:
			r.reply <- e.handle(r)
		case ev := <-e.events:
			e.handleEvent(ev)
		}
	}
}

type opKind int

const (
	opEnqueue opKind = iota
	opAdvance
	opSkip
	opStop
	opPause
	opResume
	opSetVolume
	opAdjustVolume
	opJoin
	opLeave
	opNowPlaying
	opPending
)

type request struct {
	kind      opKind
	ref       string
	channelID string
	volume    float64
	reply     chan response
}

type response struct {
	err     error
	current *Current
	pending []string
	volume  float64
}

// submit awaits the readiness gate, then the loop, then the reply, each
// step bounded by ctx. Timeouts surface as errors, never silent drops.
func (e *Engine) submit(ctx context.Context, r request) (response, error) {
	select {
	case <-e.ready:
	case <-e.done:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ErrNotReady
	}

	r.reply = make(chan response, 1)
	select {
	case e.reqs <- r:
	case <-e.done:
		return response{}, ErrClosed
	case <-ctx.Done():
		return response{}, ErrTimeout
	}

	select {
	case resp := <-r.reply:
		return resp, resp.err
	case <-ctx.Done():
		return response{}, ErrTimeout
	}
}

// Enqueue appends a source reference to the queue. It does not start
// playback; callers decide whether to trigger Advance.
func (e *Engine) Enqueue(ctx context.Context, ref string) error {
	_, err := e.submit(ctx, request{kind: opEnqueue, ref: ref})
	return err
}

// Advance pops and plays the next reference if the session is connected and
// idle. Calling it while playing or resolving is a no-op.
// notifyChannelID receives playback messages; empty means the voice
// channel's own text chat.
func (e *Engine) Advance(ctx context.Context, notifyChannelID string) error {
	_, err := e.submit(ctx, request{kind: opAdvance, channelID: notifyChannelID})
	return err
}

// Skip stops the current source; the completion callback auto-advances.
func (e *Engine) Skip(ctx context.Context) error {
	_, err := e.submit(ctx, request{kind: opSkip})
	return err
}

// Stop clears the queue and stops playback.
func (e *Engine) Stop(ctx context.Context) error {
	_, err := e.submit(ctx, request{kind: opStop})
	return err
}

func (e *Engine) Pause(ctx context.Context) error {
	_, err := e.submit(ctx, request{kind: opPause})
	return err
}

func (e *Engine) Resume(ctx context.Context) error {
	_, err := e.submit(ctx, request{kind: opResume})
	return err
}

// SetVolume applies a clamped volume to the local stream and returns the
// effective value. Remote-service volume is never touched.
func (e *Engine) SetVolume(ctx context.Context, v float64) (float64, error) {
	resp, err := e.submit(ctx, request{kind: opSetVolume, volume: v})
	return resp.volume, err
}

// AdjustVolume shifts the volume by delta (clamped) and returns the result.
func (e *Engine) AdjustVolume(ctx context.Context, delta float64) (float64, error) {
	resp, err := e.submit(ctx, request{kind: opAdjustVolume, volume: delta})
	return resp.volume, err
}

// Join connects (or moves) the voice session to channelID.
func (e *Engine) Join(ctx context.Context, channelID string) error {
	_, err := e.submit(ctx, request{kind: opJoin, channelID: channelID})
	return err
}

// Leave disconnects and clears the queue: a disconnected session has no
// sink, so pending references are dropped rather than left to surprise the
// next join.
func (e *Engine) Leave(ctx context.Context) error {
	_, err := e.submit(ctx, request{kind: opLeave})
	return err
}

// NowPlaying returns the cached queue-side playback metadata, or nil.
func (e *Engine) NowPlaying(ctx context.Context) (*Current, error) {
	resp, err := e.submit(ctx, request{kind: opNowPlaying})
	return resp.current, err
}

// Pending returns a copy of the queued references.
func (e *Engine) Pending(ctx context.Context) ([]string, error) {
	resp, err := e.submit(ctx, request{kind: opPending})
	return resp.pending, err
}

func (e *Engine) handle(r request) response {
	switch r.kind {
	case opEnqueue:
		e.queue = append(e.queue, r.ref)
		log.Info().Str("component", "engine").Str("ref", r.ref).Int("queue_len", len(e.queue)).Msg("enqueued")
		return response{}
	case opAdvance:
		return response{err: e.advance(r.channelID)}
	case opSkip:
		if !e.session.Playing() {
			return response{err: ErrNotPlaying}
		}
		e.session.Stop()
		return response{}
	case opStop:
		e.gen++
		e.queue = nil
		e.nowPlaying = nil
		e.session.Stop()
		return response{}
	case opPause:
		return response{err: e.session.Pause()}
	case opResume:
		return response{err: e.session.Resume()}
	case opSetVolume:
		return response{volume: e.session.SetVolume(r.volume)}
	case opAdjustVolume:
		return response{volume: e.session.SetVolume(e.session.Volume() + r.volume)}
	case opJoin:
		return response{err: e.session.Join(r.channelID)}
	case opLeave:
		e.gen++
		e.queue = nil
		e.nowPlaying = nil
		e.session.Stop()
		return response{err: e.session.Leave()}
	case opNowPlaying:
		if e.nowPlaying == nil {
			return response{}
		}
		return response{current: &Current{Track: *e.nowPlaying, Paused: e.session.Paused()}}
	case opPending:
		pending := make([]string, len(e.queue))
		copy(pending, e.queue)
		return response{pending: pending}
	default:
		return response{err: fmt.Errorf("unknown engine op %d", r.kind)}
	}
}

type eventKind int

const (
	evResolved eventKind = iota
	evPlaybackDone
	evSettled
)

type event struct {
	kind      eventKind
	gen       int
	ref       string
	channelID string
	res       *resolver.Resolution
	err       error
}

func (e *Engine) handleEvent(ev event) {
	switch ev.kind {
	case evResolved:
		e.onResolved(ev)
	case evPlaybackDone:
		e.onPlaybackDone(ev)
	case evSettled:
		if ev.gen != e.gen {
			return
		}
		if err := e.advance(ev.channelID); err != nil && !errors.Is(err, ErrQueueEmpty) {
			log.Warn().Str("component", "engine").Err(err).Msg("advance after settle failed")
		}
	}
}

// advance is AdvanceIfIdle: at most one resolve+play sequence may be in
// flight. It pops before resolving, which bounds the retry-next recursion
// by queue length.
func (e *Engine) advance(notifyChannelID string) error {
	if !e.session.Connected() {
		return ErrNotConnected
	}
	if e.session.Playing() || e.resolving {
		return nil
	}
	if notifyChannelID == "" {
		notifyChannelID = e.session.ChannelID()
	}
	if len(e.queue) == 0 {
		e.nowPlaying = nil
		e.notify(notifyChannelID, "✅ Queue finished!")
		return ErrQueueEmpty
	}

	ref := e.queue[0]
	e.queue = e.queue[1:]
	e.resolving = true
	gen := e.gen

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.resolveTimeout)
		defer cancel()
		res, err := e.resolver.Resolve(ctx, ref)
		select {
		case e.events <- event{kind: evResolved, gen: gen, ref: ref, channelID: notifyChannelID, res: res, err: err}:
		case <-e.done:
		}
	}()

	return nil
}

func (e *Engine) onResolved(ev event) {
	e.resolving = false

	if ev.gen != e.gen {
		// A stop or leave emptied the queue while this resolve was in
		// flight; the track was already popped, so just drop it.
		log.Debug().Str("component", "engine").Str("ref", ev.ref).Msg("discarding stale resolution")
		return
	}

	if ev.err != nil {
		e.reportResolveFailure(ev.channelID, ev.ref, ev.err)
		e.scheduleAdvance(ev.channelID)
		return
	}

	if ev.res.Kind == resolver.KindPlaylist {
		// Splice siblings where the playlist reference sat, in original
		// order, then re-resolve the first one individually: the flat
		// listing carries no playable stream URLs.
		e.queue = append(append([]string{}, ev.res.Siblings...), e.queue...)
		e.notify(ev.channelID, fmt.Sprintf("🎶 Queued %d tracks from playlist", len(ev.res.Siblings)))
		if err := e.advance(ev.channelID); err != nil && !errors.Is(err, ErrQueueEmpty) {
			log.Warn().Str("component", "engine").Err(err).Msg("advance after playlist expansion failed")
		}
		return
	}

	track := ev.res.Track
	e.nowPlaying = track
	channelID := ev.channelID
	err := e.session.Play(track.StreamURL, func(playErr error) {
		select {
		case e.events <- event{kind: evPlaybackDone, channelID: channelID, err: playErr}:
		case <-e.done:
		}
	})
	if err != nil {
		e.nowPlaying = nil
		e.notify(ev.channelID, fmt.Sprintf("❌ Could not play **%s**: %v", track.Title, err))
		e.scheduleAdvance(ev.channelID)
		return
	}

	log.Info().Str("component", "engine").Str("title", track.Title).Int("queue_len", len(e.queue)).Msg("now playing")
	e.notify(ev.channelID, fmt.Sprintf("🎶 Playing: **%s**", track.Title))
}

// onPlaybackDone is the one-shot completion handler for a started source.
func (e *Engine) onPlaybackDone(ev event) {
	if ev.err != nil {
		log.Error().Str("component", "engine").Err(ev.err).Msg("playback error")
		e.notify(ev.channelID, fmt.Sprintf("❌ Error during playback: %v", ev.err))
	}

	e.nowPlaying = nil

	if len(e.queue) > 0 && e.session.Connected() && !e.session.Playing() {
		if err := e.advance(ev.channelID); err != nil && !errors.Is(err, ErrQueueEmpty) {
			log.Warn().Str("component", "engine").Err(err).Msg("auto-advance failed")
		}
		return
	}
	if len(e.queue) == 0 && e.session.Connected() && !e.session.Playing() {
		log.Info().Str("component", "engine").Msg("queue finished")
		e.notify(ev.channelID, "✅ Queue finished!")
	}
}

func (e *Engine) reportResolveFailure(channelID, ref string, err error) {
	var failure *resolver.Failure
	if errors.As(err, &failure) {
		switch failure.Class {
		case resolver.FailureAccessRestricted:
			e.notify(channelID, fmt.Sprintf("❌ Skipping %s: access restricted (private, region-locked, or sign-in required)", ref))
		case resolver.FailureNotFound:
			e.notify(channelID, fmt.Sprintf("❌ Skipping %s: not found", ref))
		default:
			e.notify(channelID, fmt.Sprintf("❌ Could not play %s: %v", ref, failure.Err))
		}
	} else {
		e.notify(channelID, fmt.Sprintf("❌ Could not play %s: %v", ref, err))
	}
	log.Warn().Str("component", "engine").Str("ref", ref).Err(err).Msg("resolution failed, advancing")
}

// scheduleAdvance retries the next queue item after the settle delay so one
// bad link does not stall the rest of the queue.
func (e *Engine) scheduleAdvance(channelID string) {
	gen := e.gen
	time.AfterFunc(e.settleDelay, func() {
		select {
		case e.events <- event{kind: evSettled, gen: gen, channelID: channelID}:
		case <-e.done:
		}
	})
}

func (e *Engine) notify(channelID, message string) {
	if e.notifier == nil || channelID == "" {
		return
	}
	e.notifier.Notify(channelID, message)
}
