// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

import (
	"errors"
	"fmt"
	"math"

	"github.com/PingAK9/flutter-playout/logger"
	"github.com/rs/xid"
)

type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePlaying
	StatePaused
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "idle"
	}
}

type Options struct {
	Backend      Backend
	Display      NowPlayingDisplay
	Commands     CommandCenter
	AudioSession AudioSession
	Logger       logger.LoggerInterface
	Config       Config
}

// Status is a point-in-time view of the engine.
type Status struct {
	State      State
	URL        string
	SessionID  string
	Position   float64
	Rate       float64
	NowPlaying NowPlayingInfo
}

// playerSession is the engine's bookkeeping for one loaded URL.
type playerSession struct {
	id     string
	url    string
	media  Session
	detach func()
	token  TimeObserverToken
	// ticking is false once the periodic observer is released
	ticking bool
	ready   bool
	closed  bool
}

func (ps *playerSession) releaseTimeObserver() {
	if !ps.ticking {
		return
	}
	ps.ticking = false
	ps.media.RemoveTimeObserver(ps.token)
}

// Engine owns the player session and turns pipeline notifications into the
// event stream. Every exported command returns immediately; the work runs on
// the control loop and outcomes arrive as events.
type Engine struct {
	backend Backend
	audio   AudioSession
	panel   *MetadataPanel
	emitter *Emitter
	remote  *RemoteControl
	logger  logger.LoggerInterface
	config  Config

	loop *controlLoop

	// owned by the control loop
	state         State
	request       PlaybackRequest
	url           string
	pending       bool
	generation    uint64
	session       *playerSession
	seekSeq       uint64
	// queuedSeek is a seek issued while the session was still opening
	queuedSeek    *float64
	timeControl   TimeControlStatus
	durationCache float64
	audioActive   bool
	armed         bool
}

func NewEngine(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, errors.New("playback: nil backend")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Init()
	}
	if opts.AudioSession == nil {
		opts.AudioSession = nopAudioSession{}
	}
	if opts.Config.TickInterval <= 0 {
		opts.Config.TickInterval = DefaultConfig().TickInterval
	}

	e := &Engine{
		backend:       opts.Backend,
		audio:         opts.AudioSession,
		panel:         NewMetadataPanel(opts.Display, opts.Config.LiveStreamField),
		emitter:       &Emitter{},
		logger:        opts.Logger,
		config:        opts.Config,
		loop:          newControlLoop(),
		durationCache: math.NaN(),
	}
	e.remote = newRemoteControl(opts.Commands, e)
	return e, nil
}

// Events is where the host subscribes.
func (e *Engine) Events() *Emitter {
	return e.emitter
}

func (e *Engine) Remote() *RemoteControl {
	return e.remote
}

// Load plays req.URL, reusing the current session when the URL is unchanged.
func (e *Engine) Load(req PlaybackRequest) {
	e.submit("load", func() { e.load(req) })
}

func (e *Engine) Play() {
	e.submit("play", e.play)
}

func (e *Engine) Pause() {
	e.submit("pause", e.pause)
}

func (e *Engine) SeekTo(seconds float64) {
	e.submit("seekTo", func() { e.seekTo(seconds) })
}

// Stop tears the session down. Repeated calls are no-ops.
func (e *Engine) Stop() {
	e.submit("stop", e.stop)
}

func (e *Engine) submit(op string, fn func()) {
	if !e.loop.post(fn) {
		e.logger.PrintError(op, ErrClosed)
	}
}

// Close stops playback and shuts the control loop down. Commands issued
// afterwards are dropped.
func (e *Engine) Close() {
	e.loop.call(e.stop)
	e.loop.shutdown()
}

// Reject reports a command the host sent but that could not be decoded. It
// changes no state.
func (e *Engine) Reject(err error) {
	e.submit("reject", func() {
		e.logger.PrintError("command", err)
		e.emit(ErrorEvent{Message: err.Error()})
	})
}

func (e *Engine) Status() Status {
	var st Status
	e.loop.call(func() {
		st.State = e.state
		st.URL = e.url
		st.NowPlaying = e.panel.Info()
		if ps := e.session; ps != nil {
			st.SessionID = ps.id
			st.Position = ps.media.CurrentTime()
			st.Rate = ps.media.Rate()
		}
	})
	return st
}

func (e *Engine) load(req PlaybackRequest) {
	if err := req.Validate(); err != nil {
		e.logger.PrintError("load", err)
		e.emit(ErrorEvent{Message: err.Error()})
		return
	}

	if req.URL == e.url && e.state != StateFailed && (e.pending || e.session != nil) {
		// same media: keep the session, take the new flags
		e.request = req
		if e.session != nil {
			e.play()
		}
		return
	}

	e.teardown()
	e.generation++
	e.queuedSeek = nil
	e.url = req.URL
	e.request = req
	e.pending = true
	e.state = StateLoading
	e.setAudioActive(true)

	go e.open(e.generation, req)
}

// open runs off the control loop: session construction and the initial
// seek may block.
func (e *Engine) open(gen uint64, req PlaybackRequest) {
	media, err := e.backend.Open(req.URL)
	if err == nil {
		if start := req.StartSeconds(); start > 0 {
			if serr := media.Seek(start, nil); serr != nil {
				e.logger.PrintError("initial seek", serr)
			}
		}
	}

	posted := e.loop.post(func() { e.attach(gen, media, err) })
	if !posted && media != nil {
		if cerr := media.Close(); cerr != nil {
			e.logger.PrintError("close", cerr)
		}
	}
}

func (e *Engine) attach(gen uint64, media Session, openErr error) {
	if gen != e.generation {
		// superseded by a newer load or a stop
		if media != nil {
			if err := media.Close(); err != nil {
				e.logger.PrintError("close", err)
			}
		}
		return
	}
	e.pending = false

	if openErr != nil {
		e.state = StateFailed
		e.queuedSeek = nil
		e.setAudioActive(false)
		e.logger.PrintError("open", openErr)
		e.emit(ErrorEvent{Message: fmt.Sprintf("unable to load %s: %s", e.url, openErr.Error())})
		return
	}

	ps := &playerSession{
		id:    xid.New().String(),
		url:   e.url,
		media: media,
	}
	e.session = ps
	e.timeControl = TimeControlPaused
	e.durationCache = math.NaN()

	ps.detach = media.Observe(e.observer(ps))
	ps.token = media.AddPeriodicTimeObserver(e.config.TickInterval, func(seconds float64) {
		e.guard(ps, func() { e.tick(seconds) })
	})
	ps.ticking = true

	e.remote.Arm()
	e.armed = true
	e.panel.Load(e.request)

	e.logger.Printf("session %s: loaded %s", ps.id, ps.url)
	e.play()

	if target := e.queuedSeek; target != nil {
		e.queuedSeek = nil
		e.seekTo(*target)
	}
}

// guard runs fn on the control loop only while ps is still the live
// session, so late notifications from a torn down pipeline are dropped.
func (e *Engine) guard(ps *playerSession, fn func()) {
	e.loop.post(func() {
		if ps.closed || e.session != ps {
			return
		}
		fn()
	})
}

func (e *Engine) observer(ps *playerSession) Observer {
	return Observer{
		StatusChanged: func(status ItemStatus, err error) {
			e.guard(ps, func() { e.itemStatusChanged(ps, status, err) })
		},
		TimeControlChanged: func(status TimeControlStatus) {
			e.guard(ps, func() { e.timeControlChanged(status) })
		},
		ItemEnded: func() {
			e.guard(ps, e.itemEnded)
		},
		ErrorLogged: func(message string) {
			e.guard(ps, func() { e.emit(ErrorEvent{Message: message}) })
		},
		FailedToPlayToEnd: func(err error) {
			e.guard(ps, func() { e.failed("failed to play to end", err) })
		},
	}
}

func (e *Engine) itemStatusChanged(ps *playerSession, status ItemStatus, err error) {
	switch status {
	case ItemStatusFailed:
		e.failed("media item failed", err)
	case ItemStatusReadyToPlay:
		if ps.ready {
			return
		}
		ps.ready = true
		if e.state == StateLoading {
			e.state = StateReady
		}
		e.emit(ReadyEvent{})
	}
}

func (e *Engine) timeControlChanged(status TimeControlStatus) {
	if status == e.timeControl {
		return
	}
	e.timeControl = status

	switch status {
	case TimeControlPaused:
		if e.state != StateCompleted && e.state != StateFailed {
			e.state = StatePaused
		}
		e.panel.Paused(e.session.media.CurrentTime())
		e.emit(PauseEvent{})
	case TimeControlWaiting:
		// buffering: not advancing, but not reported to the host either
		e.panel.Paused(e.session.media.CurrentTime())
	case TimeControlPlaying:
		e.state = StatePlaying
		e.panel.Playing()
		e.emit(PlayEvent{IsLoadingMode: e.request.IsLoadingMode})
	}
}

func (e *Engine) itemEnded() {
	ps := e.session
	if err := ps.media.Pause(); err != nil {
		e.logger.PrintError("pause at end", err)
	}
	e.timeControlChanged(TimeControlPaused)
	e.state = StateCompleted
	e.emit(CompleteEvent{})

	// rewind without reporting a seek
	e.seekSeq++
	if err := ps.media.Seek(0, nil); err != nil {
		e.logger.PrintError("rewind", err)
	}
	e.panel.Completed()
}

func (e *Engine) failed(fallback string, err error) {
	e.state = StateFailed
	if ps := e.session; ps != nil {
		e.panel.Paused(ps.media.CurrentTime())
	}
	msg := fallback
	if err != nil {
		msg = err.Error()
	}
	e.emit(ErrorEvent{Message: msg})
}

func (e *Engine) tick(seconds float64) {
	e.emit(TimeEvent{Seconds: seconds})
	duration := e.refreshDuration()
	e.panel.Tick(seconds, duration)
}

// refreshDuration reports a changed duration and returns it in seconds, or
// 0 when unknown. An unknown duration is reported on every call.
func (e *Engine) refreshDuration() float64 {
	seconds := e.session.media.Duration()
	ms := math.Round(seconds * 1000)
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		e.durationCache = math.NaN()
		e.emit(DurationEvent{Known: false})
		return 0
	}
	if ms != e.durationCache {
		e.durationCache = ms
		e.emit(DurationEvent{Milliseconds: int64(ms), Known: true})
	}
	return seconds
}

func (e *Engine) play() {
	ps := e.session
	if ps == nil {
		e.logger.PrintError("play", ErrNoSession)
		return
	}
	if err := ps.media.Play(); err != nil {
		e.logger.PrintError("play", err)
		return
	}
	e.panel.Playing()
}

func (e *Engine) pause() {
	ps := e.session
	if ps == nil {
		e.logger.PrintError("pause", ErrNoSession)
		return
	}
	if err := ps.media.Pause(); err != nil {
		e.logger.PrintError("pause", err)
		return
	}
	e.panel.Paused(ps.media.CurrentTime())
}

func (e *Engine) seekTo(seconds float64) {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		e.emit(ErrorEvent{Message: fmt.Sprintf("invalid seek position %v", seconds)})
		return
	}
	if seconds < 0 {
		seconds = 0
	}

	ps := e.session
	if ps == nil {
		if e.pending {
			// applied once the session is attached; a later seek replaces it
			e.queuedSeek = &seconds
			return
		}
		e.logger.PrintError("seek", ErrNoSession)
		return
	}

	from := ps.media.CurrentTime()
	e.seekSeq++
	seq := e.seekSeq
	err := ps.media.Seek(seconds, func(finished bool) {
		e.guard(ps, func() { e.seekCompleted(ps, seq, finished, from, seconds) })
	})
	if err != nil {
		e.logger.PrintError("seek", err)
	}
}

func (e *Engine) seekCompleted(ps *playerSession, seq uint64, finished bool, from, to float64) {
	if !finished || seq != e.seekSeq {
		return
	}
	if e.state == StateCompleted {
		e.state = StatePaused
	}
	e.emit(SeekEvent{FromSeconds: from, ToSeconds: to})
	e.panel.Seeked(to, ps.media.Rate())
}

func (e *Engine) stop() {
	// a load still opening in the background is discarded on arrival
	e.generation++
	e.pending = false
	e.queuedSeek = nil

	e.teardown()
	e.url = ""
	e.state = StateIdle
	e.setAudioActive(false)
}

// teardown pauses and releases the current session, then clears Now Playing
// and the remote handlers. Observers are detached before Close so the old
// pipeline cannot reach the engine any more.
func (e *Engine) teardown() {
	ps := e.session
	if ps == nil {
		return
	}
	e.session = nil
	ps.closed = true

	if err := ps.media.Pause(); err != nil {
		e.logger.PrintError("pause", err)
	}
	ps.releaseTimeObserver()
	if ps.detach != nil {
		ps.detach()
		ps.detach = nil
	}
	if err := ps.media.Close(); err != nil {
		e.logger.PrintError("close", err)
	}

	if e.armed {
		e.remote.Disarm()
		e.armed = false
	}
	e.panel.Clear()

	e.timeControl = TimeControlPaused
	e.durationCache = math.NaN()
	e.logger.Printf("session %s: released", ps.id)
}

func (e *Engine) currentRate() (float64, bool) {
	if e.session == nil {
		return 0, false
	}
	return e.session.media.Rate(), true
}

// setAudioActive is best effort: a failure never blocks playback.
func (e *Engine) setAudioActive(active bool) {
	if e.audioActive == active {
		return
	}
	e.audioActive = active
	if err := e.audio.SetActive(active); err != nil {
		e.logger.PrintError("audio session", err)
	}
}

func (e *Engine) emit(ev Event) {
	e.emitter.Emit(ev)
}
