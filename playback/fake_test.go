// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/PingAK9/flutter-playout/logger"
)

type fakeBackend struct {
	mu       sync.Mutex
	sessions []*fakeSession
	openErr  error
	// gate, when set, blocks Open until it is closed
	gate chan struct{}
}

func (b *fakeBackend) Open(url string) (Session, error) {
	b.mu.Lock()
	gate := b.gate
	openErr := b.openErr
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if openErr != nil {
		return nil, openErr
	}

	s := newFakeSession(url)
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s, nil
}

func (b *fakeBackend) opened() []*fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*fakeSession, len(b.sessions))
	copy(out, b.sessions)
	return out
}

type fakeSeek struct {
	to         float64
	completion func(bool)
}

type fakeSession struct {
	mu sync.Mutex

	url      string
	rate     float64
	position float64
	duration float64

	observers    map[int]Observer
	nextObserver int
	observeCalls int
	detachCalls  int

	timeObservers map[TimeObserverToken]func(float64)
	nextToken     TimeObserverToken
	removeCalls   int

	seeks      []fakeSeek
	playCalls  int
	pauseCalls int
	closed     bool
}

func newFakeSession(url string) *fakeSession {
	return &fakeSession{
		url:           url,
		duration:      math.NaN(),
		observers:     make(map[int]Observer),
		timeObservers: make(map[TimeObserverToken]func(float64)),
	}
}

func (s *fakeSession) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playCalls++
	s.rate = 1
	return nil
}

func (s *fakeSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauseCalls++
	s.rate = 0
	return nil
}

func (s *fakeSession) Seek(seconds float64, completion func(bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seeks = append(s.seeks, fakeSeek{to: seconds, completion: completion})
	return nil
}

func (s *fakeSession) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

func (s *fakeSession) Duration() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.duration
}

func (s *fakeSession) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rate
}

func (s *fakeSession) Observe(o Observer) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = o
	s.observeCalls++
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
		s.detachCalls++
	}
}

func (s *fakeSession) AddPeriodicTimeObserver(_ time.Duration, fn func(float64)) TimeObserverToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextToken++
	s.timeObservers[s.nextToken] = fn
	return s.nextToken
}

func (s *fakeSession) RemoveTimeObserver(token TimeObserverToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timeObservers, token)
	s.removeCalls++
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) isObserved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.observers) > 0 && len(s.timeObservers) > 0
}

func (s *fakeSession) setPosition(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position = seconds
}

func (s *fakeSession) setDuration(seconds float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.duration = seconds
}

func (s *fakeSession) snapshotObservers() []Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Observer, 0, len(s.observers))
	for _, o := range s.observers {
		out = append(out, o)
	}
	return out
}

func (s *fakeSession) status(status ItemStatus, err error) {
	for _, ob := range s.snapshotObservers() {
		ob.StatusChanged(status, err)
	}
}

func (s *fakeSession) timeControl(status TimeControlStatus) {
	for _, ob := range s.snapshotObservers() {
		ob.TimeControlChanged(status)
	}
}

func (s *fakeSession) ended() {
	for _, ob := range s.snapshotObservers() {
		ob.ItemEnded()
	}
}

func (s *fakeSession) errorLog(msg string) {
	for _, ob := range s.snapshotObservers() {
		ob.ErrorLogged(msg)
	}
}

func (s *fakeSession) failedToEnd(err error) {
	for _, ob := range s.snapshotObservers() {
		ob.FailedToPlayToEnd(err)
	}
}

func (s *fakeSession) tickers() []func(float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]func(float64), 0, len(s.timeObservers))
	for _, fn := range s.timeObservers {
		fns = append(fns, fn)
	}
	return fns
}

func (s *fakeSession) tick(seconds float64) {
	s.setPosition(seconds)
	for _, fn := range s.tickers() {
		fn(seconds)
	}
}

func (s *fakeSession) seek(i int) fakeSeek {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seeks[i]
}

func (s *fakeSession) seekCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seeks)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Send(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) named(name string) []Event {
	var out []Event
	for _, ev := range r.all() {
		if ev.Name() == name {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type fakeDisplay struct {
	mu      sync.Mutex
	pushes  []NowPlayingInfo
	clears  int
	current *NowPlayingInfo
}

func (d *fakeDisplay) SetNowPlaying(info NowPlayingInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pushes = append(d.pushes, info)
	d.current = &info
}

func (d *fakeDisplay) ClearNowPlaying() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clears++
	d.current = nil
}

func (d *fakeDisplay) last() *NowPlayingInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

type fakeCommands struct {
	mu    sync.Mutex
	play  CommandHandler
	pause CommandHandler
	sets  int
	clear int
}

func (c *fakeCommands) SetHandlers(play, pause CommandHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.play, c.pause = play, pause
	c.sets++
}

func (c *fakeCommands) ClearHandlers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.play, c.pause = nil, nil
	c.clear++
}

func (c *fakeCommands) handlers() (CommandHandler, CommandHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.play, c.pause
}

type fakeAudio struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (a *fakeAudio) SetActive(active bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, active)
	return a.err
}

func (a *fakeAudio) history() []bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]bool, len(a.calls))
	copy(out, a.calls)
	return out
}

type harness struct {
	engine   *Engine
	backend  *fakeBackend
	events   *recorder
	display  *fakeDisplay
	commands *fakeCommands
	audio    *fakeAudio
	logs     *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	base, hook := test.NewNullLogger()
	h := &harness{
		logs:     hook,
		backend:  &fakeBackend{},
		events:   &recorder{},
		display:  &fakeDisplay{},
		commands: &fakeCommands{},
		audio:    &fakeAudio{},
	}
	e, err := NewEngine(Options{
		Backend:      h.backend,
		Display:      h.display,
		Commands:     h.commands,
		AudioSession: h.audio,
		Logger:       logger.New(base),
		Config:       DefaultConfig(),
	})
	require.NoError(t, err)
	e.Events().Subscribe(h.events)
	h.engine = e
	t.Cleanup(e.Close)
	return h
}

// sync waits for everything queued on the control loop so far.
// logged reports whether any log entry mentions text.
func (h *harness) logged(text string) bool {
	for _, entry := range h.logs.AllEntries() {
		if strings.Contains(entry.Message, text) {
			return true
		}
	}
	return false
}

func (h *harness) sync() {
	h.engine.loop.call(func() {})
}

// load issues a request and waits for the n-th session to be attached.
func (h *harness) load(t *testing.T, req PlaybackRequest, n int) *fakeSession {
	t.Helper()
	h.engine.Load(req)
	return h.attached(t, n)
}

func (h *harness) attached(t *testing.T, n int) *fakeSession {
	t.Helper()
	require.Eventually(t, func() bool {
		sessions := h.backend.opened()
		return len(sessions) >= n && sessions[n-1].isObserved()
	}, time.Second, time.Millisecond)
	h.sync()
	return h.backend.opened()[n-1]
}

var errFake = errors.New("fake failure")
