// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package mpvplayer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/PingAK9/flutter-playout/playback"
	"github.com/supersonic-app/go-mpv"
)

var _ playback.Session = (*Session)(nil)

var errSessionClosed = errors.New("session closed")

// Session is the mpv instance while it holds one URL.
type Session struct {
	player *Player
	url    string
	// entryID is the mpv playlist entry of url, 0 until known
	entryID int64

	mu           sync.Mutex
	observers    map[int]playback.Observer
	nextObserver int
	tickers      map[playback.TimeObserverToken]chan struct{}
	nextToken    playback.TimeObserverToken

	status      playback.ItemStatus
	statusErr   error
	timeControl playback.TimeControlStatus
	ended       bool

	// a seek issued before the file is loaded waits for FILE_LOADED
	deferredSeek *float64
	pendingSeek  func(bool)
	closed       bool
}

func newSession(p *Player, url string) *Session {
	return &Session{
		player:    p,
		url:       url,
		observers: make(map[int]playback.Observer),
		tickers:   make(map[playback.TimeObserverToken]chan struct{}),
	}
}

func (s *Session) setEntry(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryID = id
}

// owns reports whether events for playlist entry id concern s. While the
// entry is unknown every event is taken.
func (s *Session) owns(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entryID == 0 || s.entryID == id
}

func (s *Session) live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *Session) Play() error {
	if !s.live() {
		return errSessionClosed
	}
	return s.player.instance.SetProperty("pause", mpv.FORMAT_FLAG, false)
}

func (s *Session) Pause() error {
	if !s.live() {
		return errSessionClosed
	}
	return s.player.instance.SetProperty("pause", mpv.FORMAT_FLAG, true)
}

func (s *Session) Seek(seconds float64, completion func(bool)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSessionClosed
	}
	previous := s.pendingSeek
	s.pendingSeek = completion
	s.ended = false
	if s.status != playback.ItemStatusReadyToPlay {
		s.deferredSeek = &seconds
		s.mu.Unlock()
		if previous != nil {
			previous(false)
		}
		return nil
	}
	s.mu.Unlock()

	if previous != nil {
		previous(false)
	}
	return s.seekNow(seconds)
}

func (s *Session) seekNow(seconds float64) error {
	target := strconv.FormatFloat(seconds, 'f', 3, 64)
	if err := s.player.instance.Command([]string{"seek", target, "absolute"}); err != nil {
		return fmt.Errorf("seek %s: %w", target, err)
	}
	return nil
}

func (s *Session) CurrentTime() float64 {
	if !s.live() {
		return 0
	}
	pos, err := s.player.getPropertyDouble("time-pos")
	if err != nil {
		return 0
	}
	return pos
}

func (s *Session) Duration() float64 {
	if !s.live() {
		return math.NaN()
	}
	d, err := s.player.getPropertyDouble("duration")
	if err != nil {
		return math.NaN()
	}
	return d
}

func (s *Session) Rate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.timeControl == playback.TimeControlPlaying {
		return 1
	}
	return 0
}

// Observe registers o; a known item status is delivered right away.
func (s *Session) Observe(o playback.Observer) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = o
	status, statusErr := s.status, s.statusErr
	s.mu.Unlock()

	if status != playback.ItemStatusUnknown && o.StatusChanged != nil {
		o.StatusChanged(status, statusErr)
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Session) AddPeriodicTimeObserver(interval time.Duration, fn func(float64)) playback.TimeObserverToken {
	s.mu.Lock()
	s.nextToken++
	token := s.nextToken
	stop := make(chan struct{})
	s.tickers[token] = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !s.live() {
					return
				}
				fn(s.CurrentTime())
			case <-stop:
				return
			}
		}
	}()
	return token
}

func (s *Session) RemoveTimeObserver(token playback.TimeObserverToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stop, ok := s.tickers[token]; ok {
		close(stop)
		delete(s.tickers, token)
	}
}

func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for token, stop := range s.tickers {
		close(stop)
		delete(s.tickers, token)
	}
	s.observers = make(map[int]playback.Observer)
	pending := s.pendingSeek
	s.pendingSeek = nil
	s.mu.Unlock()

	if pending != nil {
		pending(false)
	}
	if s.player == nil {
		return nil
	}
	s.player.release(s)
	return s.player.instance.Command([]string{"stop"})
}

func (s *Session) snapshot() []playback.Observer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]playback.Observer, 0, len(s.observers))
	for _, o := range s.observers {
		out = append(out, o)
	}
	return out
}

func (s *Session) setStatus(status playback.ItemStatus, err error) {
	s.mu.Lock()
	if s.closed || s.status == status {
		s.mu.Unlock()
		return
	}
	s.status = status
	s.statusErr = err
	s.mu.Unlock()

	for _, o := range s.snapshot() {
		if o.StatusChanged != nil {
			o.StatusChanged(status, err)
		}
	}
}

func (s *Session) fileLoaded() {
	s.setStatus(playback.ItemStatusReadyToPlay, nil)

	s.mu.Lock()
	target := s.deferredSeek
	s.deferredSeek = nil
	s.mu.Unlock()

	if target != nil {
		if err := s.seekNow(*target); err != nil {
			s.player.logger.PrintError("deferred seek", err)
		}
	}
}

func (s *Session) setTimeControl(status playback.TimeControlStatus) {
	s.mu.Lock()
	if s.closed || s.timeControl == status {
		s.mu.Unlock()
		return
	}
	s.timeControl = status
	s.mu.Unlock()

	for _, o := range s.snapshot() {
		if o.TimeControlChanged != nil {
			o.TimeControlChanged(status)
		}
	}
}

func (s *Session) seekFinished() {
	s.mu.Lock()
	pending := s.pendingSeek
	s.pendingSeek = nil
	s.mu.Unlock()

	if pending != nil {
		pending(true)
	}
}

// reachedEnd fires ItemEnded once per pass over the end of the file.
func (s *Session) reachedEnd() {
	s.mu.Lock()
	if s.closed || s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.mu.Unlock()

	for _, o := range s.snapshot() {
		if o.ItemEnded != nil {
			o.ItemEnded()
		}
	}
}

// endedWithError maps an mpv error stop onto a failed item before the file
// loaded and onto a failed-to-play-to-end afterwards.
func (s *Session) endedWithError(reason string) {
	s.mu.Lock()
	loaded := s.status == playback.ItemStatusReadyToPlay
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	if reason == "" {
		reason = "playback error"
	}
	if !loaded {
		s.setStatus(playback.ItemStatusFailed, fmt.Errorf("unable to open %s: %s", s.url, reason))
		return
	}

	err := fmt.Errorf("playback of %s stopped: %s", s.url, reason)
	for _, o := range s.snapshot() {
		if o.FailedToPlayToEnd != nil {
			o.FailedToPlayToEnd(err)
		}
	}
}

func (s *Session) logged(text string) {
	if !s.live() {
		return
	}
	for _, o := range s.snapshot() {
		if o.ErrorLogged != nil {
			o.ErrorLogged(text)
		}
	}
}
