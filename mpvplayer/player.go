// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package mpvplayer

import (
	"fmt"
	"sync"

	"github.com/PingAK9/flutter-playout/logger"
	"github.com/PingAK9/flutter-playout/playback"
	"github.com/supersonic-app/go-mpv"
)

var (
	_ playback.Backend      = (*Player)(nil)
	_ playback.AudioSession = (*Player)(nil)
)

// Player owns the single mpv instance. Each Open binds it to a new Session;
// the previous one must be closed first.
type Player struct {
	instance  *mpv.Mpv
	mpvEvents chan event
	logger    logger.LoggerInterface

	quit     chan struct{}
	quitOnce sync.Once
	handlers sync.WaitGroup

	mu      sync.Mutex
	current *Session

	// playing is the playlist entry mpv last started; EventLoop only
	playing int64
}

func NewPlayer(logger logger.LoggerInterface) (player *Player, err error) {
	mpvInstance := mpv.Create()

	options := [][2]string{
		{"audio-display", "no"},
		{"video", "no"},
		// stay on the last frame at EOF so the end can be observed and rewound
		{"keep-open", "yes"},
		{"idle", "yes"},
	}
	for _, opt := range options {
		if err = mpvInstance.SetOptionString(opt[0], opt[1]); err != nil {
			mpvInstance.TerminateDestroy()
			return nil, fmt.Errorf("mpv option %s: %w", opt[0], err)
		}
	}

	if err = mpvInstance.Initialize(); err != nil {
		mpvInstance.TerminateDestroy()
		return nil, fmt.Errorf("mpv initialize: %w", err)
	}

	player = &Player{
		instance:  mpvInstance,
		mpvEvents: make(chan event),
		logger:    logger,
		quit:      make(chan struct{}),
	}

	player.handlers.Add(2)
	go player.mpvEngineEventHandler(mpvInstance)
	go player.EventLoop()
	return player, nil
}

func (p *Player) mpvEngineEventHandler(instance *mpv.Mpv) {
	defer p.handlers.Done()
	for {
		evt := instance.WaitEvent(1)
		if evt == nil {
			continue
		}
		decoded := decodeEvent(evt)
		select {
		case p.mpvEvents <- decoded:
		case <-p.quit:
			return
		}
	}
}

// Quit stops the event goroutines and destroys the mpv instance.
func (p *Player) Quit() {
	p.quitOnce.Do(func() {
		if s := p.session(); s != nil {
			if err := s.Close(); err != nil {
				p.logger.PrintError("Quit", err)
			}
		}
		close(p.quit)
		p.handlers.Wait()
		p.instance.TerminateDestroy()
	})
}

// Open loads url paused; the caller starts playback.
func (p *Player) Open(url string) (playback.Session, error) {
	s := newSession(p, url)

	p.mu.Lock()
	p.current = s
	p.mu.Unlock()

	if err := p.instance.SetProperty("pause", mpv.FORMAT_FLAG, true); err != nil {
		p.logger.PrintError("Open pause", err)
	}
	if err := p.instance.Command([]string{"loadfile", url, "replace"}); err != nil {
		p.release(s)
		return nil, fmt.Errorf("loadfile: %w", err)
	}
	// the new entry is appended last
	if id, err := p.lastEntryID(); err != nil {
		p.logger.PrintError("Open playlist entry", err)
	} else {
		s.setEntry(id)
	}
	return s, nil
}

// SetActive mutes and idles the audio output while no session is active.
// mpv opens the output device on demand, so activation only unmutes.
func (p *Player) SetActive(active bool) error {
	if err := p.instance.SetProperty("mute", mpv.FORMAT_FLAG, !active); err != nil {
		return fmt.Errorf("set mute: %w", err)
	}
	if !active && p.session() == nil {
		if err := p.instance.Command([]string{"stop"}); err != nil {
			return fmt.Errorf("stop: %w", err)
		}
	}
	return nil
}

func (p *Player) lastEntryID() (int64, error) {
	count, err := p.getPropertyInt64("playlist-count")
	if err != nil {
		return 0, err
	}
	if count < 1 {
		return 0, fmt.Errorf("playlist-count %d", count)
	}
	return p.getPropertyInt64(fmt.Sprintf("playlist/%d/id", count-1))
}

func (p *Player) session() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Player) release(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == s {
		p.current = nil
	}
}

func (p *Player) timeControl() playback.TimeControlStatus {
	paused, err := p.getPropertyBool("pause")
	if err != nil {
		p.logger.PrintError("timeControl pause", err)
		paused = true
	}
	idle, err := p.getPropertyBool("idle-active")
	if err != nil {
		idle = false
	}
	buffering, err := p.getPropertyBool("paused-for-cache")
	if err != nil {
		buffering = false
	}
	return timeControlFor(paused, idle, buffering)
}

func timeControlFor(paused, idle, buffering bool) playback.TimeControlStatus {
	switch {
	case paused || idle:
		return playback.TimeControlPaused
	case buffering:
		return playback.TimeControlWaiting
	default:
		return playback.TimeControlPlaying
	}
}
