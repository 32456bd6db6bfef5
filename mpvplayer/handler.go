// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package mpvplayer

import (
	"github.com/supersonic-app/go-mpv"
)

// userdata ids for observed properties
const (
	propPause uint64 = iota + 1
	propPausedForCache
	propIdle
	propEOF
)

// EventLoop translates mpv events into Session observer callbacks. It is
// started by NewPlayer and returns on Quit.
func (p *Player) EventLoop() {
	defer p.handlers.Done()

	if err := p.instance.ObserveProperty(propPause, "pause", mpv.FORMAT_FLAG); err != nil {
		p.logger.PrintError("Observe pause", err)
	}
	if err := p.instance.ObserveProperty(propPausedForCache, "paused-for-cache", mpv.FORMAT_FLAG); err != nil {
		p.logger.PrintError("Observe paused-for-cache", err)
	}
	if err := p.instance.ObserveProperty(propIdle, "idle-active", mpv.FORMAT_FLAG); err != nil {
		p.logger.PrintError("Observe idle-active", err)
	}
	if err := p.instance.ObserveProperty(propEOF, "eof-reached", mpv.FORMAT_FLAG); err != nil {
		p.logger.PrintError("Observe eof-reached", err)
	}
	if err := p.instance.RequestLogMessages("error"); err != nil {
		p.logger.PrintError("RequestLogMessages", err)
	}

	for {
		var evt event
		select {
		case evt = <-p.mpvEvents:
		case <-p.quit:
			return
		}

		s := p.session()
		switch evt.id {
		case mpv.EVENT_PROPERTY_CHANGE:
			if s == nil {
				continue
			}
			if evt.userdata == propEOF {
				if eof, err := p.getPropertyBool("eof-reached"); err == nil && eof {
					s.reachedEnd()
				}
				continue
			}
			s.setTimeControl(p.timeControl())

		case mpv.EVENT_FILE_LOADED:
			if s != nil {
				s.fileLoaded()
			}

		case mpv.EVENT_PLAYBACK_RESTART:
			// mpv restarts playback after every seek
			if s != nil {
				s.seekFinished()
			}

		case mpv.EVENT_START_FILE, mpv.EVENT_END_FILE, mpv.EVENT_LOG_MESSAGE:
			p.fileEvent(s, evt)

		case mpv.EVENT_SEEK, mpv.EVENT_IDLE, mpv.EVENT_NONE:
			continue

		case mpv.EVENT_SHUTDOWN:
			p.logger.Print("mpv.EventLoop: shutdown")
			return

		default:
			p.logger.Printf("mpv.EventLoop: unhandled event id %v", evt.id)
		}
	}
}

// fileEvent attributes file lifecycle events and error logs to s, dropping
// the ones that belong to a file s replaced.
func (p *Player) fileEvent(s *Session, evt event) {
	switch evt.id {
	case mpv.EVENT_START_FILE:
		p.playing = evt.entryID

	case mpv.EVENT_END_FILE:
		if evt.entryID == p.playing {
			p.playing = 0
		}
		if s != nil && evt.endReason == endFileReasonError && s.owns(evt.entryID) {
			s.endedWithError(evt.endError)
		}

	case mpv.EVENT_LOG_MESSAGE:
		if s != nil && evt.logText != "" && s.owns(p.playing) {
			s.logged(evt.logText)
		}
	}
}
