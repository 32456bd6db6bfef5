// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package mpvplayer

import (
	"errors"
	"testing"

	"github.com/PingAK9/flutter-playout/playback"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/supersonic-app/go-mpv"
)

type observed struct {
	statuses []playback.ItemStatus
	errs     []error
	controls []playback.TimeControlStatus
	ended    int
	failed   []error
	logs     []string
}

func (o *observed) observer() playback.Observer {
	return playback.Observer{
		StatusChanged: func(s playback.ItemStatus, err error) {
			o.statuses = append(o.statuses, s)
			o.errs = append(o.errs, err)
		},
		TimeControlChanged: func(s playback.TimeControlStatus) { o.controls = append(o.controls, s) },
		ItemEnded:          func() { o.ended++ },
		ErrorLogged:        func(m string) { o.logs = append(o.logs, m) },
		FailedToPlayToEnd:  func(err error) { o.failed = append(o.failed, err) },
	}
}

func TestTimeControlFor(t *testing.T) {
	assert.Equal(t, playback.TimeControlPaused, timeControlFor(true, false, false))
	assert.Equal(t, playback.TimeControlPaused, timeControlFor(false, true, false))
	assert.Equal(t, playback.TimeControlPaused, timeControlFor(true, false, true))
	assert.Equal(t, playback.TimeControlWaiting, timeControlFor(false, false, true))
	assert.Equal(t, playback.TimeControlPlaying, timeControlFor(false, false, false))
}

func TestSessionStatusReplayedOnObserve(t *testing.T) {
	s := newSession(nil, "https://example.com/a.mp3")
	s.setStatus(playback.ItemStatusReadyToPlay, nil)

	var o observed
	s.Observe(o.observer())

	assert.Equal(t, []playback.ItemStatus{playback.ItemStatusReadyToPlay}, o.statuses)
}

func TestSessionNotifications(t *testing.T) {
	s := newSession(nil, "https://example.com/a.mp3")
	var o observed
	detach := s.Observe(o.observer())

	s.setTimeControl(playback.TimeControlPlaying)
	s.setTimeControl(playback.TimeControlPlaying)
	assert.Equal(t, 1.0, s.Rate())
	s.setTimeControl(playback.TimeControlWaiting)
	assert.Equal(t, 0.0, s.Rate())

	s.reachedEnd()
	s.reachedEnd()
	s.logged("demux: bad packet")

	assert.Equal(t, []playback.TimeControlStatus{playback.TimeControlPlaying, playback.TimeControlWaiting}, o.controls)
	assert.Equal(t, 1, o.ended)
	assert.Equal(t, []string{"demux: bad packet"}, o.logs)

	detach()
	s.setTimeControl(playback.TimeControlPaused)
	assert.Len(t, o.controls, 2)
}

func TestSessionEndedWithError(t *testing.T) {
	t.Run("before load", func(t *testing.T) {
		s := newSession(nil, "https://example.com/missing.mp3")
		var o observed
		s.Observe(o.observer())

		s.endedWithError("loading failed")

		require.Equal(t, []playback.ItemStatus{playback.ItemStatusFailed}, o.statuses)
		assert.Contains(t, o.errs[0].Error(), "missing.mp3")
		assert.Contains(t, o.errs[0].Error(), "loading failed")
		assert.Empty(t, o.failed)
	})

	t.Run("after load", func(t *testing.T) {
		s := newSession(nil, "https://example.com/a.mp3")
		s.setStatus(playback.ItemStatusReadyToPlay, nil)
		var o observed
		s.Observe(o.observer())

		s.endedWithError("")

		require.Len(t, o.failed, 1)
		assert.Contains(t, o.failed[0].Error(), "playback error")
	})
}

func TestSessionSeekSupersedes(t *testing.T) {
	s := newSession(nil, "https://example.com/a.mp3")
	var results []bool

	require.NoError(t, s.Seek(5, func(ok bool) { results = append(results, ok) }))
	require.NoError(t, s.Seek(9, func(ok bool) { results = append(results, ok) }))
	s.seekFinished()

	assert.Equal(t, []bool{false, true}, results)
	require.NotNil(t, s.deferredSeek)
	assert.Equal(t, 9.0, *s.deferredSeek)
}

func TestSessionClosed(t *testing.T) {
	s := newSession(nil, "https://example.com/a.mp3")
	var o observed
	s.Observe(o.observer())

	var interrupted bool
	require.NoError(t, s.Seek(3, func(ok bool) { interrupted = !ok }))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.True(t, interrupted)
	assert.True(t, errors.Is(s.Play(), errSessionClosed))
	assert.True(t, errors.Is(s.Seek(1, nil), errSessionClosed))

	s.setTimeControl(playback.TimeControlPlaying)
	s.reachedEnd()
	assert.Empty(t, o.controls)
	assert.Zero(t, o.ended)
}

func TestFileEventsFromReplacedFileAreDropped(t *testing.T) {
	p := &Player{}
	s := newSession(nil, "https://example.com/b.mp3")
	s.setEntry(2)
	var o observed
	s.Observe(o.observer())

	// entry 1 was the previous file
	p.fileEvent(s, event{id: mpv.EVENT_START_FILE, entryID: 1})
	p.fileEvent(s, event{id: mpv.EVENT_LOG_MESSAGE, logText: "ffmpeg: connection refused"})
	p.fileEvent(s, event{id: mpv.EVENT_END_FILE, entryID: 1, endReason: endFileReasonError, endError: "loading failed"})
	assert.Empty(t, o.logs)
	assert.Empty(t, o.statuses)
	assert.Zero(t, p.playing)

	p.fileEvent(s, event{id: mpv.EVENT_START_FILE, entryID: 2})
	p.fileEvent(s, event{id: mpv.EVENT_LOG_MESSAGE, logText: "demux: bad header"})
	p.fileEvent(s, event{id: mpv.EVENT_END_FILE, entryID: 2, endReason: endFileReasonError, endError: "unrecognized file format"})

	assert.Equal(t, []string{"demux: bad header"}, o.logs)
	require.Equal(t, []playback.ItemStatus{playback.ItemStatusFailed}, o.statuses)
	assert.Contains(t, o.errs[0].Error(), "unrecognized file format")
}

func TestFileEventsWithUnknownEntry(t *testing.T) {
	p := &Player{}
	s := newSession(nil, "https://example.com/a.mp3")
	var o observed
	s.Observe(o.observer())

	p.fileEvent(s, event{id: mpv.EVENT_END_FILE, entryID: 7, endReason: endFileReasonError})
	assert.Equal(t, []playback.ItemStatus{playback.ItemStatusFailed}, o.statuses)

	p.fileEvent(nil, event{id: mpv.EVENT_LOG_MESSAGE, logText: "ignored"})
	assert.Empty(t, o.logs)
}
