// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

// NowPlayingInfo is the lock-screen view of the current media. Values are
// replaced through the With* methods and never mutated in place.
type NowPlayingInfo struct {
	Title           string
	Artist          string
	ElapsedSeconds  float64
	DurationSeconds float64
	// PlaybackRate is 0 exactly when playback is not advancing.
	PlaybackRate float64
	// IsLiveStream is nil when the display does not take the field.
	IsLiveStream *bool
}

func (i NowPlayingInfo) WithElapsed(seconds float64) NowPlayingInfo {
	i.ElapsedSeconds = seconds
	return i
}

func (i NowPlayingInfo) WithDuration(seconds float64) NowPlayingInfo {
	i.DurationSeconds = seconds
	return i
}

func (i NowPlayingInfo) WithRate(rate float64) NowPlayingInfo {
	i.PlaybackRate = rate
	return i
}

// NowPlayingDisplay is the platform surface showing NowPlayingInfo.
type NowPlayingDisplay interface {
	SetNowPlaying(info NowPlayingInfo)
	ClearNowPlaying()
}

type nopDisplay struct{}

func (nopDisplay) SetNowPlaying(NowPlayingInfo) {}
func (nopDisplay) ClearNowPlaying()             {}

// MetadataPanel mirrors the Now Playing info and pushes the whole of it to
// the display after each change. It is only used from the control loop.
type MetadataPanel struct {
	display   NowPlayingDisplay
	liveField bool

	info   NowPlayingInfo
	active bool
}

func NewMetadataPanel(display NowPlayingDisplay, liveField bool) *MetadataPanel {
	if display == nil {
		display = nopDisplay{}
	}
	return &MetadataPanel{display: display, liveField: liveField}
}

// Load resets the mirror from a new request.
func (p *MetadataPanel) Load(req PlaybackRequest) {
	info := NowPlayingInfo{
		Title:          req.Title,
		Artist:         req.Subtitle,
		ElapsedSeconds: req.StartSeconds(),
	}
	if p.liveField {
		live := req.IsLiveStream
		info.IsLiveStream = &live
	}
	p.info = info
	p.active = true
	p.push()
}

func (p *MetadataPanel) Playing() {
	p.update(p.info.WithRate(1))
}

func (p *MetadataPanel) Paused(elapsed float64) {
	p.update(p.info.WithElapsed(elapsed).WithRate(0))
}

// Tick refreshes the elapsed time. A non-positive duration leaves the
// previous duration untouched.
func (p *MetadataPanel) Tick(elapsed, duration float64) {
	info := p.info.WithElapsed(elapsed)
	if duration > 0 {
		info = info.WithDuration(duration)
	}
	p.update(info)
}

func (p *MetadataPanel) Seeked(to, rate float64) {
	p.update(p.info.WithElapsed(to).WithRate(rate))
}

func (p *MetadataPanel) Completed() {
	p.update(p.info.WithElapsed(0).WithRate(0))
}

// Clear empties the display. Only the first Clear after a Load reaches it.
func (p *MetadataPanel) Clear() {
	if !p.active {
		return
	}
	p.info = NowPlayingInfo{}
	p.active = false
	p.display.ClearNowPlaying()
}

func (p *MetadataPanel) Info() NowPlayingInfo {
	return p.info
}

func (p *MetadataPanel) Active() bool {
	return p.active
}

func (p *MetadataPanel) update(info NowPlayingInfo) {
	if !p.active {
		return
	}
	p.info = info
	p.push()
}

func (p *MetadataPanel) push() {
	p.display.SetNowPlaying(p.info)
}
