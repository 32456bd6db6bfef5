// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

// Event is pushed to the host through the Emitter. The concrete types below
// are the only implementations.
type Event interface {
	Name() string
}

const (
	NameReady    = "onReady"
	NamePlay     = "onPlay"
	NamePause    = "onPause"
	NameTime     = "onTime"
	NameDuration = "onDuration"
	NameSeek     = "onSeek"
	NameComplete = "onComplete"
	NameError    = "onError"
)

type ReadyEvent struct{}

type PlayEvent struct {
	IsLoadingMode bool
}

type PauseEvent struct{}

type TimeEvent struct {
	Seconds float64
}

// DurationEvent with Known=false reports a duration that cannot be computed
// yet, e.g. a live stream.
type DurationEvent struct {
	Milliseconds int64
	Known        bool
}

type SeekEvent struct {
	FromSeconds float64
	ToSeconds   float64
}

type CompleteEvent struct{}

type ErrorEvent struct {
	Message string
}

func (ReadyEvent) Name() string    { return NameReady }
func (PlayEvent) Name() string     { return NamePlay }
func (PauseEvent) Name() string    { return NamePause }
func (TimeEvent) Name() string     { return NameTime }
func (DurationEvent) Name() string { return NameDuration }
func (SeekEvent) Name() string     { return NameSeek }
func (CompleteEvent) Name() string { return NameComplete }
func (ErrorEvent) Name() string    { return NameError }
