// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

import "time"

// ItemStatus is the readiness of the media item loaded into a Session.
type ItemStatus int

const (
	ItemStatusUnknown ItemStatus = iota
	ItemStatusReadyToPlay
	ItemStatusFailed
)

func (s ItemStatus) String() string {
	switch s {
	case ItemStatusReadyToPlay:
		return "readyToPlay"
	case ItemStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TimeControlStatus tells whether the play head is advancing.
type TimeControlStatus int

const (
	TimeControlPaused TimeControlStatus = iota
	// playback was requested but the pipeline is buffering
	TimeControlWaiting
	TimeControlPlaying
)

func (s TimeControlStatus) String() string {
	switch s {
	case TimeControlWaiting:
		return "waitingToPlayAtSpecifiedRate"
	case TimeControlPlaying:
		return "playing"
	default:
		return "paused"
	}
}

// Observer is the set of callbacks a Session invokes when its underlying
// pipeline changes. Callbacks may arrive on any goroutine and concurrently
// with each other. Nil callbacks are skipped.
type Observer struct {
	// StatusChanged also fires once on registration when the status is
	// already known.
	StatusChanged      func(status ItemStatus, err error)
	TimeControlChanged func(status TimeControlStatus)
	ItemEnded          func()
	// ErrorLogged carries extended diagnostic text and may accompany a
	// StatusChanged(ItemStatusFailed) or FailedToPlayToEnd for the same fault.
	ErrorLogged       func(message string)
	FailedToPlayToEnd func(err error)
}

type TimeObserverToken uint64

// Session is one media pipeline bound to a single URL.
type Session interface {
	Play() error
	Pause() error
	// Seek starts an asynchronous seek. completion, if not nil, is called
	// once with finished=false when the seek was interrupted by another one.
	Seek(seconds float64, completion func(finished bool)) error

	CurrentTime() float64
	// Duration in seconds, NaN while unknown.
	Duration() float64
	// Rate is 0 when the play head is not advancing.
	Rate() float64

	// Observe registers o and returns the function detaching it.
	Observe(o Observer) (detach func())
	AddPeriodicTimeObserver(interval time.Duration, fn func(seconds float64)) TimeObserverToken
	RemoveTimeObserver(token TimeObserverToken)

	Close() error
}

// Backend constructs sessions. Open may block on I/O.
type Backend interface {
	Open(url string) (Session, error)
}

// AudioSession switches the platform audio output on and off around
// playback.
type AudioSession interface {
	SetActive(active bool) error
}

type nopAudioSession struct{}

func (nopAudioSession) SetActive(bool) error { return nil }
