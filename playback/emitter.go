// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

import "sync"

// Sink receives events on behalf of the host.
type Sink interface {
	Send(ev Event)
}

type SinkFunc func(ev Event)

func (f SinkFunc) Send(ev Event) { f(ev) }

// Emitter holds at most one Sink. Events emitted while no sink is attached
// are dropped, never queued.
type Emitter struct {
	mu   sync.Mutex
	sink Sink
}

// Subscribe replaces the current sink.
func (e *Emitter) Subscribe(s Sink) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = s
}

func (e *Emitter) Unsubscribe() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink = nil
}

func (e *Emitter) Subscribed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sink != nil
}

// Emit delivers ev synchronously. Sinks must not call back into the
// Emitter from Send.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sink != nil {
		e.sink.Send(ev)
	}
}
