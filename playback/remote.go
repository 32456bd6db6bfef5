// Copyright 2023 The STMPS Authors
// SPDX-License-Identifier: GPL-3.0-only

package playback

// CommandStatus is the answer given to the OS for a remote command.
type CommandStatus int

const (
	CommandSuccess CommandStatus = iota
	CommandFailed
)

func (s CommandStatus) String() string {
	if s == CommandSuccess {
		return "success"
	}
	return "commandFailed"
}

// CommandHandler answers one hardware or lock-screen command.
type CommandHandler func() CommandStatus

// CommandCenter is the platform's transport-control registry.
type CommandCenter interface {
	SetHandlers(play, pause CommandHandler)
	ClearHandlers()
}

type nopCommandCenter struct{}

func (nopCommandCenter) SetHandlers(_, _ CommandHandler) {}
func (nopCommandCenter) ClearHandlers()                  {}

// RemoteControl routes remote play/pause commands into the engine. Each
// command only succeeds when it changes something.
type RemoteControl struct {
	center CommandCenter
	engine *Engine
}

func newRemoteControl(center CommandCenter, engine *Engine) *RemoteControl {
	if center == nil {
		center = nopCommandCenter{}
	}
	return &RemoteControl{center: center, engine: engine}
}

// Arm (re)installs the handlers; called for every new session.
func (r *RemoteControl) Arm() {
	r.center.SetHandlers(r.HandlePlay, r.HandlePause)
}

func (r *RemoteControl) Disarm() {
	r.center.ClearHandlers()
}

// HandlePlay succeeds only when playback is fully stopped (rate 0).
func (r *RemoteControl) HandlePlay() CommandStatus {
	status := CommandFailed
	r.engine.loop.call(func() {
		rate, ok := r.engine.currentRate()
		if !ok || rate != 0 {
			return
		}
		r.engine.play()
		status = CommandSuccess
	})
	return status
}

// HandlePause succeeds only while playing at normal rate.
func (r *RemoteControl) HandlePause() CommandStatus {
	status := CommandFailed
	r.engine.loop.call(func() {
		rate, ok := r.engine.currentRate()
		if !ok || rate != 1 {
			return
		}
		r.engine.pause()
		status = CommandSuccess
	})
	return status
}
